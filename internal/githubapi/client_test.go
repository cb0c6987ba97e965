package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// newTestClient returns a client pointed at the given server with
// instant sleeps, recording every sleep duration.
func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *[]time.Duration) {
	t.Helper()
	var mu sync.Mutex
	sleeps := &[]time.Duration{}
	c := NewClient("test-token", WithBaseURL(srv.URL), WithLogf(func(string, ...any) {}))
	c.sleep = func(d time.Duration) {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
	}
	return c, sleeps
}

func TestGet_SetsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	if _, err := c.Get(context.Background(), srv.URL+"/thing", false); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gotAuth != "token test-token" {
		t.Errorf("Authorization header: got %q, want %q", gotAuth, "token test-token")
	}
	if gotAccept != "application/vnd.github.v3+json" {
		t.Errorf("Accept header: got %q", gotAccept)
	}
}

func TestGet_RetriesWithBackoffThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv)
	body, err := c.Get(context.Background(), srv.URL+"/thing", false)
	if err != nil {
		t.Fatalf("Get failed after retries: %v", err)
	}
	if body == nil {
		t.Fatal("expected a body on success")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d: got %s, want %s", i, (*sleeps)[i], d)
		}
	}
}

func TestGet_RetryCeilingPropagatesLastError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.Get(context.Background(), srv.URL+"/thing", false)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status: got %d, want %d", statusErr.StatusCode, http.StatusBadGateway)
	}
}

func TestGet_Silent404ReturnsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv)
	body, err := c.Get(context.Background(), srv.URL+"/gone", true)
	if err != nil {
		t.Fatalf("silent 404 should not error: %v", err)
	}
	if body != nil {
		t.Errorf("silent 404 should return no data, got %q", body)
	}
	if len(*sleeps) != 0 {
		t.Errorf("silent 404 should not retry, slept %v", *sleeps)
	}
}

func TestGet_Loud404IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	if _, err := c.Get(context.Background(), srv.URL+"/gone", false); err == nil {
		t.Fatal("expected error for non-silent 404")
	}
}

func TestGet_RateLimitSleepsUntilResetPlusMinute(t *testing.T) {
	now := time.Now()
	reset := now.Add(30 * time.Second).Unix()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv)
	c.now = func() time.Time { return now }

	body, err := c.Get(context.Background(), srv.URL+"/thing", false)
	if err != nil {
		t.Fatalf("request should succeed after rate-limit wait: %v", err)
	}
	if body == nil {
		t.Fatal("expected a body")
	}
	if calls != 2 {
		t.Errorf("expected 2 requests, got %d", calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 90*time.Second {
		t.Errorf("expected a single 90s sleep, got %v", *sleeps)
	}
}

func TestGet_RateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	// Two rate-limit rejections followed by two server errors and a
	// success: the server errors use attempts 1 and 2, so the request
	// must still succeed on the third real attempt.
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch {
		case calls <= 2:
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", "0")
			w.WriteHeader(http.StatusForbidden)
		case calls <= 4:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"ok":true}`)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	if _, err := c.Get(context.Background(), srv.URL+"/thing", false); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 5 {
		t.Errorf("expected 5 requests, got %d", calls)
	}
}

func TestGet_Forbidden403WithRemainingIsNotRateLimit(t *testing.T) {
	// 403 with requests remaining means insufficient permissions, not
	// rate limiting. It should fail through the normal retry path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.Get(context.Background(), srv.URL+"/thing", false)
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", statusErr.StatusCode)
	}
}

func TestGet_Forbidden403WithoutHeadersIsNotRateLimit(t *testing.T) {
	// A bare 403 carries no rate-limit headers at all. It must consume
	// the normal retry budget and surface as a status error instead of
	// being treated as an endless free rate-limit retry.
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv)
	_, err := c.Get(context.Background(), srv.URL+"/thing", false)
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", statusErr.StatusCode)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d: got %s, want %s", i, (*sleeps)[i], d)
		}
	}
}

// pagedHandler serves items from a fixed list honoring per_page/page.
func pagedHandler(t *testing.T, total int, requests *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*requests++
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if perPage == 0 || page == 0 {
			t.Errorf("missing pagination params in %s", r.URL.RawQuery)
		}

		start := (page - 1) * perPage
		end := start + perPage
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		items := make([]map[string]int, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, map[string]int{"n": i})
		}
		json.NewEncoder(w).Encode(items)
	}
}

func TestGetPaginated_AggregatesPagesInOrder(t *testing.T) {
	var requests int
	srv := httptest.NewServer(pagedHandler(t, 250, &requests))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), srv.URL+"/items", false)
	if err != nil {
		t.Fatalf("GetPaginated failed: %v", err)
	}
	if len(items) != 250 {
		t.Fatalf("expected 250 items, got %d", len(items))
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
	for i, raw := range items {
		var item struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			t.Fatalf("decoding item %d: %v", i, err)
		}
		if item.N != i {
			t.Fatalf("item %d out of order: got n=%d", i, item.N)
		}
	}
}

func TestGetPaginated_ExactPageBoundaryFetchesEmptyTail(t *testing.T) {
	// 200 items is exactly two full pages; the client cannot know the
	// second page was the last one and must request a third, empty page.
	var requests int
	srv := httptest.NewServer(pagedHandler(t, 200, &requests))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), srv.URL+"/items", false)
	if err != nil {
		t.Fatalf("GetPaginated failed: %v", err)
	}
	if len(items) != 200 {
		t.Errorf("expected 200 items, got %d", len(items))
	}
	if requests != 3 {
		t.Errorf("expected 3 requests (two full pages + empty tail), got %d", requests)
	}
}

func TestGetPaginated_Silent404StopsWithEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	items, err := c.GetPaginated(context.Background(), srv.URL+"/items", true)
	if err != nil {
		t.Fatalf("silent 404 should not error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
