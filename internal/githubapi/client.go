package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the GitHub REST API endpoint.
	DefaultBaseURL = "https://api.github.com"

	// DefaultPerPage is the page size used for paginated requests.
	DefaultPerPage = 100

	defaultUserAgent = "ghtools/1.0"
	maxAttempts      = 3
)

// StatusError is returned when the API responds with a non-2xx status
// that is not handled as rate limiting or a silent 404.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github api: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client is a minimal GitHub REST API client with rate-limit handling
// and retry with exponential backoff. A single Client is safe for
// concurrent use; the underlying http.Client manages its own connection
// pool per goroutine.
type Client struct {
	authHeader string
	baseURL    string
	httpClient *http.Client

	// rateLimitMu serializes the rate-limit log/sleep critical section
	// so concurrent workers don't interleave their wait messages. It
	// never guards request execution itself.
	rateLimitMu sync.Mutex

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
	logf  func(format string, args ...any)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogf overrides the progress/warning log sink.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Client) { c.logf = logf }
}

// WithSleep replaces the function used for backoff and rate-limit
// waits, so retry schedules can be tested without real delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithNow replaces the clock used to compute rate-limit waits.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client authenticated with a personal or
// installation token (Authorization: token <t>).
func NewClient(token string, opts ...Option) *Client {
	return newClient("token "+token, opts...)
}

// NewAppClient creates a client authenticated with a GitHub App JWT
// (Authorization: Bearer <jwt>), used for app-level endpoints.
func NewAppClient(jwtToken string, opts ...Option) *Client {
	return newClient("Bearer "+jwtToken, opts...)
}

func newClient(authHeader string, opts ...Option) *Client {
	c := &Client{
		authHeader: authHeader,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		sleep:      time.Sleep,
		logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API endpoint the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET request. With silent404 set, a 404 response yields
// (nil, nil) instead of an error.
func (c *Client) Get(ctx context.Context, url string, silent404 bool) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, url, silent404)
}

// Do issues a request and returns the raw response body. Rate-limit
// rejections (403 with a zero remaining-requests header) block until the
// advertised reset time and retry without consuming a retry attempt.
// Other failures are retried up to three attempts with exponential
// backoff (1s, 2s); the last error is returned.
func (c *Client) Do(ctx context.Context, method, url string, silent404 bool) (json.RawMessage, error) {
	attempt := 0
	for {
		body, rateLimited, err := c.once(ctx, method, url, silent404)
		if rateLimited {
			continue
		}
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		attempt++
		if attempt >= maxAttempts {
			return nil, err
		}
		c.sleep(time.Duration(1<<(attempt-1)) * time.Second)
	}
}

// once performs a single request. The second return value reports that
// the request was rejected for rate limiting and has already waited out
// the reset window.
func (c *Client) once(ctx context.Context, method, url string, silent404 bool) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading response from %s: %w", url, err)
	}

	// Only an explicit zero marks rate limiting. A 403 without the
	// header (insufficient permissions, SSO-gated orgs, proxies) must
	// fall through to the bounded retry path, since rate-limit retries
	// don't consume attempts.
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		c.waitForRateLimit(resp.Header)
		return nil, true, nil
	}

	if resp.StatusCode == http.StatusNotFound && silent404 {
		return nil, false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, &StatusError{StatusCode: resp.StatusCode, URL: url, Body: string(data)}
	}

	return data, false, nil
}

// waitForRateLimit sleeps until one minute past the reset time reported
// by the API. The mutex keeps concurrent workers from interleaving their
// wait messages; each caller still sleeps for its own computed duration.
func (c *Client) waitForRateLimit(h http.Header) {
	reset := int64(headerInt(h, "X-RateLimit-Reset"))
	wait := time.Duration(reset-c.now().Unix()+60) * time.Second
	if wait < 0 {
		wait = 0
	}

	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()
	c.logf("rate limit exhausted, sleeping %s before retrying", wait)
	c.sleep(wait)
}

func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return 0
	}
	return n
}

// GetPaginated fetches every page of a list endpoint, issuing
// ?per_page=&page= requests (1-indexed) until a page comes back short or
// empty. Items are returned in API order.
func (c *Client) GetPaginated(ctx context.Context, url string, silent404 bool) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		pageURL := fmt.Sprintf("%s?per_page=%d&page=%d", url, DefaultPerPage, page)
		body, err := c.Get(ctx, pageURL, silent404)
		if err != nil {
			return nil, err
		}
		if body == nil {
			break
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decoding page %d of %s: %w", page, url, err)
		}
		if len(items) == 0 {
			break
		}

		all = append(all, items...)
		if len(items) < DefaultPerPage {
			break
		}
	}
	return all, nil
}
