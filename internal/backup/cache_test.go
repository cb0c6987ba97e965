package backup

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"testing"
)

func cacheFixture() *fakeOrg {
	return &fakeOrg{
		org: "acme",
		teams: []map[string]any{
			{"name": "Backend", "slug": "backend", "privacy": "closed"},
			{"name": "Frontend", "slug": "frontend", "privacy": "closed"},
			{"name": "Ghosts", "slug": "ghosts", "privacy": "secret"},
		},
		teamMembers: map[string][]map[string]any{
			"backend":  {{"login": "alice", "id": 1}, {"login": "bob", "id": 2}},
			"frontend": {{"login": "carol", "id": 3}},
			"ghosts":   {},
		},
		teamRepos: map[string][]map[string]any{
			"backend":  {{"full_name": "acme/api"}, {"full_name": "acme/worker"}},
			"frontend": {{"full_name": "acme/web"}},
			"ghosts":   {},
		},
	}
}

func buildCacheForTest(t *testing.T, f *fakeOrg, maxWorkers int) *TeamCache {
	t.Helper()
	r, _ := newTestRunner(t, f, Options{MaxWorkers: maxWorkers})
	teams, err := r.client.OrgTeams(context.Background(), "acme")
	if err != nil {
		t.Fatalf("fetching teams: %v", err)
	}
	r.cache = newTeamCache()
	r.buildCache(context.Background(), teams)
	return r.cache
}

func TestBuildCache_PopulatesEveryTeam(t *testing.T) {
	cache := buildCacheForTest(t, cacheFixture(), 3)

	if !cache.IsMember("backend", "alice") || !cache.IsMember("backend", "bob") {
		t.Error("backend members missing from cache")
	}
	if cache.IsMember("backend", "carol") {
		t.Error("carol should not be in backend")
	}
	if got := cache.Repositories("backend"); !reflect.DeepEqual(got, []string{"acme/api", "acme/worker"}) {
		t.Errorf("backend repos: got %v", got)
	}
	if cache.MembershipCount() != 3 {
		t.Errorf("membership count: got %d, want 3", cache.MembershipCount())
	}
	if cache.RepoAssignmentCount() != 3 {
		t.Errorf("repo assignment count: got %d, want 3", cache.RepoAssignmentCount())
	}
}

func TestBuildCache_EmptyTeamHasEntryNotAbsence(t *testing.T) {
	cache := buildCacheForTest(t, cacheFixture(), 2)

	members, ok := cache.members["ghosts"]
	if !ok {
		t.Fatal("empty team should still have a cache entry")
	}
	if len(members) != 0 {
		t.Errorf("ghosts should have no members, got %v", members)
	}
	repos, ok := cache.repos["ghosts"]
	if !ok {
		t.Fatal("empty team should still have a repos entry")
	}
	if len(repos) != 0 {
		t.Errorf("ghosts should have no repos, got %v", repos)
	}
}

func TestBuildCache_Missing404TeamDegradesToEmpty(t *testing.T) {
	// The repos endpoint of one team 404s (team deleted mid-run). Its
	// entry degrades while the other teams build normally.
	f := cacheFixture()
	delete(f.teamRepos, "frontend")
	f.failWith = map[string]int{
		"/orgs/acme/teams/frontend/repos": http.StatusNotFound,
	}

	cache := buildCacheForTest(t, f, 2)

	repos, ok := cache.repos["frontend"]
	if !ok {
		t.Fatal("frontend should still be cached after a 404")
	}
	if len(repos) != 0 {
		t.Errorf("frontend repos should be empty, got %v", repos)
	}
	if !cache.IsMember("backend", "alice") {
		t.Error("other teams should be unaffected")
	}
}

func TestBuildCache_TeamFetchErrorDegradesToEmpty(t *testing.T) {
	f := cacheFixture()
	f.failWith = map[string]int{
		"/orgs/acme/teams/backend/members": http.StatusInternalServerError,
	}

	cache := buildCacheForTest(t, f, 2)

	if cache.IsMember("backend", "alice") {
		t.Error("failed team should degrade to an empty member set")
	}
	if _, ok := cache.members["backend"]; !ok {
		t.Error("failed team should still be cached")
	}
	if !cache.IsMember("frontend", "carol") {
		t.Error("one team's failure must not abort the others")
	}
}

func TestBuildCache_Idempotent(t *testing.T) {
	// Identical API responses must produce identical cache contents
	// regardless of worker count and completion order.
	f := cacheFixture()
	for i := 0; i < 10; i++ {
		f.teams = append(f.teams, map[string]any{
			"name": fmt.Sprintf("Team %d", i), "slug": fmt.Sprintf("team-%d", i), "privacy": "closed",
		})
		if f.teamMembers == nil {
			f.teamMembers = map[string][]map[string]any{}
		}
		f.teamMembers[fmt.Sprintf("team-%d", i)] = []map[string]any{
			{"login": fmt.Sprintf("dev%d", i), "id": 100 + i},
		}
	}

	first := buildCacheForTest(t, f, 1)
	second := buildCacheForTest(t, f, 8)

	if !reflect.DeepEqual(first.members, second.members) {
		t.Error("member maps differ between sequential and concurrent builds")
	}
	// Degraded entries store nil repo slices, so normalize before comparing.
	if first.RepoAssignmentCount() != second.RepoAssignmentCount() {
		t.Error("repo assignment counts differ between builds")
	}
	for slug := range first.repos {
		if !reflect.DeepEqual(first.Repositories(slug), second.Repositories(slug)) {
			t.Errorf("repos for %s differ: %v vs %v", slug, first.Repositories(slug), second.Repositories(slug))
		}
	}
}
