package backup

import (
	"context"
	"sync"

	"github.com/cpkops/ghtools/internal/githubapi"
)

// TeamCache holds, for every team in the organization, the set of member
// usernames and the ordered list of repository full names. It is
// populated once by buildCache and read-only afterwards.
type TeamCache struct {
	mu      sync.Mutex
	members map[string]map[string]struct{}
	repos   map[string][]string
}

func newTeamCache() *TeamCache {
	return &TeamCache{
		members: make(map[string]map[string]struct{}),
		repos:   make(map[string][]string),
	}
}

// set writes one team's entry. Each team slug is written by exactly one
// worker; the mutex only orders the map inserts themselves.
func (c *TeamCache) set(slug string, members map[string]struct{}, repos []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[slug] = members
	c.repos[slug] = repos
}

// IsMember reports whether username belongs to the team per the cache.
func (c *TeamCache) IsMember(slug, username string) bool {
	members, ok := c.members[slug]
	if !ok {
		return false
	}
	_, ok = members[username]
	return ok
}

// Repositories returns the cached repository list for a team.
func (c *TeamCache) Repositories(slug string) []string {
	return c.repos[slug]
}

// MembershipCount returns the total number of (team, user) pairs cached.
func (c *TeamCache) MembershipCount() int {
	n := 0
	for _, m := range c.members {
		n += len(m)
	}
	return n
}

// RepoAssignmentCount returns the total number of (team, repo) pairs cached.
func (c *TeamCache) RepoAssignmentCount() int {
	n := 0
	for _, r := range c.repos {
		n += len(r)
	}
	return n
}

// buildCache fans the per-team fetches out across a bounded worker pool
// and blocks until every team has an entry. A team whose fetch fails
// gets an empty member set and repository list; one team's failure never
// aborts the build.
func (r *Runner) buildCache(ctx context.Context, teams []githubapi.Team) {
	r.logf("building team cache for %d teams...", len(teams))

	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup

	for _, team := range teams {
		sem <- struct{}{}
		wg.Add(1)
		go func(team githubapi.Team) {
			defer wg.Done()
			defer func() { <-sem }()
			r.cache.set(r.fetchTeamData(ctx, team.Slug))
		}(team)
	}

	wg.Wait()
	r.logf("team cache built: %d memberships, %d repo assignments",
		r.cache.MembershipCount(), r.cache.RepoAssignmentCount())
}

// fetchTeamData fetches one team's member set and repository list. A
// failure on either call degrades the whole team to an empty entry.
func (r *Runner) fetchTeamData(ctx context.Context, slug string) (string, map[string]struct{}, []string) {
	empty := make(map[string]struct{})

	members, err := r.client.TeamMembers(ctx, r.org, slug)
	if err != nil {
		r.logf("warning: fetching data for team %s: %v", slug, err)
		return slug, empty, nil
	}

	repos, err := r.client.TeamRepositories(ctx, r.org, slug)
	if err != nil {
		r.logf("warning: fetching data for team %s: %v", slug, err)
		return slug, empty, nil
	}

	usernames := make(map[string]struct{}, len(members))
	for _, m := range members {
		usernames[m.Login] = struct{}{}
	}
	repoNames := make([]string, 0, len(repos))
	for _, repo := range repos {
		repoNames = append(repoNames, repo.FullName)
	}
	return slug, usernames, repoNames
}
