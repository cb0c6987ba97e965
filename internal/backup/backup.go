// Package backup builds a point-in-time snapshot of an organization's
// team memberships: who is in which team, with what role, and which
// repositories each team grants access to.
//
// The run has two phases. Team member and repository lists are fetched
// concurrently into a read-only cache; users are then processed in
// strictly sequential batches against that cache, so the resulting user
// order always matches the organization member list.
package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cpkops/ghtools/internal/githubapi"
)

const (
	// DefaultBatchSize is the number of users processed per batch.
	DefaultBatchSize = 20
	// DefaultMaxWorkers bounds the team-cache fetch pool.
	DefaultMaxWorkers = 5

	defaultOrgRole = "member"
)

// ProgressFunc is called after each user is processed.
type ProgressFunc func(processed, total int, username string)

// Options configures a backup run. Org is required; zero values for the
// numeric fields fall back to the defaults.
type Options struct {
	Org        string
	BatchSize  int
	MaxWorkers int

	// LimitUsers, when positive, truncates the member list after the
	// fetch. Used for test runs against large organizations.
	LimitUsers int

	// Logf receives informational progress messages. Defaults to stderr.
	Logf func(format string, args ...any)

	// OnProgress, when set, is invoked once per processed user.
	OnProgress ProgressFunc
}

// Runner executes backup runs. Each call to Run builds a fresh cache
// and backup object; nothing persists between runs.
type Runner struct {
	client     *githubapi.Client
	org        string
	batchSize  int
	maxWorkers int
	limitUsers int
	logf       func(format string, args ...any)
	onProgress ProgressFunc

	cache *TeamCache
}

// NewRunner creates a Runner for the given organization.
func NewRunner(client *githubapi.Client, opts Options) *Runner {
	r := &Runner{
		client:     client,
		org:        opts.Org,
		batchSize:  opts.BatchSize,
		maxWorkers: opts.MaxWorkers,
		limitUsers: opts.LimitUsers,
		logf:       opts.Logf,
		onProgress: opts.OnProgress,
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize
	}
	if r.maxWorkers <= 0 {
		r.maxWorkers = DefaultMaxWorkers
	}
	if r.logf == nil {
		r.logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return r
}

// Run performs a full backup: fetch members and teams, build the team
// cache, then process every member in order. Failures fetching the
// member list, the team list, or building the cache abort the run;
// failures on individual users or teams degrade locally and never do.
func (r *Runner) Run(ctx context.Context) (*OrganizationBackup, error) {
	r.cache = newTeamCache()

	result := &OrganizationBackup{
		OrgName:         r.org,
		BackupTimestamp: time.Now().Format(time.RFC3339),
		BackupType:      BackupTypeTeamsOnly,
	}

	r.logf("fetching organization members for %s...", r.org)
	members, err := r.client.OrgMembers(ctx, r.org)
	if err != nil {
		return nil, fmt.Errorf("fetching organization members: %w", err)
	}
	if r.limitUsers > 0 && len(members) > r.limitUsers {
		r.logf("test mode: limited to first %d of %d members", r.limitUsers, len(members))
		members = members[:r.limitUsers]
	} else {
		r.logf("found %d members", len(members))
	}

	r.logf("fetching teams for %s...", r.org)
	teams, err := r.client.OrgTeams(ctx, r.org)
	if err != nil {
		return nil, fmt.Errorf("fetching organization teams: %w", err)
	}
	r.logf("found %d teams", len(teams))

	// Every team entry must be cached before the first user is resolved.
	r.buildCache(ctx, teams)

	total := len(members)
	totalBatches := (total + r.batchSize - 1) / r.batchSize
	r.logf("processing %d users in batches of %d...", total, r.batchSize)

	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := batch * r.batchSize
		end := start + r.batchSize
		if end > total {
			end = total
		}
		r.logf("processing batch %d/%d (%d users)", batch+1, totalBatches, end-start)

		for _, member := range members[start:end] {
			role, email := r.enrichUser(ctx, member.Login)
			result.Users = append(result.Users, UserAccess{
				Username: member.Login,
				UserID:   member.ID,
				Email:    email,
				Role:     role,
				Teams:    r.resolveTeams(ctx, member.Login, teams),
			})
			if r.onProgress != nil {
				r.onProgress(len(result.Users), total, member.Login)
			}
		}
	}

	result.Summary = summarize(result.Users, len(teams))
	return result, nil
}

// enrichUser resolves a user's organization role and profile email. A
// missing membership record defaults the role, a missing profile leaves
// the email nil, and any request failure degrades the whole result to
// the defaults. Enrichment never fails the batch.
func (r *Runner) enrichUser(ctx context.Context, username string) (role string, email *string) {
	role = defaultOrgRole

	membership, err := r.client.UserOrgMembership(ctx, r.org, username)
	if err != nil {
		r.logf("warning: fetching org membership for %s: %v", username, err)
		return defaultOrgRole, nil
	}
	if membership != nil && membership.Role != "" {
		role = membership.Role
	}

	user, err := r.client.UserDetails(ctx, username)
	if err != nil {
		r.logf("warning: fetching user details for %s: %v", username, err)
		return defaultOrgRole, nil
	}
	if user != nil {
		email = user.Email
	}
	return role, email
}

// resolveTeams assembles the user's team access records from the cache,
// in the order teams were listed. A team where the cache confirms
// membership but the per-user membership lookup comes back empty is
// skipped; the API can be transiently inconsistent here and the detail
// record is the authority for the role.
func (r *Runner) resolveTeams(ctx context.Context, username string, teams []githubapi.Team) []TeamAccess {
	var access []TeamAccess

	for _, team := range teams {
		if !r.cache.IsMember(team.Slug, username) {
			continue
		}

		membership, err := r.client.TeamMembershipFor(ctx, r.org, team.Slug, username)
		if err != nil {
			r.logf("warning: fetching membership of %s in team %s: %v", username, team.Slug, err)
			continue
		}
		if membership == nil {
			r.logf("warning: cache lists %s in team %s but membership lookup found nothing, skipping", username, team.Slug)
			continue
		}

		role := membership.Role
		if role == "" {
			role = defaultOrgRole
		}
		privacy := team.Privacy
		if privacy == "" {
			privacy = "secret"
		}

		access = append(access, TeamAccess{
			Name:         team.Name,
			Slug:         team.Slug,
			Description:  team.Description,
			Privacy:      privacy,
			Role:         role,
			Repositories: r.cache.Repositories(team.Slug),
		})
	}
	return access
}

func summarize(users []UserAccess, totalTeams int) map[string]int {
	memberships := 0
	withTeams := 0
	for _, u := range users {
		memberships += len(u.Teams)
		if len(u.Teams) > 0 {
			withTeams++
		}
	}
	return map[string]int{
		"total_users":            len(users),
		"total_teams":            totalTeams,
		"total_team_memberships": memberships,
		"users_with_teams":       withTeams,
	}
}
