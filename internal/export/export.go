// Package export serializes a finished backup to the supported output
// formats: raw JSON, a single flat CSV, a set of focused CSV files, and
// a styled Excel workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cpkops/ghtools/internal/backup"
)

// ToJSON writes the backup as indented JSON.
func ToJSON(b *backup.OrganizationBackup, filename string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling backup: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// ToCSV writes the backup as a single flat CSV: one row per team
// membership, plus one empty-team row for each user without teams.
func ToCSV(b *backup.OrganizationBackup, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"Username", "User ID", "Email", "Role",
		"Team Name", "Team Slug", "Team Role", "Team Privacy", "Team Repositories",
	}); err != nil {
		return err
	}

	for _, user := range b.Users {
		base := []string{user.Username, strconv.FormatInt(user.UserID, 10), strOrEmpty(user.Email), user.Role}
		if len(user.Teams) == 0 {
			if err := w.Write(append(base, "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, team := range user.Teams {
			row := append(append([]string{}, base...),
				team.Name, team.Slug, team.Role, team.Privacy, strings.Join(team.Repositories, "; "))
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// teamSummary is a per-team aggregate rebuilt from user memberships,
// used by the teams-overview views.
type teamSummary struct {
	name        string
	slug        string
	privacy     string
	description string
	members     map[string]struct{}
	repos       map[string]struct{}
}

func aggregateTeams(b *backup.OrganizationBackup) []*teamSummary {
	bySlug := make(map[string]*teamSummary)
	for _, user := range b.Users {
		for _, team := range user.Teams {
			ts, ok := bySlug[team.Slug]
			if !ok {
				ts = &teamSummary{
					name:        team.Name,
					slug:        team.Slug,
					privacy:     team.Privacy,
					description: strOrEmpty(team.Description),
					members:     make(map[string]struct{}),
					repos:       make(map[string]struct{}),
				}
				for _, repo := range team.Repositories {
					ts.repos[repo] = struct{}{}
				}
				bySlug[team.Slug] = ts
			}
			ts.members[user.Username] = struct{}{}
		}
	}

	teams := make([]*teamSummary, 0, len(bySlug))
	for _, ts := range bySlug {
		teams = append(teams, ts)
	}
	sort.Slice(teams, func(i, j int) bool {
		return strings.ToLower(teams[i].name) < strings.ToLower(teams[j].name)
	})
	return teams
}

type membershipRow struct {
	teamName string
	teamSlug string
	username string
	email    string
	teamRole string
	orgRole  string
}

func collectMemberships(b *backup.OrganizationBackup) []membershipRow {
	var rows []membershipRow
	for _, user := range b.Users {
		for _, team := range user.Teams {
			rows = append(rows, membershipRow{
				teamName: team.Name,
				teamSlug: team.Slug,
				username: user.Username,
				email:    strOrEmpty(user.Email),
				teamRole: team.Role,
				orgRole:  user.Role,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		an, bn := strings.ToLower(a.teamName), strings.ToLower(b.teamName)
		if an != bn {
			return an < bn
		}
		return strings.ToLower(a.username) < strings.ToLower(b.username)
	})
	return rows
}

type teamRepoRow struct {
	teamName string
	teamSlug string
	repo     string
}

func collectTeamRepos(b *backup.OrganizationBackup) []teamRepoRow {
	seen := make(map[teamRepoRow]struct{})
	for _, user := range b.Users {
		for _, team := range user.Teams {
			for _, repo := range team.Repositories {
				seen[teamRepoRow{team.Name, team.Slug, repo}] = struct{}{}
			}
		}
	}
	rows := make([]teamRepoRow, 0, len(seen))
	for row := range seen {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].teamName != rows[j].teamName {
			return rows[i].teamName < rows[j].teamName
		}
		return rows[i].repo < rows[j].repo
	})
	return rows
}

func usersSortedByName(b *backup.OrganizationBackup) []backup.UserAccess {
	users := append([]backup.UserAccess(nil), b.Users...)
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users
}

// ToMultiCSV writes the backup as five focused CSV files sharing
// basePath as their name prefix, returning the created filenames.
func ToMultiCSV(b *backup.OrganizationBackup, basePath string) ([]string, error) {
	var created []string
	writeFile := func(suffix string, header []string, rows [][]string) error {
		filename := basePath + suffix
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filename, err)
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return err
		}
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
		created = append(created, filename)
		return nil
	}

	// Teams overview.
	var overviewRows [][]string
	for _, ts := range aggregateTeams(b) {
		repoList := make([]string, 0, len(ts.repos))
		for repo := range ts.repos {
			repoList = append(repoList, repo)
		}
		sort.Strings(repoList)
		overviewRows = append(overviewRows, []string{
			ts.name, ts.slug, ts.privacy, ts.description,
			strconv.Itoa(len(ts.members)), strconv.Itoa(len(ts.repos)),
			strings.Join(repoList, "; "),
		})
	}
	if err := writeFile("_teams_overview.csv",
		[]string{"Team Name", "Team Slug", "Privacy", "Description", "Member Count", "Repository Count", "Repository List"},
		overviewRows); err != nil {
		return created, err
	}

	// Team memberships.
	var membershipRows [][]string
	for _, m := range collectMemberships(b) {
		membershipRows = append(membershipRows, []string{
			m.teamName, m.teamSlug, m.username, m.email, m.teamRole, m.orgRole,
		})
	}
	if err := writeFile("_team_memberships.csv",
		[]string{"Team Name", "Team Slug", "Username", "User Email", "Team Role", "Org Role"},
		membershipRows); err != nil {
		return created, err
	}

	// Team repository access.
	var repoRows [][]string
	for _, row := range collectTeamRepos(b) {
		parts := strings.Split(row.repo, "/")
		short := parts[len(parts)-1]
		repoRows = append(repoRows, []string{row.teamName, row.teamSlug, short, row.repo})
	}
	if err := writeFile("_team_repositories.csv",
		[]string{"Team Name", "Team Slug", "Repository", "Repository Org/Name"},
		repoRows); err != nil {
		return created, err
	}

	// Users summary.
	var userRows [][]string
	for _, user := range usersSortedByName(b) {
		teamNames := make([]string, 0, len(user.Teams))
		for _, team := range user.Teams {
			teamNames = append(teamNames, team.Name)
		}
		userRows = append(userRows, []string{
			user.Username, strconv.FormatInt(user.UserID, 10), strOrEmpty(user.Email),
			user.Role, strconv.Itoa(len(user.Teams)), strings.Join(teamNames, "; "),
		})
	}
	if err := writeFile("_users_summary.csv",
		[]string{"Username", "User ID", "Email", "Org Role", "Team Count", "Team List"},
		userRows); err != nil {
		return created, err
	}

	// Users without teams.
	var orphanRows [][]string
	for _, user := range usersSortedByName(b) {
		if len(user.Teams) > 0 {
			continue
		}
		orphanRows = append(orphanRows, []string{
			user.Username, strconv.FormatInt(user.UserID, 10), strOrEmpty(user.Email), user.Role,
		})
	}
	if err := writeFile("_users_without_teams.csv",
		[]string{"Username", "User ID", "Email", "Org Role"},
		orphanRows); err != nil {
		return created, err
	}

	return created, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
