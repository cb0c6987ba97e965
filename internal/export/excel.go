package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cpkops/ghtools/internal/backup"
)

// ToExcel writes the backup as a workbook with one sheet per view:
// teams overview, team memberships, team repositories, users summary,
// and users without teams.
func ToExcel(b *backup.OrganizationBackup, filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	writeSheet := func(name string, header []string, rows [][]string) error {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}

		headerCells := make([]any, len(header))
		for i, h := range header {
			headerCells[i] = h
		}
		if err := f.SetSheetRow(name, "A1", &headerCells); err != nil {
			return err
		}
		for i, row := range rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &cells); err != nil {
				return err
			}
		}

		lastCol, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(name, "A1", lastCol, headerStyle); err != nil {
			return err
		}
		endColName := strings.TrimSuffix(lastCol, "1")
		return f.SetColWidth(name, "A", endColName, 24)
	}

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
	if err := writeSheet("Teams Overview",
		[]string{"Team Name", "Team Slug", "Privacy", "Description", "Member Count", "Repository Count", "Repository List"},
		overviewRows); err != nil {
		return err
	}

	var membershipRows [][]string
	for _, m := range collectMemberships(b) {
		membershipRows = append(membershipRows, []string{
			m.teamName, m.teamSlug, m.username, m.email, m.teamRole, m.orgRole,
		})
	}
	if err := writeSheet("Team Memberships",
		[]string{"Team Name", "Team Slug", "Username", "User Email", "Team Role", "Org Role"},
		membershipRows); err != nil {
		return err
	}

	var repoRows [][]string
	for _, row := range collectTeamRepos(b) {
		parts := strings.Split(row.repo, "/")
		repoRows = append(repoRows, []string{row.teamName, row.teamSlug, parts[len(parts)-1], row.repo})
	}
	if err := writeSheet("Team Repositories",
		[]string{"Team Name", "Team Slug", "Repository", "Repository Org/Name"},
		repoRows); err != nil {
		return err
	}

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
	if err := writeSheet("Users Summary",
		[]string{"Username", "User ID", "Email", "Org Role", "Team Count", "Team List"},
		userRows); err != nil {
		return err
	}

	var orphanRows [][]string
	for _, user := range usersSortedByName(b) {
		if len(user.Teams) > 0 {
			continue
		}
		orphanRows = append(orphanRows, []string{
			user.Username, strconv.FormatInt(user.UserID, 10), strOrEmpty(user.Email), user.Role,
		})
	}
	if err := writeSheet("Users Without Teams",
		[]string{"Username", "User ID", "Email", "Org Role"},
		orphanRows); err != nil {
		return err
	}

	// The default sheet is replaced by the named ones.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}
