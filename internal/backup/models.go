package backup

// BackupTypeTeamsOnly tags backups that capture team memberships and
// team repository access, but not direct per-user repository grants.
const BackupTypeTeamsOnly = "teams_only"

// TeamAccess records one user's membership in one team, along with the
// repositories that team grants access to. Instances are immutable once
// constructed.
type TeamAccess struct {
	Name         string   `json:"name"`
	Slug         string   `json:"slug"`
	Description  *string  `json:"description"`
	Privacy      string   `json:"privacy"`
	Role         string   `json:"role"`
	Repositories []string `json:"repositories"`
}

// UserAccess is the per-user aggregation of organization role, profile
// email, and team memberships.
type UserAccess struct {
	Username string       `json:"username"`
	UserID   int64        `json:"user_id"`
	Email    *string      `json:"email"`
	Role     string       `json:"role"`
	Teams    []TeamAccess `json:"teams"`
}

// OrganizationBackup is the root object produced by a backup run.
type OrganizationBackup struct {
	OrgName         string         `json:"org_name"`
	BackupTimestamp string         `json:"backup_timestamp"`
	BackupType      string         `json:"backup_type"`
	Users           []UserAccess   `json:"users"`
	Summary         map[string]int `json:"summary"`
}
