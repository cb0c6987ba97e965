package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Member is an organization or team member entry.
type Member struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Team is an organization team.
type Team struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	Privacy     string  `json:"privacy"`
}

// Repository is a repository entry as returned by team listings.
type Repository struct {
	FullName string `json:"full_name"`
}

// User holds the public profile fields the backup cares about.
type User struct {
	Login string  `json:"login"`
	Email *string `json:"email"`
}

// OrgMembership is a user's organization membership record.
type OrgMembership struct {
	Role  string `json:"role"`
	State string `json:"state"`
}

// TeamMembership is a user's membership record within one team.
type TeamMembership struct {
	Role  string `json:"role"`
	State string `json:"state"`
}

// OrgMembers lists all members of an organization. A missing or
// inaccessible organization is an error: the caller cannot proceed
// without the member list.
func (c *Client) OrgMembers(ctx context.Context, org string) ([]Member, error) {
	return paginated[Member](ctx, c, fmt.Sprintf("%s/orgs/%s/members", c.baseURL, org), false)
}

// OrgTeams lists all teams of an organization. Like OrgMembers this is
// prerequisite data, so a 404 is an error.
func (c *Client) OrgTeams(ctx context.Context, org string) ([]Team, error) {
	return paginated[Team](ctx, c, fmt.Sprintf("%s/orgs/%s/teams", c.baseURL, org), false)
}

// TeamMembers lists the members of one team. An absent team yields an
// empty list.
func (c *Client) TeamMembers(ctx context.Context, org, teamSlug string) ([]Member, error) {
	return paginated[Member](ctx, c, fmt.Sprintf("%s/orgs/%s/teams/%s/members", c.baseURL, org, teamSlug), true)
}

// TeamRepositories lists the repositories a team has access to. An
// absent team yields an empty list.
func (c *Client) TeamRepositories(ctx context.Context, org, teamSlug string) ([]Repository, error) {
	return paginated[Repository](ctx, c, fmt.Sprintf("%s/orgs/%s/teams/%s/repos", c.baseURL, org, teamSlug), true)
}

// UserOrgMembership fetches a user's organization membership record, or
// nil if none exists.
func (c *Client) UserOrgMembership(ctx context.Context, org, username string) (*OrgMembership, error) {
	return single[OrgMembership](ctx, c, fmt.Sprintf("%s/orgs/%s/memberships/%s", c.baseURL, org, username))
}

// UserDetails fetches a user's public profile, or nil if the user does
// not exist.
func (c *Client) UserDetails(ctx context.Context, username string) (*User, error) {
	return single[User](ctx, c, fmt.Sprintf("%s/users/%s", c.baseURL, username))
}

// TeamMembershipFor fetches a user's membership record within one team,
// or nil if the user is not a member.
func (c *Client) TeamMembershipFor(ctx context.Context, org, teamSlug, username string) (*TeamMembership, error) {
	return single[TeamMembership](ctx, c, fmt.Sprintf("%s/orgs/%s/teams/%s/memberships/%s", c.baseURL, org, teamSlug, username))
}

// PostJSON issues a POST and decodes the response body into out.
func (c *Client) PostJSON(ctx context.Context, url string, out any) error {
	body, err := c.Do(ctx, http.MethodPost, url, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// Delete issues a DELETE. With silent404 set, a 404 reports found=false
// without an error.
func (c *Client) Delete(ctx context.Context, url string, silent404 bool) (found bool, err error) {
	body, err := c.Do(ctx, http.MethodDelete, url, silent404)
	if err != nil {
		return false, err
	}
	// A silent 404 comes back as a nil body.
	return body != nil || !silent404, nil
}

// paginated fetches every page of url and decodes each item into T.
func paginated[T any](ctx context.Context, c *Client, url string, silent404 bool) ([]T, error) {
	raw, err := c.GetPaginated(ctx, url, silent404)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, fmt.Errorf("decoding item from %s: %w", url, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// single fetches one resource with silent-404 semantics: a missing
// resource yields (nil, nil).
func single[T any](ctx context.Context, c *Client, url string) (*T, error) {
	body, err := c.Get(ctx, url, true)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}
	return &item, nil
}
