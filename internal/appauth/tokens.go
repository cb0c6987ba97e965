package appauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cpkops/ghtools/internal/githubapi"
)

// Installation is a GitHub App installation on one account.
type Installation struct {
	ID      int64 `json:"id"`
	Account struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"account"`
	TargetType  string            `json:"target_type"`
	Permissions map[string]string `json:"permissions"`
	Events      []string          `json:"events"`
}

// AppInfo is the app metadata shown by the app-info command.
type AppInfo struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description        string            `json:"description"`
	Permissions        map[string]string `json:"permissions"`
	Events             []string          `json:"events"`
	InstallationsCount int               `json:"installations_count"`
}

// InstallationToken is a freshly minted installation access token.
type InstallationToken struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// TokenValidation is the outcome of checking an installation token.
type TokenValidation struct {
	Valid             bool
	Reason            string
	RepositoriesCount int
}

// TokenManager performs app-level operations authenticated with an app
// JWT.
type TokenManager struct {
	client *githubapi.Client
}

// NewTokenManager creates a manager using the given signed app JWT.
func NewTokenManager(appJWT string, opts ...githubapi.Option) *TokenManager {
	return &TokenManager{client: githubapi.NewAppClient(appJWT, opts...)}
}

// Installations lists every installation of the app.
func (m *TokenManager) Installations(ctx context.Context) ([]Installation, error) {
	body, err := m.client.Get(ctx, m.client.BaseURL()+"/app/installations", false)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	var installations []Installation
	if err := json.Unmarshal(body, &installations); err != nil {
		return nil, fmt.Errorf("decoding installations: %w", err)
	}
	return installations, nil
}

// FindInstallationByOrg locates the installation bound to the given
// organization or user account.
func (m *TokenManager) FindInstallationByOrg(ctx context.Context, org string) (*Installation, error) {
	installations, err := m.Installations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range installations {
		if strings.EqualFold(installations[i].Account.Login, org) {
			return &installations[i], nil
		}
	}
	return nil, fmt.Errorf("app is not installed on %q (%d installations checked)", org, len(installations))
}

// CreateInstallationToken exchanges the app JWT for an installation
// access token.
func (m *TokenManager) CreateInstallationToken(ctx context.Context, installationID int64) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", m.client.BaseURL(), installationID)
	var token InstallationToken
	if err := m.client.PostJSON(ctx, url, &token); err != nil {
		return nil, fmt.Errorf("creating installation token: %w", err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("invalid response: token not found in response")
	}
	return &token, nil
}

// AppInfo fetches the app's own metadata.
func (m *TokenManager) AppInfo(ctx context.Context) (*AppInfo, error) {
	body, err := m.client.Get(ctx, m.client.BaseURL()+"/app", false)
	if err != nil {
		return nil, fmt.Errorf("fetching app info: %w", err)
	}
	var info AppInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decoding app info: %w", err)
	}
	return &info, nil
}

// ValidateToken checks whether an installation token is live by listing
// its accessible repositories. Authentication failures come back as an
// invalid result, not an error.
func ValidateToken(ctx context.Context, token string, opts ...githubapi.Option) (*TokenValidation, error) {
	c := githubapi.NewClient(token, opts...)
	body, err := c.Get(ctx, c.BaseURL()+"/installation/repositories", false)
	if err != nil {
		var statusErr *githubapi.StatusError
		if errors.As(err, &statusErr) {
			reason := fmt.Sprintf("HTTP %d", statusErr.StatusCode)
			switch statusErr.StatusCode {
			case http.StatusUnauthorized:
				reason = "invalid or expired token"
			case http.StatusForbidden:
				reason = "insufficient permissions"
			}
			return &TokenValidation{Valid: false, Reason: reason}, nil
		}
		return nil, err
	}

	var repoInfo struct {
		TotalCount int `json:"total_count"`
	}
	if err := json.Unmarshal(body, &repoInfo); err != nil {
		return nil, fmt.Errorf("decoding repository listing: %w", err)
	}
	return &TokenValidation{Valid: true, RepositoriesCount: repoInfo.TotalCount}, nil
}

// RevokeToken revokes an installation token. It reports false when the
// token was already gone.
func RevokeToken(ctx context.Context, token string, opts ...githubapi.Option) (bool, error) {
	c := githubapi.NewClient(token, opts...)
	return c.Delete(ctx, c.BaseURL()+"/installation/token", true)
}
