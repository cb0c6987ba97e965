package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/cpkops/ghtools/internal/appauth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate and manage GitHub App installation tokens",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an installation access token",
	Long: `Signs a short-lived app JWT with the App's private key and exchanges
it for an installation access token. The target installation is chosen
by --installation-id, or looked up by --org.`,
	RunE: runTokenGenerate,
}

var tokenInstallationsCmd = &cobra.Command{
	Use:   "installations",
	Short: "List all installations of the App",
	RunE:  runTokenInstallations,
}

var tokenAppInfoCmd = &cobra.Command{
	Use:   "app-info",
	Short: "Show the App's metadata, permissions, and events",
	RunE:  runTokenAppInfo,
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate TOKEN",
	Short: "Check whether an installation token is still usable",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenValidate,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke TOKEN",
	Short: "Revoke an installation token",
	RunE:  runTokenRevoke,
	Args:  cobra.ExactArgs(1),
}

func init() {
	for _, c := range []*cobra.Command{tokenGenerateCmd, tokenInstallationsCmd, tokenAppInfoCmd} {
		c.Flags().Int64("app-id", 0, "GitHub App ID (or set APP_ID)")
		c.Flags().String("private-key-path", "", "path to the App's private key file (or set PRIVATE_KEY_PATH)")
		c.Flags().String("private-key", "", "the App's private key content directly (or set PRIVATE_KEY)")
	}
	tokenGenerateCmd.Flags().String("org", "", "organization the App is installed on")
	tokenGenerateCmd.Flags().Int64("installation-id", 0, "installation ID (skips the org lookup)")
	tokenRevokeCmd.Flags().Bool("force", false, "skip the confirmation prompt")

	tokenCmd.AddCommand(tokenGenerateCmd, tokenInstallationsCmd, tokenAppInfoCmd, tokenValidateCmd, tokenRevokeCmd)
	rootCmd.AddCommand(tokenCmd)
}

// tokenManagerFromFlags signs an app JWT from the flag/config/env key
// sources and returns a manager around it.
func tokenManagerFromFlags(cmd *cobra.Command) (*appauth.TokenManager, error) {
	// Config is optional here: App identity can come entirely from
	// flags or the environment.
	cfg, _ := loadConfig()

	appIDFlag, _ := cmd.Flags().GetInt64("app-id")
	appID, err := resolveAppID(appIDFlag, cfg)
	if err != nil {
		return nil, err
	}

	keyPath, _ := cmd.Flags().GetString("private-key-path")
	keyContent, _ := cmd.Flags().GetString("private-key")
	keyPath, keyContent = resolveKeySources(keyPath, keyContent, cfg)

	key, err := appauth.ResolvePrivateKey(keyPath, keyContent)
	if err != nil {
		return nil, err
	}

	verbosef("signing app JWT for app ID %d", appID)
	appJWT, err := appauth.GenerateJWT(appID, key)
	if err != nil {
		return nil, err
	}
	return appauth.NewTokenManager(appJWT), nil
}

func runTokenGenerate(cmd *cobra.Command, args []string) error {
	manager, err := tokenManagerFromFlags(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	installationID, _ := cmd.Flags().GetInt64("installation-id")
	org, _ := cmd.Flags().GetString("org")

	if installationID == 0 {
		if org == "" {
			return fmt.Errorf("either --org or --installation-id is required")
		}
		verbosef("looking up installation for %s", org)
		installation, err := manager.FindInstallationByOrg(ctx, org)
		if err != nil {
			return err
		}
		installationID = installation.ID
		verbosef("found installation %d", installationID)
	}

	token, err := manager.CreateInstallationToken(ctx, installationID)
	if err != nil {
		return err
	}

	fmt.Printf("Installation token for installation %d:\n", installationID)
	fmt.Printf("  %s\n", token.Token)
	if token.ExpiresAt != "" {
		fmt.Printf("Expires at: %s\n", token.ExpiresAt)
	}
	return nil
}

func runTokenInstallations(cmd *cobra.Command, args []string) error {
	manager, err := tokenManagerFromFlags(cmd)
	if err != nil {
		return err
	}

	installations, err := manager.Installations(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Found %d installation(s):\n", len(installations))
	for _, inst := range installations {
		fmt.Printf("  %-12d %-30s %s\n", inst.ID, inst.Account.Login, inst.TargetType)
	}
	return nil
}

func runTokenAppInfo(cmd *cobra.Command, args []string) error {
	manager, err := tokenManagerFromFlags(cmd)
	if err != nil {
		return err
	}

	info, err := manager.AppInfo(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("App:           %s (%s)\n", info.Name, info.Slug)
	fmt.Printf("Owner:         %s\n", info.Owner.Login)
	if info.Description != "" {
		fmt.Printf("Description:   %s\n", info.Description)
	}
	fmt.Printf("Installations: %d\n", info.InstallationsCount)

	if len(info.Permissions) > 0 {
		fmt.Println("Permissions:")
		perms := make([]string, 0, len(info.Permissions))
		for p := range info.Permissions {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		for _, p := range perms {
			fmt.Printf("  %-24s %s\n", p, info.Permissions[p])
		}
	}
	if len(info.Events) > 0 {
		fmt.Printf("Events:        %s\n", strings.Join(info.Events, ", "))
	}
	return nil
}

func runTokenValidate(cmd *cobra.Command, args []string) error {
	result, err := appauth.ValidateToken(context.Background(), args[0])
	if err != nil {
		return err
	}

	if !result.Valid {
		return fmt.Errorf("token is invalid: %s", result.Reason)
	}
	fmt.Printf("Token is valid (access to %d repositories)\n", result.RepositoriesCount)
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		prompt := promptui.Prompt{
			Label:     "Revoke this installation token",
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			fmt.Println("Revocation cancelled")
			return nil
		}
	}

	found, err := appauth.RevokeToken(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("Token not found or already revoked")
		return nil
	}
	fmt.Println("Token revoked")
	return nil
}
