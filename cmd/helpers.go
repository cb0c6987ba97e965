package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cpkops/ghtools/internal/config"
)

// loadConfig loads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveToken returns the GitHub token from the flag value or the
// GITHUB_TOKEN environment variable.
func resolveToken(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("GitHub token must be provided via --token or the GITHUB_TOKEN environment variable")
}

// resolveAppID returns the GitHub App ID from the flag, the config
// file, or the APP_ID environment variable, in that order.
func resolveAppID(flagValue int64, cfg *config.Config) (int64, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	if cfg != nil && cfg.App.ID > 0 {
		return cfg.App.ID, nil
	}
	if env := os.Getenv("APP_ID"); env != "" {
		id, err := strconv.ParseInt(env, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid APP_ID %q: %w", env, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("GitHub App ID must be provided via --app-id, the config file, or the APP_ID environment variable")
}

// resolveKeySources fills empty key flags from the config file and the
// PRIVATE_KEY_PATH / PRIVATE_KEY environment variables.
func resolveKeySources(keyPath, keyContent string, cfg *config.Config) (string, string) {
	if keyPath == "" && keyContent == "" {
		if cfg != nil && cfg.App.PrivateKeyPath != "" {
			keyPath = cfg.App.PrivateKeyPath
		} else if env := os.Getenv("PRIVATE_KEY_PATH"); env != "" {
			keyPath = env
		} else if env := os.Getenv("PRIVATE_KEY"); env != "" {
			keyContent = env
		}
	}
	return keyPath, keyContent
}
