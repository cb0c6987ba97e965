package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ghtools",
	Short: "GitHub organization backup and App token tooling",
	Long: `ghtools bundles two GitHub administration utilities: a backup tool
that captures an organization's team memberships and team repository
access into JSON/CSV/Excel exports, and a GitHub App token manager for
generating, validating, and revoking installation access tokens.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".ghtools.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// verbosef prints to stderr only when --verbose is set.
func verbosef(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
