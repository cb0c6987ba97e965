package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpkops/ghtools/internal/backup"
	"github.com/cpkops/ghtools/internal/export"
	"github.com/cpkops/ghtools/internal/githubapi"
	"github.com/cpkops/ghtools/internal/progress"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up an organization's team memberships",
	Long: `Captures which users belong to which teams, their team roles, and the
repositories each team grants access to. Results are always written as
JSON; CSV, multi-CSV, and Excel exports are optional (Excel is the
default when no format flag is given).`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().String("org", "", "organization name to back up")
	backupCmd.Flags().String("token", "", "GitHub token with admin:org permissions (or set GITHUB_TOKEN)")
	backupCmd.Flags().Int("batch-size", 0, "users processed per batch (overrides config)")
	backupCmd.Flags().Int("max-workers", 0, "worker pool size for the team cache build (overrides config)")
	backupCmd.Flags().Int("limit-users", 0, "limit the number of users processed (for testing)")
	backupCmd.Flags().String("output", "", "base output filename (default: {org}_teams_backup_{timestamp})")
	backupCmd.Flags().String("output-dir", "", "directory to place the backup tree in (overrides config)")
	backupCmd.Flags().Bool("csv", false, "export a single flat CSV file")
	backupCmd.Flags().Bool("multi-csv", false, "export multiple focused CSV files")
	backupCmd.Flags().Bool("excel", false, "export a formatted Excel workbook")
	backupCmd.Flags().Bool("json-only", false, "write only the JSON backup, skipping the default Excel export")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if org, _ := cmd.Flags().GetString("org"); org != "" {
		cfg.Org = org
	}
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		cfg.BatchSize = n
	}
	if n, _ := cmd.Flags().GetInt("max-workers"); n > 0 {
		cfg.MaxWorkers = n
	}
	if n, _ := cmd.Flags().GetInt("limit-users"); n > 0 {
		cfg.LimitUsers = n
	}
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		cfg.OutputDir = dir
	}
	if cfg.Org == "" {
		return fmt.Errorf("organization is required: pass --org or set org in %s", cfgFile)
	}

	tokenFlag, _ := cmd.Flags().GetString("token")
	token, err := resolveToken(tokenFlag)
	if err != nil {
		return err
	}

	// A Ctrl-C stops the run between users; partial results are
	// discarded, never exported.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := githubapi.NewClient(token)

	reporter := progress.NewReporter()
	started := false

	runner := backup.NewRunner(client, backup.Options{
		Org:        cfg.Org,
		BatchSize:  cfg.BatchSize,
		MaxWorkers: cfg.MaxWorkers,
		LimitUsers: cfg.LimitUsers,
		Logf:       verbosef,
		OnProgress: func(processed, total int, username string) {
			if !started {
				reporter.Start(total)
				started = true
			}
			reporter.Update(processed, username)
		},
	})

	fmt.Fprintf(os.Stderr, "Starting teams backup for organization %s (batch size %d, %d workers)\n",
		cfg.Org, cfg.BatchSize, cfg.MaxWorkers)
	if cfg.LimitUsers > 0 {
		fmt.Fprintf(os.Stderr, "Test mode: limited to %d users\n", cfg.LimitUsers)
	}

	result, err := runner.Run(ctx)
	if started {
		reporter.Finish()
	}
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	outputDir, err := createOutputTree(cfg.OutputDir, cfg.Org, cfg.LimitUsers > 0)
	if err != nil {
		return err
	}

	base, _ := cmd.Flags().GetString("output")
	if base == "" {
		suffix := ""
		if cfg.LimitUsers > 0 {
			suffix = "_test"
		}
		base = fmt.Sprintf("%s_teams_backup_%s%s", cfg.Org, start.Format("20060102_150405"), suffix)
	} else {
		base = filepath.Base(base)
		base = base[:len(base)-len(filepath.Ext(base))]
	}

	csvFlag, _ := cmd.Flags().GetBool("csv")
	multiCSV, _ := cmd.Flags().GetBool("multi-csv")
	excel, _ := cmd.Flags().GetBool("excel")
	jsonOnly, _ := cmd.Flags().GetBool("json-only")
	if jsonOnly {
		csvFlag, multiCSV, excel = false, false, false
	} else if !csvFlag && !multiCSV && !excel {
		verbosef("no export format specified, defaulting to --excel")
		excel = true
	}

	var created []string

	jsonFile := filepath.Join(outputDir, "json", base+".json")
	if err := export.ToJSON(result, jsonFile); err != nil {
		return err
	}
	created = append(created, jsonFile)

	if csvFlag {
		csvFile := filepath.Join(outputDir, "csv", base+".csv")
		if err := export.ToCSV(result, csvFile); err != nil {
			return err
		}
		created = append(created, csvFile)
	}
	if multiCSV {
		files, err := export.ToMultiCSV(result, filepath.Join(outputDir, "csv", base))
		if err != nil {
			return err
		}
		created = append(created, files...)
	}
	if excel {
		excelFile := filepath.Join(outputDir, "excel", base+".xlsx")
		if err := export.ToExcel(result, excelFile); err != nil {
			return err
		}
		created = append(created, excelFile)
	}

	printBackupSummary(result, created, time.Since(start))
	return nil
}

// createOutputTree builds the per-run output layout:
// <root>/github_backup_<org>[_test]/{json,csv,excel}. An existing tree
// for the same org is replaced.
func createOutputTree(root, org string, testMode bool) (string, error) {
	name := "github_backup_" + org
	if testMode {
		name += "_test"
	}
	dir := filepath.Join(root, name)

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing previous backup dir %s: %w", dir, err)
	}
	for _, sub := range []string{"json", "csv", "excel"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}
	return dir, nil
}

func printBackupSummary(result *backup.OrganizationBackup, files []string, duration time.Duration) {
	fmt.Println()
	fmt.Println("Teams backup complete!")
	fmt.Printf("  Organization:     %s\n", result.OrgName)
	fmt.Printf("  Backup time:      %s\n", result.BackupTimestamp)
	fmt.Printf("  Total users:      %d\n", result.Summary["total_users"])
	fmt.Printf("  Total teams:      %d\n", result.Summary["total_teams"])
	fmt.Printf("  Team memberships: %d\n", result.Summary["total_team_memberships"])
	fmt.Printf("  Users with teams: %d\n", result.Summary["users_with_teams"])
	fmt.Printf("  Duration:         %s\n", duration.Round(time.Millisecond))

	fmt.Println("\nCreated files:")
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			fmt.Printf("  %s\n", f)
			continue
		}
		fmt.Printf("  %s (%d bytes)\n", f, info.Size())
	}
}
