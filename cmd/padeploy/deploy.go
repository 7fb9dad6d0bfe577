package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"padeploy/internal/deploy"
	"padeploy/internal/history"
	"padeploy/internal/target"
	"padeploy/internal/upstream"
	"padeploy/pkg/fileutil"

	"github.com/spf13/cobra"
)

const configFileName = "targets.yaml"

var (
	deployConfigFile string
	deployUser       string
	deployDBPath     string
)

var deployCmd = &cobra.Command{
	Use:   "deploy TARGET",
	Short: "Run a deployment for a target",
	Long: `Run the full deployment sequence for a configured target:

- Pre-flight check of the working copy
- Verified backup of the persisted data file
- Environment file snapshot (best effort)
- Code update from the remote branch (local changes set aside)
- Dependency installation
- Ordered idempotent migrations, with rollback on failure
- Reload signal to the hosting process manager
- Retention sweep over backup artifacts

Exit code is 0 only on full success.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployConfigFile, "config", "c", getEnvOrDefault("PADEPLOY_CONFIG_FILE", ""), "Path to targets.yaml configuration file")
	deployCmd.Flags().StringVarP(&deployUser, "user", "u", "", "Override the operator account name for path templates")
	deployCmd.Flags().StringVar(&deployDBPath, "db", getEnvOrDefault("PADEPLOY_DB_PATH", "./padeploy.db"), "Path to SQLite history database (empty disables history)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	targetName := args[0]

	tgt, err := loadTarget(deployConfigFile, deployUser, targetName)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	d := deploy.New(tgt, logger)
	if tgt.GitHubRepo != "" {
		d.Upstream = upstream.NewClient(os.Getenv("PADEPLOY_GITHUB_TOKEN"))
	}

	run, runErr := d.Run(cmd.Context())

	printRunSummary(run, runErr)

	if deployDBPath != "" {
		if err := recordRun(cmd.Context(), deployDBPath, run, runErr); err != nil {
			logger.Error("Failed to record run history", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("deployment aborted at %s: %w", run.FailedStep, runErr)
	}
	return nil
}

// loadTarget resolves the config file, loads it and returns one target.
func loadTarget(configFile, userOverride, targetName string) (*target.Target, error) {
	if configFile == "" {
		searchPaths := fileutil.DefaultConfigPaths(configFileName)
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return nil, fmt.Errorf("configuration file not found")
		}
	}

	_, targets, err := target.LoadConfig(configFile, userOverride)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configFile, err)
	}

	tgt, exists := targets[targetName]
	if !exists {
		return nil, fmt.Errorf("target '%s' not found in config file %s", targetName, configFile)
	}

	return tgt, nil
}

// printRunSummary prints the human-readable status block for a run.
func printRunSummary(run *deploy.Run, runErr error) {
	fmt.Printf("\nDeployment run %s (%s, branch %s)\n", run.ID, run.Target, run.Branch)
	for _, step := range run.Steps {
		fmt.Printf("  %-20s %-8s %s\n", step.Step, step.Status, step.Detail)
	}

	fmt.Println()
	if runErr != nil {
		fmt.Printf("Status:  ABORTED at %s (%s)\n", run.FailedStep, deploy.KindOf(runErr))
	} else {
		fmt.Printf("Status:  succeeded in %.1fs\n", run.Duration().Seconds())
	}
	if run.BackupPath != "" {
		fmt.Printf("Backup:  %s\n", run.BackupPath)
		fmt.Printf("Restore: padeploy rollback %s --backup %s\n", run.Target, run.BackupPath)
	}
	if run.CommitHash != "" {
		fmt.Printf("Commit:  %s\n", run.CommitHash)
	}
}

// recordRun persists a run in the history database.
func recordRun(ctx context.Context, dbPath string, run *deploy.Run, runErr error) error {
	hist, err := history.NewHistory(dbPath)
	if err != nil {
		return err
	}
	defer hist.Close()

	duration := run.Duration().Seconds()

	var errorMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errorMsg = &msg
	}
	var failedStep *string
	if run.FailedStep != "" {
		failedStep = &run.FailedStep
	}
	var commitHash *string
	if run.CommitHash != "" {
		commitHash = &run.CommitHash
	}
	var backupPath *string
	if run.BackupPath != "" {
		backupPath = &run.BackupPath
	}

	_, err = hist.RecordRun(ctx, &history.RunRecord{
		Target:          run.Target,
		RunID:           run.ID,
		Branch:          run.Branch,
		Status:          string(run.Status),
		FailedStep:      failedStep,
		StartedAt:       run.StartedAt,
		CompletedAt:     &run.CompletedAt,
		DurationSeconds: &duration,
		CommitHash:      commitHash,
		BackupPath:      backupPath,
		ErrorMessage:    errorMsg,
	})
	return err
}
