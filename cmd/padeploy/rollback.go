package main

import (
	"fmt"

	"padeploy/internal/backup"

	"github.com/spf13/cobra"
)

var (
	rollbackConfigFile string
	rollbackUser       string
	rollbackBackup     string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback TARGET",
	Short: "Restore a target's data file from a backup artifact",
	Long: `Restore a target's persisted data file from a backup artifact.

By default the most recent artifact is used; --backup selects a specific
one. This is the manual counterpart of the automatic migration rollback,
for when that rollback itself failed or a problem surfaced later.

Example:
  padeploy rollback studymomentum
  padeploy rollback studymomentum --backup /home/user/app/backups/goal_tracker_20250101_120000.db`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVarP(&rollbackConfigFile, "config", "c", getEnvOrDefault("PADEPLOY_CONFIG_FILE", ""), "Path to targets.yaml configuration file")
	rollbackCmd.Flags().StringVarP(&rollbackUser, "user", "u", "", "Override the operator account name for path templates")
	rollbackCmd.Flags().StringVar(&rollbackBackup, "backup", "", "Backup artifact to restore (default: most recent)")
}

func runRollback(cmd *cobra.Command, args []string) error {
	targetName := args[0]

	tgt, err := loadTarget(rollbackConfigFile, rollbackUser, targetName)
	if err != nil {
		return err
	}

	store := backup.NewStore(tgt.BackupDirPath(), tgt.DataFilePath())

	artifactPath := rollbackBackup
	if artifactPath == "" {
		latest, err := store.Latest()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if latest == nil {
			return fmt.Errorf("no backup artifacts found in %s", tgt.BackupDirPath())
		}
		artifactPath = latest.Path
	}

	fmt.Printf("Restoring data file for target '%s'...\n", targetName)
	if err := store.Restore(artifactPath); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Printf("\nRollback successful!\n")
	fmt.Printf("  Restored from: %s\n", artifactPath)
	fmt.Printf("  Data file:     %s\n", tgt.DataFilePath())
	fmt.Printf("\nRemember to reload the application (touch %s)\n", tgt.WSGIFile)

	return nil
}
