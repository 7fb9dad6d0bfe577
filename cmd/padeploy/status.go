package main

import (
	"fmt"

	"padeploy/internal/history"

	"github.com/spf13/cobra"
)

var (
	statusDBPath string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status TARGET",
	Short: "Show recent deployment runs for a target",
	Long:  `Show the most recent deployment runs recorded in the history database.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", getEnvOrDefault("PADEPLOY_DB_PATH", "./padeploy.db"), "Path to SQLite history database")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	targetName := args[0]

	hist, err := history.NewHistory(statusDBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	records, err := hist.GetRunHistory(cmd.Context(), targetName, statusLimit)
	if err != nil {
		return fmt.Errorf("failed to query run history: %w", err)
	}

	if len(records) == 0 {
		fmt.Printf("No deployment runs recorded for target '%s'\n", targetName)
		return nil
	}

	fmt.Printf("%-17s %-10s %-20s %-10s %s\n", "RUN", "STATUS", "STARTED", "DURATION", "DETAIL")
	for _, r := range records {
		duration := "-"
		if r.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *r.DurationSeconds)
		}
		detail := ""
		if r.FailedStep != nil {
			detail = "failed at " + *r.FailedStep
		} else if r.CommitHash != nil {
			detail = shortHash(*r.CommitHash)
		}
		fmt.Printf("%-17s %-10s %-20s %-10s %s\n",
			r.RunID, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, detail)
	}

	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
