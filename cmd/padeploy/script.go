package main

import (
	"fmt"
	"os"
	"time"

	"padeploy/internal/deploy"
	"padeploy/pkg/templates"

	"github.com/spf13/cobra"
)

var (
	scriptConfigFile string
	scriptUser       string
	scriptOutput     string
)

var scriptCmd = &cobra.Command{
	Use:   "script TARGET",
	Short: "Emit a copy-paste deployment script for a target",
	Long: `Render a standalone shell script that performs the same deployment
sequence as 'padeploy deploy', for pasting into a console on the target
host when padeploy cannot run there directly.

The script is stamped with a fresh run identifier, so the backups it
creates follow the same naming convention as orchestrated runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().StringVarP(&scriptConfigFile, "config", "c", getEnvOrDefault("PADEPLOY_CONFIG_FILE", ""), "Path to targets.yaml configuration file")
	scriptCmd.Flags().StringVarP(&scriptUser, "user", "u", "", "Override the operator account name for path templates")
	scriptCmd.Flags().StringVarP(&scriptOutput, "output", "o", "", "Write the script to a file instead of stdout")
}

func runScript(cmd *cobra.Command, args []string) error {
	targetName := args[0]

	tgt, err := loadTarget(scriptConfigFile, scriptUser, targetName)
	if err != nil {
		return err
	}

	rendered, err := templates.RenderDeployScript(templates.ScriptData{
		Target:       tgt.Name,
		RunID:        deploy.NewRunID(time.Now()),
		User:         tgt.User,
		AppRoot:      tgt.AppRoot,
		Branch:       tgt.Branch,
		DataFile:     tgt.DataFile,
		BackupDir:    tgt.BackupDir,
		WSGIFile:     tgt.WSGIFile,
		Requirements: tgt.Requirements,
		Migrations:   tgt.Migrations,
		RetainCount:  tgt.RetainCount,
	})
	if err != nil {
		return fmt.Errorf("failed to render deployment script: %w", err)
	}

	if scriptOutput == "" {
		fmt.Print(rendered)
		return nil
	}

	if err := os.WriteFile(scriptOutput, []byte(rendered), 0755); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	fmt.Printf("Deployment script written to %s\n", scriptOutput)
	return nil
}
