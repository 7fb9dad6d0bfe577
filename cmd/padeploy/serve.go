package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"padeploy/internal/deploy"
	"padeploy/internal/history"
	"padeploy/internal/server"
	"padeploy/internal/target"
	"padeploy/internal/upstream"
	"padeploy/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	serveConfigFile string
	serveUser       string
	serveLogFile    string
	serveDBPath     string
	serveHost       string
	servePort       int
	serveTestMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests.

The server listens for push events and triggers deployments for the
matching target, serializing runs per target.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "c", getEnvOrDefault("PADEPLOY_CONFIG_FILE", ""), "Path to targets.yaml configuration file")
	serveCmd.Flags().StringVarP(&serveUser, "user", "u", "", "Override the operator account name for path templates")
	serveCmd.Flags().StringVar(&serveLogFile, "log", getEnvOrDefault("PADEPLOY_LOG_FILE", "./deployments.log"), "Path to log file")
	serveCmd.Flags().StringVar(&serveDBPath, "db", getEnvOrDefault("PADEPLOY_DB_PATH", "./padeploy.db"), "Path to SQLite history database")
	serveCmd.Flags().StringVar(&serveHost, "host", getEnvOrDefault("PADEPLOY_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", getEnvOrDefaultInt("PADEPLOY_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&serveTestMode, "test-mode", os.Getenv("PADEPLOY_SKIP_VALIDATION") == "1", "Enable test mode (skip rate limiting and history)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Determine config file path
	if serveConfigFile == "" {
		searchPaths := fileutil.DefaultConfigPaths(configFileName)
		serveConfigFile = fileutil.SearchPathsOptional(searchPaths)
		if serveConfigFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(serveLogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting padeploy")

	// Load configuration
	logger.Info("Loading configuration", "config", serveConfigFile)
	_, targets, err := target.LoadConfig(serveConfigFile, serveUser)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration validated successfully", "count", len(targets))

	// Warn if no targets are configured
	if len(targets) == 0 {
		logger.Warn("No targets configured in config file", "config", serveConfigFile)
		logger.Warn("The server will start but won't handle any deployments until targets are added")
	}

	// Create target registry
	registry := target.NewRegistry(targets)

	// Initialize history database
	var hist *history.History
	if !serveTestMode {
		logger.Info("Initializing history database", "db", serveDBPath)
		hist, err = history.NewHistory(serveDBPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	// Create and start server
	srv := server.NewServer(registry, hist, logger, serveTestMode)

	githubToken := os.Getenv("PADEPLOY_GITHUB_TOKEN")
	srv.NewDeployment = func(t *target.Target) *deploy.Deployment {
		d := deploy.New(t, logger)
		if t.GitHubRepo != "" {
			d.Upstream = upstream.NewClient(githubToken)
		}
		return d
	}

	logger.Info("Starting HTTP server", "host", serveHost, "port", servePort)
	if err := srv.Start(serveHost, servePort); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}
