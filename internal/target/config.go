package target

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"padeploy/internal/security"
)

const (
	MinSecretLength        = 32
	DefaultBranch          = "main"
	DefaultBackupDir       = "backups"
	DefaultRequirements    = "requirements.txt"
	DefaultRetainCount     = 5
	DefaultPullTimeout     = 60
	DefaultInstallTimeout  = 600
	DefaultMigrateTimeout  = 300
	DefaultWSGIFilePattern = "/var/www/{user}_pythonanywhere_com_wsgi.py"
)

var ForbiddenSecrets = map[string]bool{
	"replace-with-secret": true,
	"topsecret":           true,
	"secret":              true,
	"password":            true,
	"changeme":            true,
}

// LoadConfig loads and validates the configuration from a YAML file.
// userOverride, when non-empty, replaces the configured operator account
// name for every target before path templates are expanded.
//
// Existence of the app root is deliberately not checked here: that is the
// orchestrator's pre-flight responsibility, so a config describing a remote
// target can still be rendered into a deployment script locally.
func LoadConfig(configPath, userOverride string) (*Config, map[string]*Target, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Initialize Targets map if it's nil (happens with empty YAML files)
	if config.Targets == nil {
		config.Targets = make(map[string]TargetConfig)
	}

	targets := make(map[string]*Target)
	for name, tc := range config.Targets {
		user := tc.User
		if userOverride != "" {
			user = userOverride
		}

		errors := ValidateTargetConfig(name, tc, user)
		if len(errors) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for target '%s':\n%s",
				name, strings.Join(errors, "\n"))
		}

		targets[name] = newTarget(name, tc, user)
	}

	return &config, targets, nil
}

// newTarget applies defaults and expands {user} path templates.
func newTarget(name string, tc TargetConfig, user string) *Target {
	branch := tc.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	backupDir := tc.BackupDir
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}

	requirements := tc.Requirements
	if requirements == "" {
		requirements = DefaultRequirements
	}

	retainCount := tc.RetainCount
	if retainCount == 0 {
		retainCount = DefaultRetainCount
	}

	wsgiFile := tc.WSGIFile
	if wsgiFile == "" {
		wsgiFile = DefaultWSGIFilePattern
	}

	pullTimeout := tc.PullTimeout
	if pullTimeout == 0 {
		pullTimeout = DefaultPullTimeout
	}

	installTimeout := tc.InstallTimeout
	if installTimeout == 0 {
		installTimeout = DefaultInstallTimeout
	}

	migrateTimeout := tc.MigrateTimeout
	if migrateTimeout == 0 {
		migrateTimeout = DefaultMigrateTimeout
	}

	migrations := tc.Migrations
	if migrations == nil {
		migrations = []string{}
	}

	envFiles := tc.EnvFiles
	if envFiles == nil {
		envFiles = []string{}
	}

	return &Target{
		Name:           name,
		User:           user,
		AppRoot:        ExpandUser(tc.AppRoot, user),
		Branch:         branch,
		DataFile:       tc.DataFile,
		BackupDir:      backupDir,
		WSGIFile:       ExpandUser(wsgiFile, user),
		Migrations:     migrations,
		RetainCount:    retainCount,
		EnvFiles:       envFiles,
		Requirements:   requirements,
		GitHubRepo:     tc.GitHubRepo,
		Secret:         tc.Secret,
		PullTimeout:    pullTimeout,
		InstallTimeout: installTimeout,
		MigrateTimeout: migrateTimeout,
	}
}

// ExpandUser substitutes the {user} placeholder in a path template.
func ExpandUser(pathTemplate, user string) string {
	return strings.ReplaceAll(pathTemplate, "{user}", user)
}

// ValidateTargetConfig validates a single target configuration.
func ValidateTargetConfig(name string, tc TargetConfig, user string) []string {
	var errors []string

	if err := security.ValidateTargetName(name); err != nil {
		errors = append(errors, fmt.Sprintf("  - Target '%s': invalid name: %v", name, err))
	}

	// Validate user (required because path templates depend on it)
	if user == "" {
		errors = append(errors, fmt.Sprintf("  - Target '%s': missing required 'user' field", name))
	} else if err := security.ValidateUserName(user); err != nil {
		errors = append(errors, fmt.Sprintf("  - Target '%s': invalid user '%s': %v", name, user, err))
	}

	// Validate app root
	if tc.AppRoot == "" {
		errors = append(errors, fmt.Sprintf("  - Target '%s': missing required 'app_root' field", name))
	} else {
		expanded := ExpandUser(tc.AppRoot, user)
		if !filepath.IsAbs(expanded) {
			errors = append(errors, fmt.Sprintf("  - Target '%s': app_root must be absolute, got '%s'", name, expanded))
		}
		if strings.Contains(expanded, "..") {
			errors = append(errors, fmt.Sprintf("  - Target '%s': app_root contains traversal elements: '%s'", name, expanded))
		}
	}

	// Validate data file (relative path under app root)
	if tc.DataFile == "" {
		errors = append(errors, fmt.Sprintf("  - Target '%s': missing required 'data_file' field", name))
	} else if filepath.IsAbs(tc.DataFile) {
		errors = append(errors, fmt.Sprintf("  - Target '%s': data_file must be relative to app_root, got '%s'", name, tc.DataFile))
	} else if strings.Contains(tc.DataFile, "..") {
		errors = append(errors, fmt.Sprintf("  - Target '%s': data_file contains traversal elements: '%s'", name, tc.DataFile))
	}

	if tc.BackupDir != "" && filepath.IsAbs(tc.BackupDir) {
		errors = append(errors, fmt.Sprintf("  - Target '%s': backup_dir must be relative to app_root, got '%s'", name, tc.BackupDir))
	}

	// Validate branch
	branch := tc.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	if err := security.ValidateBranchName(branch); err != nil {
		errors = append(errors, fmt.Sprintf("  - Target '%s': invalid branch '%s': %v", name, branch, err))
	}

	// Validate migration names (filename-like tokens, no separators)
	for i, m := range tc.Migrations {
		if m == "" || strings.ContainsAny(m, "/\\") || strings.Contains(m, "..") {
			errors = append(errors, fmt.Sprintf("  - Target '%s': migrations[%d] is not a valid step name: '%s'", name, i, m))
		}
	}

	// Validate env files
	for i, f := range tc.EnvFiles {
		if f == "" || filepath.IsAbs(f) || strings.Contains(f, "..") {
			errors = append(errors, fmt.Sprintf("  - Target '%s': env_files[%d] must be a relative path under app_root: '%s'", name, i, f))
		}
	}

	if tc.RetainCount < 0 {
		errors = append(errors, fmt.Sprintf("  - Target '%s': retain_count must be a positive integer, got %d", name, tc.RetainCount))
	}

	// Validate timeouts (must be positive if set, zero uses defaults)
	if tc.PullTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - Target '%s': pull_timeout must be a positive integer, got %d", name, tc.PullTimeout))
	}
	if tc.InstallTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - Target '%s': install_timeout must be a positive integer, got %d", name, tc.InstallTimeout))
	}
	if tc.MigrateTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - Target '%s': migrate_timeout must be a positive integer, got %d", name, tc.MigrateTimeout))
	}

	// Validate github_repo ("owner/repo")
	if tc.GitHubRepo != "" {
		parts := strings.Split(tc.GitHubRepo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errors = append(errors, fmt.Sprintf("  - Target '%s': github_repo must be in 'owner/repo' form, got '%s'", name, tc.GitHubRepo))
		}
	}

	// Secret is only required for webhook-triggered deployments, but when
	// present it must not be a placeholder.
	if tc.Secret != "" {
		if len(tc.Secret) < MinSecretLength {
			errors = append(errors, fmt.Sprintf("  - Target '%s': secret too short (minimum %d characters)", name, MinSecretLength))
		}
		if ForbiddenSecrets[strings.ToLower(tc.Secret)] {
			errors = append(errors, fmt.Sprintf("  - Target '%s': secret appears to be a placeholder value, replace with real secret", name))
		}
	}

	return errors
}

// DataFilePath returns the absolute path of the persisted data file.
func (t *Target) DataFilePath() string {
	return filepath.Join(t.AppRoot, t.DataFile)
}

// BackupDirPath returns the absolute path of the backup directory.
func (t *Target) BackupDirPath() string {
	return filepath.Join(t.AppRoot, t.BackupDir)
}

// MigrationPath returns the absolute path of a migration artifact.
func (t *Target) MigrationPath(step string) string {
	return filepath.Join(t.AppRoot, "migrations", step+".py")
}

// MatchesRef checks if a git ref matches the target's deployment branch.
func (t *Target) MatchesRef(ref string) bool {
	return ref == fmt.Sprintf("refs/heads/%s", t.Branch)
}
