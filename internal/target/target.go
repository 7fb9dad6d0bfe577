package target

// Target represents a validated deployment target: one hosted application
// instance that the orchestrator can upgrade. Path templates from the
// configuration file have already been expanded with the operator account
// name.
type Target struct {
	Name           string
	User           string
	AppRoot        string
	Branch         string
	DataFile       string   // relative to AppRoot
	BackupDir      string   // relative to AppRoot
	WSGIFile       string   // absolute; its mtime is touched to request a reload
	Migrations     []string // ordered migration step names, without extension
	RetainCount    int
	EnvFiles       []string // relative to AppRoot, best-effort snapshot
	Requirements   string   // relative to AppRoot
	GitHubRepo     string   // optional "owner/repo" for upstream commit audit
	Secret         string   // webhook secret, required only for serve mode
	PullTimeout    int      // seconds
	InstallTimeout int      // seconds
	MigrateTimeout int      // seconds
}

// TargetConfig represents the YAML configuration for a target.
// Path fields may contain a {user} placeholder which is expanded with the
// configured (or overridden) operator account name.
type TargetConfig struct {
	User           string   `yaml:"user"`
	AppRoot        string   `yaml:"app_root"`
	Branch         string   `yaml:"branch"`
	DataFile       string   `yaml:"data_file"`
	BackupDir      string   `yaml:"backup_dir"`
	WSGIFile       string   `yaml:"wsgi_file"`
	Migrations     []string `yaml:"migrations"`
	RetainCount    int      `yaml:"retain_count"`
	EnvFiles       []string `yaml:"env_files"`
	Requirements   string   `yaml:"requirements"`
	GitHubRepo     string   `yaml:"github_repo"`
	Secret         string   `yaml:"secret"`
	PullTimeout    int      `yaml:"pull_timeout"`
	InstallTimeout int      `yaml:"install_timeout"`
	MigrateTimeout int      `yaml:"migrate_timeout"`
}

// Config represents the root configuration structure.
type Config struct {
	Targets map[string]TargetConfig `yaml:"targets"`
}
