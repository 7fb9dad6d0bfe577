package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"padeploy/internal/backup"
	"padeploy/internal/security"
	"padeploy/internal/target"
	"padeploy/pkg/cmdutil"
	"padeploy/pkg/fileutil"
)

// UpstreamResolver resolves the head commit of a remote branch, used for
// audit only. Implemented by internal/upstream.
type UpstreamResolver interface {
	HeadCommit(ctx context.Context, ownerRepo, branch string) (string, error)
}

// Deployment orchestrates one upgrade of a target: backup, code update,
// dependency install, migrations with rollback-on-failure, reload signal,
// and backup retention. Execution is strictly sequential with early exit
// on the first fatal error.
type Deployment struct {
	Target   *target.Target
	Runner   Runner
	Store    *backup.Store
	Reload   ReloadNotifier
	Upstream UpstreamResolver // optional
	Logger   *slog.Logger

	// Now supplies the run timestamp; tests override it to control run
	// identifiers. Defaults to time.Now.
	Now func() time.Time
}

// New creates a deployment wired to real subprocesses and the target's
// filesystem layout.
func New(t *target.Target, logger *slog.Logger) *Deployment {
	return &Deployment{
		Target: t,
		Runner: NewSubprocessRunner(),
		Store:  backup.NewStore(t.BackupDirPath(), t.DataFilePath()),
		Reload: TouchNotifier{Path: t.WSGIFile},
		Logger: logger,
	}
}

// Run executes the full deployment sequence. The returned Run always
// carries the per-step outcomes; the error is non-nil (a *StepError) when
// the run aborted.
func (d *Deployment) Run(ctx context.Context) (*Run, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	start := now()
	run := &Run{
		ID:        NewRunID(start),
		Target:    d.Target.Name,
		Branch:    d.Target.Branch,
		StartedAt: start,
		Status:    RunAborted,
	}

	err := d.execute(ctx, run)
	run.CompletedAt = time.Now()
	if err == nil {
		run.Status = RunSucceeded
	}
	return run, err
}

func (d *Deployment) execute(ctx context.Context, run *Run) error {
	steps := []struct {
		name string
		fn   func(context.Context, *Run) error
	}{
		{StepPreflight, d.preflight},
		{StepBackup, d.backupData},
		{StepEnvSnapshot, d.snapshotEnv},
		{StepCodeUpdate, d.updateCode},
		{StepInstall, d.installDependencies},
		{StepMigrate, d.runMigrations},
		{StepReload, d.signalReload},
		{StepRetention, d.sweepBackups},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			run.FailedStep = step.name
			run.record(step.name, StatusFailed, "cancelled", 0)
			return fmt.Errorf("deployment cancelled before %s: %w", step.name, err)
		}
		if err := step.fn(ctx, run); err != nil {
			run.FailedStep = step.name
			return err
		}
	}
	return nil
}

// preflight verifies the target directory is a version-controlled working
// copy before anything else runs.
func (d *Deployment) preflight(ctx context.Context, run *Run) error {
	started := time.Now()

	if !fileutil.DirExists(d.Target.AppRoot) {
		run.record(StepPreflight, StatusFailed, "app root not found", time.Since(started))
		return stepErr(KindEnvironmentNotFound, StepPreflight,
			fmt.Errorf("target directory does not exist: %s", d.Target.AppRoot))
	}

	gitDir := filepath.Join(d.Target.AppRoot, ".git")
	if !fileutil.DirExists(gitDir) {
		run.record(StepPreflight, StatusFailed, "version-control metadata missing", time.Since(started))
		return stepErr(KindEnvironmentNotFound, StepPreflight,
			fmt.Errorf("not a git working copy (missing %s)", gitDir))
	}

	if err := security.ValidateBranchName(d.Target.Branch); err != nil {
		run.record(StepPreflight, StatusFailed, "invalid branch", time.Since(started))
		return stepErr(KindEnvironmentNotFound, StepPreflight, err)
	}

	// Best-effort audit of the upstream branch head; never fatal.
	if d.Upstream != nil && d.Target.GitHubRepo != "" {
		if sha, err := d.Upstream.HeadCommit(ctx, d.Target.GitHubRepo, d.Target.Branch); err != nil {
			d.Logger.Warn("upstream head lookup failed", "repo", d.Target.GitHubRepo, "error", err)
		} else {
			run.UpstreamCommit = sha
			d.Logger.Info("upstream head", "repo", d.Target.GitHubRepo, "commit", sha)
		}
	}

	run.record(StepPreflight, StatusOK, d.Target.AppRoot, time.Since(started))
	d.Logger.Info("preflight ok", "target", d.Target.Name, "root", d.Target.AppRoot)
	return nil
}

// backupData copies the data file to a verified backup artifact. No code
// or schema change may run without this artifact on disk, unless no data
// file existed to back up (first-ever deployment).
func (d *Deployment) backupData(ctx context.Context, run *Run) error {
	started := time.Now()

	if !fileutil.FileExists(d.Target.DataFilePath()) {
		run.record(StepBackup, StatusSkipped, "no data file, fresh install", time.Since(started))
		d.Logger.Info("no data file to back up, skipping", "path", d.Target.DataFilePath())
		return nil
	}

	path, err := d.Store.Create(run.ID)
	if err != nil {
		run.record(StepBackup, StatusFailed, err.Error(), time.Since(started))
		return stepErr(KindBackupVerificationFailed, StepBackup, err)
	}

	run.BackupPath = path
	run.record(StepBackup, StatusOK, path, time.Since(started))
	d.Logger.Info("backup verified", "artifact", path)
	return nil
}

// snapshotEnv copies environment files next to the backup artifact.
// Best effort only.
func (d *Deployment) snapshotEnv(ctx context.Context, run *Run) error {
	started := time.Now()

	if len(d.Target.EnvFiles) == 0 {
		run.record(StepEnvSnapshot, StatusSkipped, "no env files configured", time.Since(started))
		return nil
	}

	copied, warnings := d.Store.SnapshotEnv(run.ID, d.Target.AppRoot, d.Target.EnvFiles)
	for _, w := range warnings {
		d.Logger.Warn("env snapshot", "warning", w)
	}

	status := StatusOK
	detail := fmt.Sprintf("%d file(s) copied", len(copied))
	if len(warnings) > 0 {
		status = StatusWarning
		detail = fmt.Sprintf("%d copied, %d warning(s)", len(copied), len(warnings))
	}
	run.record(StepEnvSnapshot, status, detail, time.Since(started))
	return nil
}

// updateCode sets aside uncommitted changes, then pulls the remote branch.
// On pull failure the set-aside changes are popped back so the working
// copy is left in its pre-deployment state.
func (d *Deployment) updateCode(ctx context.Context, run *Run) error {
	started := time.Now()
	root := d.Target.AppRoot
	timeout := time.Duration(d.Target.PullTimeout) * time.Second

	// Set aside any local modifications; this is a push target, not a
	// development sandbox.
	stashMsg := "padeploy-" + run.ID
	res, err := d.Runner.Run(ctx, root, timeout,
		[]string{"git", "stash", "push", "--include-untracked", "-m", stashMsg})
	if err != nil || !res.OK() {
		run.record(StepCodeUpdate, StatusFailed, "git stash failed", time.Since(started))
		return stepErr(KindCodeUpdateFailed, StepCodeUpdate, runError("git stash", res, err))
	}
	stashed := !strings.Contains(string(res.Output), "No local changes to save")
	if stashed {
		d.Logger.Info("local changes set aside", "stash", stashMsg)
	}

	res, err = d.Runner.Run(ctx, root, timeout,
		[]string{"git", "pull", "origin", d.Target.Branch})
	if err != nil || !res.OK() {
		pullErr := runError("git pull", res, err)
		detail := "git pull failed"
		if stashed {
			popRes, popErr := d.Runner.Run(ctx, root, timeout, []string{"git", "stash", "pop"})
			if popErr != nil || !popRes.OK() {
				// The stash entry survives a failed pop; tell the operator.
				detail = fmt.Sprintf("git pull failed; restoring local changes also failed, recover with: git stash pop (stash %s)", stashMsg)
				d.Logger.Error("failed to restore set-aside changes", "stash", stashMsg, "error", popErr)
			} else {
				detail = "git pull failed; local changes restored"
			}
		}
		run.record(StepCodeUpdate, StatusFailed, detail, time.Since(started))
		return stepErr(KindCodeUpdateFailed, StepCodeUpdate, pullErr)
	}

	// Record what was deployed; best effort.
	if res, err := d.Runner.Run(ctx, root, timeout, []string{"git", "rev-parse", "HEAD"}); err == nil && res.OK() {
		run.CommitHash = strings.TrimSpace(string(res.Output))
	}

	run.record(StepCodeUpdate, StatusOK, "branch "+d.Target.Branch, time.Since(started))
	d.Logger.Info("code updated", "branch", d.Target.Branch, "commit", run.CommitHash)
	return nil
}

// installDependencies installs declared dependencies with the target's
// isolated environment when one exists. Fatal on failure; the already
// updated code is left in place for the operator to fix dependencies
// against (see DESIGN.md).
func (d *Deployment) installDependencies(ctx context.Context, run *Run) error {
	started := time.Now()
	root := d.Target.AppRoot
	timeout := time.Duration(d.Target.InstallTimeout) * time.Second

	reqPath := filepath.Join(root, d.Target.Requirements)
	if !fileutil.FileExists(reqPath) {
		run.record(StepInstall, StatusSkipped, "no "+d.Target.Requirements, time.Since(started))
		d.Logger.Info("no requirements file, skipping dependency install", "path", reqPath)
		return nil
	}

	pip, ambient := d.pipCommand()
	if ambient {
		d.Logger.Warn("no virtualenv found, using ambient pip", "root", root)
	}

	res, err := d.Runner.Run(ctx, root, timeout, append(pip, "install", "-r", d.Target.Requirements))
	if err != nil || !res.OK() {
		run.record(StepInstall, StatusFailed, "pip install failed", time.Since(started))
		return stepErr(KindDependencyInstallFailed, StepInstall, runError("pip install", res, err))
	}

	status := StatusOK
	detail := d.Target.Requirements
	if ambient {
		status = StatusWarning
		detail = d.Target.Requirements + " (ambient environment)"
	}
	run.record(StepInstall, status, detail, time.Since(started))
	d.Logger.Info("dependencies installed", "requirements", reqPath)
	return nil
}

// runMigrations executes migration steps in the fixed configured order.
// Absent artifacts are skipped; the first failure restores the data file
// from the verified backup and aborts. Migrations are trusted to be
// self-idempotent; no applied-migration ledger is kept.
func (d *Deployment) runMigrations(ctx context.Context, run *Run) error {
	started := time.Now()
	root := d.Target.AppRoot
	timeout := time.Duration(d.Target.MigrateTimeout) * time.Second

	if len(d.Target.Migrations) == 0 {
		run.record(StepMigrate, StatusSkipped, "no migrations configured", time.Since(started))
		return nil
	}

	python := d.pythonCommand()
	var applied, skipped []string

	for _, step := range d.Target.Migrations {
		path := d.Target.MigrationPath(step)
		if !fileutil.FileExists(path) {
			skipped = append(skipped, step)
			d.Logger.Info("migration artifact absent, skipping", "step", step)
			continue
		}

		d.Logger.Info("running migration", "step", step)
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		res, err := d.Runner.Run(ctx, root, timeout, append(python, rel))
		if err != nil || !res.OK() {
			migErr := runError("migration "+step, res, err)
			detail := fmt.Sprintf("migration %s failed", step)
			if run.BackupPath != "" {
				if restoreErr := d.Store.Restore(run.BackupPath); restoreErr != nil {
					detail += "; automatic rollback FAILED: " + restoreErr.Error()
					d.Logger.Error("automatic rollback failed", "step", step, "error", restoreErr)
				} else {
					detail += "; data file restored from " + run.BackupPath
					d.Logger.Info("data file restored from backup", "artifact", run.BackupPath)
				}
				// Printed even after a successful automated rollback, in
				// case that rollback itself failed silently.
				d.Logger.Info("manual rollback command",
					"command", cmdutil.FormatCommand([]string{"cp", run.BackupPath, d.Target.DataFilePath()}))
			}
			run.record(StepMigrate, StatusFailed, detail, time.Since(started))
			return stepErr(KindMigrationFailed, StepMigrate, migErr)
		}
		applied = append(applied, step)
	}

	detail := fmt.Sprintf("%d applied, %d skipped", len(applied), len(skipped))
	run.record(StepMigrate, StatusOK, detail, time.Since(started))
	d.Logger.Info("migrations complete", "applied", applied, "skipped", skipped)
	return nil
}

// signalReload asks the hosting process manager to reload the application.
// Fire and forget: failure is logged, never fatal, and success only means
// the signal was sent.
func (d *Deployment) signalReload(ctx context.Context, run *Run) error {
	started := time.Now()

	if err := d.Reload.NotifyReload(); err != nil {
		run.record(StepReload, StatusWarning, err.Error(), time.Since(started))
		d.Logger.Warn("reload signal failed", "error", err)
		return nil
	}

	run.record(StepReload, StatusOK, "reload requested", time.Since(started))
	d.Logger.Info("reload requested", "wsgi", d.Target.WSGIFile)
	return nil
}

// sweepBackups prunes backup artifacts to the retain_count most recent.
// Runs only after a successful deployment and never deletes the artifact
// just created (it is always among the newest).
func (d *Deployment) sweepBackups(ctx context.Context, run *Run) error {
	started := time.Now()

	deleted, err := d.Store.Sweep(d.Target.RetainCount)
	if err != nil {
		run.record(StepRetention, StatusWarning, err.Error(), time.Since(started))
		d.Logger.Warn("retention sweep incomplete", "error", err)
		return nil
	}

	run.record(StepRetention, StatusOK, fmt.Sprintf("%d artifact(s) pruned", len(deleted)), time.Since(started))
	if len(deleted) > 0 {
		d.Logger.Info("old backups pruned", "count", len(deleted))
	}
	return nil
}

// pipCommand returns the pip invocation, preferring the target's isolated
// environment (venv/ or .venv/). ambient is true when neither exists.
func (d *Deployment) pipCommand() (cmd []string, ambient bool) {
	for _, env := range []string{"venv", ".venv"} {
		pip := filepath.Join(d.Target.AppRoot, env, "bin", "pip")
		if fileutil.FileExists(pip) {
			return []string{pip}, false
		}
	}
	return []string{"pip3"}, true
}

// pythonCommand returns the python interpreter, preferring the target's
// isolated environment.
func (d *Deployment) pythonCommand() []string {
	for _, env := range []string{"venv", ".venv"} {
		python := filepath.Join(d.Target.AppRoot, env, "bin", "python")
		if fileutil.FileExists(python) {
			return []string{python}
		}
	}
	return []string{"python3"}
}

// runError folds a command result and execution error into one error value.
func runError(what string, res *Result, err error) error {
	output := ""
	if res != nil && len(res.Output) > 0 {
		output = ": " + strings.TrimSpace(string(res.Output))
	}
	if err != nil {
		return fmt.Errorf("%s: %w%s", what, err, output)
	}
	if res != nil {
		return fmt.Errorf("%s exited with code %d%s", what, res.ExitCode, output)
	}
	return fmt.Errorf("%s failed", what)
}
