// Package templates renders the copy-paste deployment script an operator
// can run in a hosting console when the orchestrator cannot reach the
// target directly. The default template ships embedded; a file with the
// same name in the config search paths overrides it.
package templates

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Template names
const (
	DeployScript = "deploy-script"
)

// ScriptData holds variables for deployment script rendering.
type ScriptData struct {
	Target       string
	RunID        string
	User         string
	AppRoot      string
	Branch       string
	DataFile     string
	BackupDir    string
	WSGIFile     string
	Requirements string
	Migrations   []string
	RetainCount  int
}

// defaultDeployScript mirrors the orchestrator's step sequence: verified
// backup first, code update, dependency install, ordered idempotent
// migrations with rollback, reload touch, retention prune.
const defaultDeployScript = `#!/bin/bash
# Deployment script for {{.Target}} (run {{.RunID}})
# Paste into a console on the target host and run as {{.User}}.
set -u

APP_ROOT="{{.AppRoot}}"
DATA_FILE="$APP_ROOT/{{.DataFile}}"
BACKUP_DIR="$APP_ROOT/{{.BackupDir}}"
RUN_ID="{{.RunID}}"
DATA_BASE="$(basename "$DATA_FILE")"
BACKUP_FILE="$BACKUP_DIR/${DATA_BASE%.*}_${RUN_ID}.${DATA_BASE##*.}"

cd "$APP_ROOT" || { echo "ERROR: app root not found"; exit 1; }
[ -d .git ] || { echo "ERROR: not a git working copy"; exit 1; }

# 1. Backup (verified; abort before touching anything on failure)
mkdir -p "$BACKUP_DIR"
if [ -f "$DATA_FILE" ]; then
    cp "$DATA_FILE" "$BACKUP_FILE"
    [ -s "$BACKUP_FILE" ] || { echo "ERROR: backup verification failed"; exit 1; }
    echo "Backup: $BACKUP_FILE"
else
    echo "No data file found, fresh install - skipping backup"
fi

# 2. Code update (set local changes aside; restore them if the pull fails)
git stash push --include-untracked -m "padeploy-$RUN_ID"
if ! git pull origin {{.Branch}}; then
    git stash pop || true
    echo "ERROR: code update failed, local changes restored"
    exit 1
fi

# 3. Dependencies
if [ -f venv/bin/pip ]; then PIP=venv/bin/pip
elif [ -f .venv/bin/pip ]; then PIP=.venv/bin/pip
else PIP=pip3; echo "WARNING: no virtualenv found, using ambient pip"
fi
"$PIP" install -r {{.Requirements}} || { echo "ERROR: dependency install failed"; exit 1; }

# 4. Migrations (in order; skip absent; roll back the data file on failure)
if [ -f venv/bin/python ]; then PY=venv/bin/python
elif [ -f .venv/bin/python ]; then PY=.venv/bin/python
else PY=python3
fi
{{- range .Migrations}}
if [ -f "migrations/{{.}}.py" ]; then
    if ! "$PY" "migrations/{{.}}.py"; then
        echo "ERROR: migration {{.}} failed"
        if [ -f "$BACKUP_FILE" ]; then
            cp "$BACKUP_FILE" "$DATA_FILE"
            echo "Data file restored from $BACKUP_FILE"
        fi
        echo "Manual rollback: cp $BACKUP_FILE $DATA_FILE"
        exit 1
    fi
else
    echo "Migration {{.}} not present, skipping"
fi
{{- end}}

# 5. Reload signal (mtime touch; host reloads the app)
touch "{{.WSGIFile}}" || echo "WARNING: could not touch WSGI file"

# 6. Retention: keep the {{.RetainCount}} most recent backups
ls -1t "$BACKUP_DIR"/${DATA_BASE%.*}_*."${DATA_BASE##*.}" 2>/dev/null | tail -n +{{add .RetainCount 1}} | while read -r old; do
    rm -f "$old"
done

echo "Deployment $RUN_ID complete"
`

// GetTemplatePaths returns the search paths for a template override.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "padeploy", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name, preferring a
// filesystem override and falling back to the embedded default.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	switch name {
	case DeployScript:
		return defaultDeployScript, nil
	}
	return "", fmt.Errorf("no default for template: %s", name)
}

// RenderDeployScript renders the deployment script for one run.
func RenderDeployScript(data ScriptData) (string, error) {
	tmplContent, err := GetTemplate(DeployScript)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(DeployScript).Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		DeployScript,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	validNames := map[string]bool{
		DeployScript: true,
	}
	return validNames[name]
}
