package templates

import (
	"strings"
	"testing"
)

func testScriptData() ScriptData {
	return ScriptData{
		Target:       "studymomentum",
		RunID:        "20250101_120000",
		User:         "alice",
		AppRoot:      "/home/alice/studymomentum",
		Branch:       "main",
		DataFile:     "instance/goal_tracker.db",
		BackupDir:    "backups",
		WSGIFile:     "/var/www/alice_pythonanywhere_com_wsgi.py",
		Requirements: "requirements.txt",
		Migrations:   []string{"add_stage4_tables", "add_stage5_features"},
		RetainCount:  5,
	}
}

func TestRenderDeployScript(t *testing.T) {
	script, err := RenderDeployScript(testScriptData())
	if err != nil {
		t.Fatalf("RenderDeployScript failed: %v", err)
	}

	if !strings.HasPrefix(script, "#!/bin/bash") {
		t.Error("Script missing shebang")
	}

	expectations := []string{
		`APP_ROOT="/home/alice/studymomentum"`,
		`RUN_ID="20250101_120000"`,
		"git pull origin main",
		"migrations/add_stage4_tables.py",
		"migrations/add_stage5_features.py",
		`touch "/var/www/alice_pythonanywhere_com_wsgi.py"`,
		"install -r requirements.txt",
		"tail -n +6", // retain 5 -> prune from the 6th newest on
	}
	for _, want := range expectations {
		if !strings.Contains(script, want) {
			t.Errorf("Script missing %q", want)
		}
	}

	// Migration order must match configuration order
	stage4 := strings.Index(script, "add_stage4_tables")
	stage5 := strings.Index(script, "add_stage5_features")
	if stage4 == -1 || stage5 == -1 || stage4 > stage5 {
		t.Error("Migrations out of order in rendered script")
	}
}

func TestRenderDeployScriptNoMigrations(t *testing.T) {
	data := testScriptData()
	data.Migrations = nil

	script, err := RenderDeployScript(data)
	if err != nil {
		t.Fatalf("RenderDeployScript failed: %v", err)
	}
	if strings.Contains(script, "migrations/") {
		t.Error("Script should not reference migrations when none are configured")
	}
}

func TestGetTemplate(t *testing.T) {
	content, err := GetTemplate(DeployScript)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if !strings.Contains(content, "{{.Target}}") {
		t.Error("Template missing target placeholder")
	}
}

func TestGetTemplateUnknown(t *testing.T) {
	if _, err := GetTemplate("no-such-template"); err == nil {
		t.Error("Expected error for unknown template")
	}
}

func TestValidateTemplate(t *testing.T) {
	if !ValidateTemplate(DeployScript) {
		t.Error("Expected deploy-script to be valid")
	}
	if ValidateTemplate("bogus") {
		t.Error("Expected bogus template name to be invalid")
	}
}

func TestListTemplates(t *testing.T) {
	names := ListTemplates()
	if len(names) != 1 || names[0] != DeployScript {
		t.Errorf("ListTemplates = %v", names)
	}
}
