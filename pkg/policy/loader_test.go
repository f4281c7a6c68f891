package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseRegoFileDefaults(t *testing.T) {
	src := `# Require a package step in every plan.
package rigup.policies.custom

import rego.v1

deny contains v if { false; v := {} }
`
	p := parseRegoFile("/etc/rigup/policies/require_packages.rego", []byte(src))
	if p.Name != "require_packages" {
		t.Errorf("name: got %s", p.Name)
	}
	if p.Description != "Require a package step in every plan." {
		t.Errorf("description: got %q", p.Description)
	}
	if p.Severity != SeverityError {
		t.Errorf("severity: got %s, want error default", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policies must start enabled")
	}
}

func TestParseRegoFileSeverityOverride(t *testing.T) {
	src := `# Style nit only.
# severity: warning
package rigup.policies.style

import rego.v1

deny contains v if { false; v := {} }
`
	p := parseRegoFile("style.rego", []byte(src))
	if p.Severity != SeverityWarning {
		t.Errorf("severity: got %s, want warning", p.Severity)
	}
}

func TestLoadFromPathsSkipsBrokenFilesInDirs(t *testing.T) {
	dir := t.TempDir()
	good := `package rigup.policies.good

import rego.v1

deny contains v if { false; v := {} }
`
	if err := os.WriteFile(filepath.Join(dir, "good.rego"), []byte(good), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewLoader(zerolog.Nop())
	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "good" {
		t.Errorf("expected only the good policy, got %v", policies)
	}
}

func TestLoadFromPathsJSONPolicy(t *testing.T) {
	dir := t.TempDir()
	doc := `{
  "name": "no-zypper",
  "description": "Example packaged policy",
  "severity": "warning",
  "enabled": true,
  "rego": "package rigup.policies.nozypper\n\nimport rego.v1\n\ndeny contains v if { false; v := {} }\n"
}`
	if err := os.WriteFile(filepath.Join(dir, "no_zypper.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewLoader(zerolog.Nop())
	policies, err := l.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "no_zypper.json")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected one policy, got %d", len(policies))
	}
	if policies[0].Name != "no-zypper" || policies[0].Severity != SeverityWarning {
		t.Errorf("unexpected policy %+v", policies[0])
	}
}
