package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const testManifest = `
toolchain:
  version_manager:
    install_dir: /opt/asdf
    resolve_timeout: 10s
  runtimes:
    - name: erlang
      version: 24.2.1
    - name: elixir
      version: 1.13.3
  packages: [git, curl]
  editor: vim
  mix:
    hex_bootstrap: true
    phoenix:
      version: 1.6.6
profiles:
  - path: ~/.bashrc
    blocks:
      - marker: "rigup: asdf version manager"
        lines:
          - . "$HOME/.asdf/asdf.sh"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rigup.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	m, err := NewLoader().Load(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Toolchain.Runtimes) != 3 {
		t.Errorf("expected 3 default runtimes, got %d", len(m.Toolchain.Runtimes))
	}
	if m.Toolchain.VersionManager.DocsURL != DefaultAsdfDocsURL {
		t.Errorf("unexpected docs url %s", m.Toolchain.VersionManager.DocsURL)
	}
}

func TestLoadManifestAppliesDefaults(t *testing.T) {
	path := writeManifest(t, testManifest)
	m, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Declared values survive.
	if m.Toolchain.VersionManager.InstallDir != "/opt/asdf" {
		t.Errorf("install dir: got %s", m.Toolchain.VersionManager.InstallDir)
	}
	if m.Toolchain.VersionManager.ResolveTimeout.Std() != 10*time.Second {
		t.Errorf("resolve timeout: got %s", m.Toolchain.VersionManager.ResolveTimeout)
	}

	// Omitted values are filled.
	if m.Toolchain.VersionManager.DocsURL != DefaultAsdfDocsURL {
		t.Errorf("docs url not defaulted: %s", m.Toolchain.VersionManager.DocsURL)
	}
	if m.Toolchain.VersionManager.GitRepo != DefaultAsdfGitRepo {
		t.Errorf("git repo not defaulted: %s", m.Toolchain.VersionManager.GitRepo)
	}
	if m.Policy.Mode != "enforcing" {
		t.Errorf("policy mode not defaulted: %s", m.Policy.Mode)
	}
}

func TestLoadRejectsFloatingVersion(t *testing.T) {
	path := writeManifest(t, strings.Replace(testManifest, "version: 24.2.1", "version: latest", 1))
	_, err := NewLoader().Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for floating version, got nil")
	}
}

func TestLoadRejectsMissingRuntimes(t *testing.T) {
	path := writeManifest(t, `
toolchain:
  version_manager:
    install_dir: /opt/asdf
  packages: [git]
`)
	_, err := NewLoader().Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for missing runtimes, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestLoadAppliesOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := `
def _pin(m):
    for rt in m["toolchain"]["runtimes"]:
        if rt["name"] == "elixir":
            rt["version"] = "1.14.0"

_pin(manifest)
`
	if err := os.WriteFile(filepath.Join(dir, "overlay.star"), []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	path := filepath.Join(dir, "rigup.yaml")
	if err := os.WriteFile(path, []byte(testManifest+"overlay: overlay.star\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rt := range m.Toolchain.Runtimes {
		if rt.Name == "elixir" && rt.Version != "1.14.0" {
			t.Errorf("overlay did not rewrite elixir version: %s", rt.Version)
		}
	}
	if m.Overlay != "" {
		t.Errorf("overlay key survived rewriting: %s", m.Overlay)
	}
}

func TestLoadOverlayFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "overlay.star"), []byte("boom(\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	path := filepath.Join(dir, "rigup.yaml")
	if err := os.WriteFile(path, []byte(testManifest+"overlay: overlay.star\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	_, err := NewLoader().Load(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for broken overlay, got nil")
	}
}

func TestDurationParsing(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"10s"`, 10 * time.Second},
		{`"1m30s"`, 90 * time.Second},
		{`5000000000`, 5 * time.Second},
	}
	for _, tc := range cases {
		var d Duration
		if err := yaml.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		if d.Std() != tc.want {
			t.Errorf("parse %s: got %s, want %s", tc.in, d, tc.want)
		}
	}

	var d Duration
	if err := yaml.Unmarshal([]byte(`"fast"`), &d); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(30 * time.Second))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.TrimSpace(string(out)) != "30s" {
		t.Errorf("got %q, want 30s", strings.TrimSpace(string(out)))
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := ExpandHome("~/.asdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join(home, ".asdf") {
		t.Errorf("got %s", got)
	}

	got, err = ExpandHome("/opt/asdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/opt/asdf" {
		t.Errorf("absolute path changed: %s", got)
	}
}
