package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func cleanInput() *PlanInput {
	return &PlanInput{
		Steps: []StepInput{
			{ID: "packages", Name: "Install system packages", Kind: "packages", Required: true},
			{ID: "runtime:erlang", Name: "Install erlang", Kind: "runtime", Required: true, Dependencies: []string{"plugin:erlang"}},
		},
		Runtimes: []RuntimeInput{
			{Name: "erlang", Version: "24.2.1"},
			{Name: "elixir", Version: "1.13.3", PluginURL: "https://github.com/asdf-vm/asdf-elixir.git"},
		},
		Profiles: []ProfileInput{
			{
				Path:    "~/.bashrc",
				Markers: []string{"rigup: asdf version manager"},
				Lines:   []string{". $HOME/.asdf/asdf.sh"},
			},
		},
		VersionManager: &VersionManagerInput{
			DocsURL: "https://asdf-vm.com/guide/getting-started.html",
			GitRepo: "https://github.com/asdf-vm/asdf.git",
		},
		Context: &Context{Timestamp: time.Now()},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestEvaluateCleanPlan(t *testing.T) {
	eng := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), cleanInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("expected clean plan to be allowed, violations: %v", res.Violations)
	}
	if len(res.Violations) != 0 {
		t.Errorf("unexpected violations: %v", res.Violations)
	}
	if len(res.EvaluatedPolicies) != len(GetBuiltinPolicies()) {
		t.Errorf("expected %d evaluated policies, got %d",
			len(GetBuiltinPolicies()), len(res.EvaluatedPolicies))
	}
}

func TestEvaluateRejectsFloatingVersions(t *testing.T) {
	for _, version := range []string{"latest", "1.x", "^24.0"} {
		input := cleanInput()
		input.Runtimes[0].Version = version

		eng := newTestEngine(t)
		res, err := eng.Evaluate(context.Background(), input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Allowed {
			t.Errorf("version %q: expected plan to be rejected", version)
			continue
		}
		found := false
		for _, v := range res.Violations {
			if v.Policy == "pinned-runtime-versions" && v.StepID == "runtime:erlang" {
				found = true
			}
		}
		if !found {
			t.Errorf("version %q: expected pinned-runtime-versions violation, got %v", version, res.Violations)
		}
	}
}

func TestEvaluateRejectsInsecurePluginSource(t *testing.T) {
	input := cleanInput()
	input.Runtimes[1].PluginURL = "http://github.com/asdf-vm/asdf-elixir.git"

	eng := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected plan with http plugin source to be rejected")
	}
	found := false
	for _, v := range res.Violations {
		if v.Policy == "https-plugin-source" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected https-plugin-source violation, got %v", res.Violations)
	}
}

func TestEvaluateRejectsPlaintextInstallSources(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PlanInput)
		stepID string
	}{
		{
			name:   "docs page over http",
			mutate: func(in *PlanInput) { in.VersionManager.DocsURL = "http://asdf-vm.com/guide/getting-started.html" },
			stepID: "resolve-asdf",
		},
		{
			name:   "clone source over git protocol",
			mutate: func(in *PlanInput) { in.VersionManager.GitRepo = "git://github.com/asdf-vm/asdf.git" },
			stepID: "asdf-bootstrap",
		},
	}

	for _, tc := range cases {
		input := cleanInput()
		tc.mutate(input)

		eng := newTestEngine(t)
		res, err := eng.Evaluate(context.Background(), input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if res.Allowed {
			t.Errorf("%s: expected plan to be rejected", tc.name)
			continue
		}
		found := false
		for _, v := range res.Violations {
			if v.Policy == "no-remote-install-scripts" && v.StepID == tc.stepID {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: expected no-remote-install-scripts violation on %s, got %v", tc.name, tc.stepID, res.Violations)
		}
	}
}

func TestEvaluateRejectsPipedInstallInProfile(t *testing.T) {
	input := cleanInput()
	input.Profiles[0].Lines = append(input.Profiles[0].Lines,
		"curl -fsSL https://example.com/install.sh | bash")

	eng := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected plan piping remote text into a shell to be rejected")
	}
	found := false
	for _, v := range res.Violations {
		if v.Policy == "no-remote-install-scripts" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected no-remote-install-scripts violation, got %v", res.Violations)
	}
}

func TestEvaluateRejectsEmptyMarker(t *testing.T) {
	input := cleanInput()
	input.Profiles[0].Markers = []string{"  "}

	eng := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected plan with empty profile marker to be rejected")
	}
}

func TestEvaluateNamingIsWarningOnly(t *testing.T) {
	input := cleanInput()
	input.Steps[0].ID = "Install Packages"

	eng := newTestEngine(t)
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("naming findings must not block, violations: %v", res.Violations)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Policy == "step-naming" && w.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected step-naming warning, got %v", res.Warnings)
	}
}

func TestSetEnabledSkipsPolicy(t *testing.T) {
	input := cleanInput()
	input.Runtimes[0].Version = "latest"

	eng := newTestEngine(t)
	if err := eng.SetEnabled("pinned-runtime-versions", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Errorf("disabled policy still blocked the plan: %v", res.Violations)
	}
}

func TestLoadPoliciesFromFile(t *testing.T) {
	dir := t.TempDir()
	src := `# Reject plans that skip the system package step.
# severity: error
package rigup.policies.custom

import rego.v1

deny contains violation if {
	count([s | some s in input.steps; s.kind == "packages"]) == 0
	violation := {"message": "plan has no package step", "severity": "error"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "require_packages.rego"), []byte(src), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("load policies: %v", err)
	}

	input := cleanInput()
	input.Steps = input.Steps[1:]
	res, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected custom policy to reject a plan without packages")
	}
	found := false
	for _, v := range res.Violations {
		if v.Policy == "require_packages" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected require_packages violation, got %v", res.Violations)
	}
}
