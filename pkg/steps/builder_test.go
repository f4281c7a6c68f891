package steps

import (
	"testing"

	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/engine"
)

func buildDefaultPlan(t *testing.T) *engine.Plan {
	t.Helper()
	b := NewBuilder(newFakeRunner(), nil)
	plan, err := b.Build(config.DefaultManifest(), "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	return plan
}

func hasDep(t *testing.T, plan *engine.Plan, stepID, targetID string, typ engine.DependencyType) bool {
	t.Helper()
	step, ok := plan.StepByID(stepID)
	if !ok {
		t.Fatalf("step %s not in plan", stepID)
	}
	for _, d := range step.Dependencies {
		if d.TargetID == targetID && d.Type == typ {
			return true
		}
	}
	return false
}

func TestBuildDefaultManifestOrders(t *testing.T) {
	plan := buildDefaultPlan(t)
	if _, err := engine.NewGraphBuilder().Order(plan.Steps); err != nil {
		t.Fatalf("plan does not order: %v", err)
	}
}

func TestBuildDependencyShape(t *testing.T) {
	plan := buildDefaultPlan(t)

	if !hasDep(t, plan, "resolve-asdf", "packages", engine.DependencyRequire) {
		t.Error("resolve-asdf must require packages")
	}
	if !hasDep(t, plan, "asdf-bootstrap", "resolve-asdf", engine.DependencyRequire) {
		t.Error("asdf-bootstrap must require resolve-asdf")
	}
	if !hasDep(t, plan, "runtime:erlang", "plugin:erlang", engine.DependencyRequire) {
		t.Error("runtime:erlang must require its plugin")
	}
	if !hasDep(t, plan, "runtime:elixir", "runtime:erlang", engine.DependencyRequire) {
		t.Error("runtime:elixir must require runtime:erlang")
	}
	if !hasDep(t, plan, "runtime:nodejs", "runtime:elixir", engine.DependencyOrder) {
		t.Error("runtime:nodejs should be ordered after runtime:elixir")
	}
	if !hasDep(t, plan, "hex-bootstrap", "runtime:elixir", engine.DependencyRequire) {
		t.Error("hex-bootstrap must require runtime:elixir")
	}
	if !hasDep(t, plan, "phoenix-archive", "hex-bootstrap", engine.DependencyRequire) {
		t.Error("phoenix-archive must require hex-bootstrap")
	}
}

func TestBuildProfileStepsRequireBootstrap(t *testing.T) {
	plan := buildDefaultPlan(t)
	found := 0
	for _, s := range plan.Steps {
		if s.Kind != engine.StepKindProfile {
			continue
		}
		found++
		if !hasDep(t, plan, s.ID, "asdf-bootstrap", engine.DependencyRequire) {
			t.Errorf("%s must require asdf-bootstrap", s.ID)
		}
	}
	if found == 0 {
		t.Fatal("default manifest produced no profile steps")
	}
}

func TestBuildEditorIsOptional(t *testing.T) {
	plan := buildDefaultPlan(t)
	editor, ok := plan.StepByID("editor")
	if !ok {
		t.Fatal("editor step missing")
	}
	if editor.Required {
		t.Error("editor must not be a required step")
	}
	if !hasDep(t, plan, "editor", "packages", engine.DependencyRequire) {
		t.Error("editor must require packages")
	}
	if !hasDep(t, plan, "editor", "phoenix-archive", engine.DependencyOrder) {
		t.Error("editor should be ordered after the last tool step")
	}
}

func TestBuildRuntimeEdgesIgnoreDeclarationOrder(t *testing.T) {
	m := config.DefaultManifest()
	byName := make(map[string]config.RuntimeSpec, len(m.Toolchain.Runtimes))
	for _, rt := range m.Toolchain.Runtimes {
		byName[rt.Name] = rt
	}
	m.Toolchain.Runtimes = []config.RuntimeSpec{
		byName["elixir"], byName["erlang"], byName["nodejs"],
	}

	b := NewBuilder(newFakeRunner(), nil)
	plan, err := b.Build(m, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	if !hasDep(t, plan, "runtime:elixir", "runtime:erlang", engine.DependencyRequire) {
		t.Error("runtime:elixir must require runtime:erlang")
	}
	if !hasDep(t, plan, "runtime:nodejs", "runtime:elixir", engine.DependencyOrder) {
		t.Error("runtime:nodejs should be ordered after runtime:elixir")
	}

	order, err := engine.NewGraphBuilder().Order(plan.Steps)
	if err != nil {
		t.Fatalf("plan does not order: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, s := range order {
		pos[s.ID] = i
	}
	if pos["runtime:erlang"] >= pos["runtime:elixir"] {
		t.Errorf("erlang sequenced at %d, elixir at %d", pos["runtime:erlang"], pos["runtime:elixir"])
	}
	if pos["runtime:elixir"] >= pos["runtime:nodejs"] {
		t.Errorf("elixir sequenced at %d, nodejs at %d", pos["runtime:elixir"], pos["runtime:nodejs"])
	}
}

func TestBuildHexWithoutElixirFails(t *testing.T) {
	m := config.DefaultManifest()
	var runtimes []config.RuntimeSpec
	for _, rt := range m.Toolchain.Runtimes {
		if rt.Name != "elixir" {
			runtimes = append(runtimes, rt)
		}
	}
	m.Toolchain.Runtimes = runtimes

	b := NewBuilder(newFakeRunner(), nil)
	_, err := b.Build(m, "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if engine.KindOf(err) != engine.ErrKindValidation {
		t.Errorf("expected validation kind, got %s", engine.KindOf(err))
	}
}

func TestBuildWithoutOptionalPieces(t *testing.T) {
	m := config.DefaultManifest()
	m.Toolchain.Editor = ""
	m.Toolchain.Mix.Phoenix.Version = ""

	b := NewBuilder(newFakeRunner(), nil)
	plan, err := b.Build(m, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if _, ok := plan.StepByID("editor"); ok {
		t.Error("editor step present without an editor in the manifest")
	}
	if _, ok := plan.StepByID("phoenix-archive"); ok {
		t.Error("phoenix step present without a phoenix version")
	}
	if _, ok := plan.StepByID("hex-bootstrap"); !ok {
		t.Error("hex-bootstrap missing")
	}
}
