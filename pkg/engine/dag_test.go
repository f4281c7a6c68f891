package engine

import (
	"testing"
)

func step(id string, deps ...Dependency) *Step {
	return &Step{ID: id, Name: id, Dependencies: deps}
}

func TestOrderRespectsDependencies(t *testing.T) {
	steps := []*Step{
		step("packages"),
		step("resolve-asdf", Require("packages")),
		step("asdf-bootstrap", Require("resolve-asdf")),
		step("plugin:erlang", Require("asdf-bootstrap")),
		step("runtime:erlang", Require("plugin:erlang")),
		step("plugin:elixir", Require("asdf-bootstrap")),
		step("runtime:elixir", Require("plugin:elixir"), Require("runtime:erlang")),
	}

	order, err := NewGraphBuilder().Order(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != len(steps) {
		t.Fatalf("expected %d steps, got %d", len(steps), len(order))
	}

	pos := make(map[string]int, len(order))
	for i, s := range order {
		pos[s.ID] = i
	}

	before := func(a, b string) {
		t.Helper()
		if pos[a] >= pos[b] {
			t.Errorf("expected %s before %s, got order %v", a, b, ids(order))
		}
	}
	before("packages", "resolve-asdf")
	before("resolve-asdf", "asdf-bootstrap")
	before("plugin:erlang", "runtime:erlang")
	before("runtime:erlang", "runtime:elixir")
	before("plugin:elixir", "runtime:elixir")
}

func TestOrderIsDeterministic(t *testing.T) {
	steps := []*Step{
		step("a"),
		step("b"),
		step("c"),
		step("d", Require("a"), Require("b"), Require("c")),
	}

	first, err := NewGraphBuilder().Order(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := NewGraphBuilder().Order(steps)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range first {
			if first[j].ID != again[j].ID {
				t.Fatalf("order changed between runs: %v vs %v", ids(first), ids(again))
			}
		}
	}

	// Independent steps keep declaration order.
	want := []string{"a", "b", "c", "d"}
	for i, id := range ids(first) {
		if id != want[i] {
			t.Fatalf("expected declaration order %v, got %v", want, ids(first))
		}
	}
}

func TestOrderRejectsCycle(t *testing.T) {
	steps := []*Step{
		step("a", Require("c")),
		step("b", Require("a")),
		step("c", Require("b")),
	}
	if _, err := NewGraphBuilder().Order(steps); err == nil {
		t.Fatal("expected cycle error, got nil")
	}
}

func TestOrderRejectsUnknownDependency(t *testing.T) {
	steps := []*Step{
		step("a", Require("ghost")),
	}
	_, err := NewGraphBuilder().Order(steps)
	if err == nil {
		t.Fatal("expected unknown dependency error, got nil")
	}
	if KindOf(err) != ErrKindValidation {
		t.Errorf("expected validation error, got %s", KindOf(err))
	}
}

func TestOrderRejectsDuplicateID(t *testing.T) {
	steps := []*Step{step("a"), step("a")}
	if _, err := NewGraphBuilder().Order(steps); err == nil {
		t.Fatal("expected duplicate ID error, got nil")
	}
}

func TestOrderRejectsSelfDependency(t *testing.T) {
	steps := []*Step{step("a", Require("a"))}
	if _, err := NewGraphBuilder().Order(steps); err == nil {
		t.Fatal("expected self-dependency error, got nil")
	}
}

func ids(steps []*Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID
	}
	return out
}
