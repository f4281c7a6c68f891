package engine

import (
	"fmt"
	"strings"
)

// GraphBuilder orders pipeline steps by their declared dependencies.
// Execution is strictly sequential, so the builder produces a single
// topological order rather than parallel levels; ties are broken by
// declaration order so plans stay deterministic.
type GraphBuilder struct {
	steps map[string]*Step

	// declaration index, used for stable ordering
	index map[string]int

	adjacency map[string][]string
	inDegree  map[string]int
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		steps:     make(map[string]*Step),
		index:     make(map[string]int),
		adjacency: make(map[string][]string),
		inDegree:  make(map[string]int),
	}
}

// Order validates the step graph and returns the steps in execution order.
// It rejects empty or duplicate IDs, dependencies on unknown steps, and
// cycles.
func (b *GraphBuilder) Order(steps []*Step) ([]*Step, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	if err := b.initialize(steps); err != nil {
		return nil, err
	}

	order := b.sort(steps)

	// Fewer ordered steps than declared means a dependency cycle.
	if len(order) != len(steps) {
		return nil, NewValidationError(
			fmt.Sprintf("dependency cycle involving: %s", strings.Join(b.remaining(order), ", ")), nil)
	}

	return order, nil
}

func (b *GraphBuilder) initialize(steps []*Step) error {
	for i, step := range steps {
		if step.ID == "" {
			return NewValidationError("step has empty ID", nil)
		}
		if _, exists := b.steps[step.ID]; exists {
			return NewValidationError(fmt.Sprintf("duplicate step ID: %s", step.ID), nil)
		}
		b.steps[step.ID] = step
		b.index[step.ID] = i
		b.inDegree[step.ID] = 0
	}

	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if dep.TargetID == step.ID {
				return NewValidationError(fmt.Sprintf("step %s depends on itself", step.ID), nil)
			}
			if _, exists := b.steps[dep.TargetID]; !exists {
				return NewValidationError(
					fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep.TargetID), nil)
			}
			b.adjacency[dep.TargetID] = append(b.adjacency[dep.TargetID], step.ID)
			b.inDegree[step.ID]++
		}
	}

	return nil
}

// sort runs Kahn's algorithm, always picking the ready step that was declared
// earliest.
func (b *GraphBuilder) sort(steps []*Step) []*Step {
	ready := make([]string, 0, len(steps))
	for _, step := range steps {
		if b.inDegree[step.ID] == 0 {
			ready = append(ready, step.ID)
		}
	}

	order := make([]*Step, 0, len(steps))
	for len(ready) > 0 {
		// earliest declared ready step
		best := 0
		for i := 1; i < len(ready); i++ {
			if b.index[ready[i]] < b.index[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		order = append(order, b.steps[id])

		for _, next := range b.adjacency[id] {
			b.inDegree[next]--
			if b.inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	return order
}

func (b *GraphBuilder) remaining(order []*Step) []string {
	placed := make(map[string]bool, len(order))
	for _, s := range order {
		placed[s.ID] = true
	}
	var rest []string
	for id := range b.steps {
		if !placed[id] {
			rest = append(rest, id)
		}
	}
	return rest
}
