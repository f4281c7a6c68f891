package engine

import (
	"context"
	"fmt"
	"time"
)

// StepKind categorizes what a step does. Kinds map onto the error taxonomy
// and onto metrics labels.
type StepKind string

const (
	// StepKindPackages installs system-level packages.
	StepKindPackages StepKind = "packages"

	// StepKindResolve resolves the version manager release from its docs page.
	StepKindResolve StepKind = "resolve"

	// StepKindBootstrap clones and pins the version manager itself.
	StepKindBootstrap StepKind = "bootstrap"

	// StepKindProfile appends a configuration block to a shell profile file.
	StepKindProfile StepKind = "profile"

	// StepKindPlugin registers a runtime plugin with the version manager.
	StepKindPlugin StepKind = "plugin"

	// StepKindRuntime installs and activates a pinned runtime version.
	StepKindRuntime StepKind = "runtime"

	// StepKindTool runs an auxiliary tool (hex bootstrap, framework generator, editor).
	StepKindTool StepKind = "tool"
)

// DependencyType is the kind of edge between two steps.
type DependencyType string

const (
	// DependencyRequire means the target must have succeeded (or been found
	// already satisfied) before this step may run.
	DependencyRequire DependencyType = "require"

	// DependencyOrder only fixes relative ordering; it carries no success
	// requirement beyond the run-wide abort-on-failure policy.
	DependencyOrder DependencyType = "order"
)

// Dependency is an edge in the step graph.
type Dependency struct {
	// TargetID is the ID of the step this depends on.
	TargetID string `json:"target_id"`

	// Type is the dependency type.
	Type DependencyType `json:"type"`
}

// Require builds a hard dependency edge.
func Require(targetID string) Dependency {
	return Dependency{TargetID: targetID, Type: DependencyRequire}
}

// After builds an ordering-only edge.
func After(targetID string) Dependency {
	return Dependency{TargetID: targetID, Type: DependencyOrder}
}

// Step is one unit of the provisioning pipeline. Steps are declared once,
// ordered by the sequencer, and never re-entered after completing within a run.
type Step struct {
	// ID uniquely identifies the step within the pipeline.
	ID string `json:"id"`

	// Name is the human-readable name announced before execution.
	Name string `json:"name"`

	// Description explains what the step will do.
	Description string `json:"description,omitempty"`

	// Kind categorizes the step.
	Kind StepKind `json:"kind"`

	// Dependencies are the steps that must precede this one.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Required marks steps whose failure aborts the run. All pipeline steps
	// are currently required; the flag exists so optional steps record a
	// failed result without aborting.
	Required bool `json:"required"`

	// Check reports whether the step's effect is already present on the
	// system. A true result skips Run. Nil means the step cannot cheaply
	// detect prior completion and always runs (Run itself stays idempotent).
	Check func(ctx context.Context) (bool, error) `json:"-"`

	// Run applies the step. It must be safe to repeat.
	Run func(ctx context.Context) error `json:"-"`
}

// StepStatus is the execution status of a step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusFailed    StepStatus = "failed"
)

// Satisfied returns true when the step's effect is in place, either because it
// ran successfully or because its check found it already done.
func (s StepStatus) Satisfied() bool {
	return s == StepStatusSucceeded || s == StepStatusSkipped
}

// IsTerminal returns true when the status is final within a run.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSucceeded || s == StepStatusSkipped || s == StepStatusFailed
}

// StepResult is the structured outcome of a single step, consumed by the
// sequencer for the continue/abort decision and persisted to the store.
type StepResult struct {
	// StepID is the step this result belongs to.
	StepID string `json:"step_id"`

	// Status is the final status of the step.
	Status StepStatus `json:"status"`

	// ExitCode is the exit code of the underlying command, when one ran.
	// Zero for pure in-process steps.
	ExitCode int `json:"exit_code"`

	// Error is the classified error when Status is failed.
	Error *StepError `json:"error,omitempty"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`
}

// RunState is the sequencer state machine.
type RunState string

const (
	// RunStateAwaitingConfirmation means the plan is built and the operator
	// has not yet approved it. No side effects have occurred.
	RunStateAwaitingConfirmation RunState = "awaiting-confirmation"

	// RunStateRunning means steps are executing.
	RunStateRunning RunState = "running"

	// RunStateCompleted means every step succeeded or was already satisfied.
	RunStateCompleted RunState = "completed"

	// RunStateAborted means a step failed and the remaining steps did not run.
	// Partial state is left on disk for manual resumption.
	RunStateAborted RunState = "aborted"
)

// IsTerminal returns true when the run state is final.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// Plan is the ordered provisioning pipeline for one host.
type Plan struct {
	// Steps in declaration order. Execution order is computed by the
	// sequencer and respects declared dependencies.
	Steps []*Step `json:"steps"`

	// ManifestPath is the manifest the plan was built from, for the journal.
	ManifestPath string `json:"manifest_path,omitempty"`
}

// StepByID returns the step with the given ID.
func (p *Plan) StepByID(id string) (*Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// RunReport summarizes a completed or aborted run.
type RunReport struct {
	// RunID is the journal identifier of the run.
	RunID string `json:"run_id"`

	// State is the terminal run state.
	State RunState `json:"state"`

	// Results holds one result per step that reached a terminal status,
	// in execution order.
	Results []StepResult `json:"results"`

	// FailedStep is the ID of the step that aborted the run, if any.
	FailedStep string `json:"failed_step,omitempty"`

	// Err is the classified error that aborted the run, if any.
	Err *StepError `json:"error,omitempty"`

	// StartedAt is when the run started executing.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`
}

// Summary returns a one-line accounting of the run.
func (r *RunReport) Summary() string {
	var succeeded, skipped, failed int
	for _, res := range r.Results {
		switch res.Status {
		case StepStatusSucceeded:
			succeeded++
		case StepStatusSkipped:
			skipped++
		case StepStatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("%d applied, %d already satisfied, %d failed", succeeded, skipped, failed)
}
