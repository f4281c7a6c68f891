package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a recorded provisioning run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// StepStatus represents the recorded status of a pipeline step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusFailed    StepStatus = "failed"
)

// EventLevel represents the severity level of a journal event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one provisioning run. The journal exists for auditing and for the
// operator to inspect what a previous, possibly aborted, run got done;
// idempotency detection is always live, never inferred from the journal.
type Run struct {
	ID           string     `json:"id"`
	ManifestPath string     `json:"manifest_path"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	ErrorKind    *string    `json:"error_kind,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StepRecord is the persisted terminal result of one pipeline step.
type StepRecord struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	StepID      string     `json:"step_id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Status      StepStatus `json:"status"`
	ExitCode    int        `json:"exit_code"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event is an append-only journal event.
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	StepID    *string    `json:"step_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the persistence interface for the run journal.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, errKind, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Step records
	CreateStepRecord(ctx context.Context, rec *StepRecord) error
	ListStepRecords(ctx context.Context, runID string) ([]*StepRecord, error)

	// Events
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
