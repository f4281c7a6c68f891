package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rigup/rigup/pkg/stores"
	"github.com/rigup/rigup/pkg/telemetry"
)

func newTestTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}
	return tel
}

// recordingStore counts journal writes so tests can assert on side effects.
type recordingStore struct {
	runsCreated    int
	recordsCreated int
	statusUpdates  int
}

func (r *recordingStore) Init(context.Context) error    { return nil }
func (r *recordingStore) Close() error                  { return nil }
func (r *recordingStore) Migrate(context.Context) error { return nil }

func (r *recordingStore) CreateRun(context.Context, *stores.Run) error {
	r.runsCreated++
	return nil
}
func (r *recordingStore) GetRun(context.Context, string) (*stores.Run, error) { return nil, nil }
func (r *recordingStore) UpdateRunStatus(context.Context, string, stores.RunStatus, *string, *string) error {
	r.statusUpdates++
	return nil
}
func (r *recordingStore) ListRuns(context.Context, int, int) ([]*stores.Run, error) {
	return nil, nil
}
func (r *recordingStore) CreateStepRecord(context.Context, *stores.StepRecord) error {
	r.recordsCreated++
	return nil
}
func (r *recordingStore) ListStepRecords(context.Context, string) ([]*stores.StepRecord, error) {
	return nil, nil
}
func (r *recordingStore) AppendEvent(context.Context, *stores.Event) error { return nil }
func (r *recordingStore) GetEvents(context.Context, *string, int, int) ([]*stores.Event, error) {
	return nil, nil
}
func (r *recordingStore) HealthCheck(context.Context) error { return nil }

func approve(*Plan) (bool, error) { return true, nil }
func decline(*Plan) (bool, error) { return false, nil }

func TestExecuteRunsStepsInOrder(t *testing.T) {
	var executed []string
	mk := func(id string, deps ...Dependency) *Step {
		return &Step{
			ID:           id,
			Name:         id,
			Kind:         StepKindRuntime,
			Dependencies: deps,
			Required:     true,
			Run: func(ctx context.Context) error {
				executed = append(executed, id)
				return nil
			},
		}
	}

	plan := &Plan{Steps: []*Step{
		mk("runtime:elixir", Require("runtime:erlang")),
		mk("runtime:erlang"),
		mk("runtime:nodejs", After("runtime:elixir")),
	}}

	seq := NewSequencer(newTestTelemetry(t), nil)
	report, err := seq.Execute(context.Background(), plan, approve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.State != RunStateCompleted {
		t.Fatalf("expected completed run, got %s", report.State)
	}

	want := []string{"runtime:erlang", "runtime:elixir", "runtime:nodejs"}
	if len(executed) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), executed)
	}
	for i, id := range want {
		if executed[i] != id {
			t.Fatalf("expected execution order %v, got %v", want, executed)
		}
	}
}

func TestExecuteSkipsSatisfiedSteps(t *testing.T) {
	ran := false
	plan := &Plan{Steps: []*Step{{
		ID:   "packages",
		Name: "packages",
		Kind: StepKindPackages,
		Check: func(ctx context.Context) (bool, error) {
			return true, nil
		},
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	}}}

	seq := NewSequencer(newTestTelemetry(t), nil)
	report, err := seq.Execute(context.Background(), plan, approve)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Error("run executed despite satisfied check")
	}
	if report.Results[0].Status != StepStatusSkipped {
		t.Errorf("expected skipped status, got %s", report.Results[0].Status)
	}
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	var executed []string
	ok := func(id string, deps ...Dependency) *Step {
		return &Step{ID: id, Name: id, Kind: StepKindRuntime, Dependencies: deps, Required: true,
			Run: func(ctx context.Context) error {
				executed = append(executed, id)
				return nil
			}}
	}

	plan := &Plan{Steps: []*Step{
		ok("plugin:erlang"),
		{
			ID: "runtime:erlang", Name: "runtime:erlang", Kind: StepKindRuntime,
			Dependencies: []Dependency{Require("plugin:erlang")},
			Required:     true,
			Run: func(ctx context.Context) error {
				return NewRuntimeInstallError("erlang", "24.2.1", 1, errors.New("build failed"))
			},
		},
		ok("runtime:elixir", Require("runtime:erlang")),
	}}

	store := &recordingStore{}
	seq := NewSequencer(newTestTelemetry(t), StaticStore(store))
	report, err := seq.Execute(context.Background(), plan, approve)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if report.State != RunStateAborted {
		t.Errorf("expected aborted run, got %s", report.State)
	}
	if report.FailedStep != "runtime:erlang" {
		t.Errorf("expected failed step runtime:erlang, got %s", report.FailedStep)
	}
	if KindOf(err) != ErrKindRuntimeInstall {
		t.Errorf("expected runtime-install error kind, got %s", KindOf(err))
	}
	if ExitCodeOf(err) != 1 {
		t.Errorf("expected exit code 1, got %d", ExitCodeOf(err))
	}
	for _, id := range executed {
		if id == "runtime:elixir" {
			t.Error("step after failure was executed")
		}
	}
	if store.statusUpdates != 1 {
		t.Errorf("expected 1 run status update, got %d", store.statusUpdates)
	}
}

func TestExecuteDeclineHasNoSideEffects(t *testing.T) {
	ran := false
	plan := &Plan{Steps: []*Step{{
		ID: "packages", Name: "packages", Kind: StepKindPackages,
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	}}}

	store := &recordingStore{}
	opened := false
	seq := NewSequencer(newTestTelemetry(t), func(context.Context) (stores.Store, error) {
		opened = true
		return store, nil
	})
	report, err := seq.Execute(context.Background(), plan, decline)
	if err == nil {
		t.Fatal("expected decline error, got nil")
	}
	if !IsUserDeclined(err) {
		t.Fatalf("expected user-declined error, got %v", err)
	}
	if report != nil {
		t.Errorf("expected no report on decline, got %+v", report)
	}
	if ran {
		t.Error("step executed despite decline")
	}
	if opened {
		t.Error("journal opened despite decline")
	}
	if store.runsCreated != 0 || store.recordsCreated != 0 || store.statusUpdates != 0 {
		t.Errorf("journal written despite decline: %+v", store)
	}
}

func TestExecuteDeclineCreatesNoJournalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	seq := NewSequencer(newTestTelemetry(t), func(context.Context) (stores.Store, error) {
		store, err := stores.NewSQLiteStore(stores.Config{Path: path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	})

	plan := &Plan{Steps: []*Step{{
		ID: "packages", Name: "packages", Kind: StepKindPackages, Required: true,
		Run: func(ctx context.Context) error { return nil },
	}}}

	if _, err := seq.Execute(context.Background(), plan, decline); !IsUserDeclined(err) {
		t.Fatalf("expected user-declined error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("journal file exists after decline (stat err: %v)", err)
	}
}

func TestExecuteCheckFailureAborts(t *testing.T) {
	plan := &Plan{Steps: []*Step{{
		ID: "profile:~/.bashrc", Name: "profile", Kind: StepKindProfile, Required: true,
		Check: func(ctx context.Context) (bool, error) {
			return false, NewIOError("read profile", errors.New("permission denied"))
		},
		Run: func(ctx context.Context) error { return nil },
	}}}

	seq := NewSequencer(newTestTelemetry(t), nil)
	report, err := seq.Execute(context.Background(), plan, approve)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if KindOf(err) != ErrKindIO {
		t.Errorf("expected io error kind, got %s", KindOf(err))
	}
	if report.State != RunStateAborted {
		t.Errorf("expected aborted run, got %s", report.State)
	}
}

func TestExecuteResumeSkipsCompletedWork(t *testing.T) {
	// First run aborts at the second step; on re-run the first step's check
	// reports satisfied and only the remaining work executes.
	firstDone := false
	secondAttempts := 0

	mkPlan := func(failSecond bool) *Plan {
		return &Plan{Steps: []*Step{
			{
				ID: "asdf-bootstrap", Name: "bootstrap", Kind: StepKindBootstrap, Required: true,
				Check: func(ctx context.Context) (bool, error) { return firstDone, nil },
				Run: func(ctx context.Context) error {
					firstDone = true
					return nil
				},
			},
			{
				ID: "runtime:erlang", Name: "erlang", Kind: StepKindRuntime,
				Dependencies: []Dependency{Require("asdf-bootstrap")},
				Required:     true,
				Run: func(ctx context.Context) error {
					secondAttempts++
					if failSecond {
						return NewRuntimeInstallError("erlang", "24.2.1", 1, errors.New("network flake"))
					}
					return nil
				},
			},
		}}
	}

	seq := NewSequencer(newTestTelemetry(t), nil)

	if _, err := seq.Execute(context.Background(), mkPlan(true), approve); err == nil {
		t.Fatal("expected first run to abort")
	}

	report, err := seq.Execute(context.Background(), mkPlan(false), approve)
	if err != nil {
		t.Fatalf("unexpected error on resume: %v", err)
	}
	if report.State != RunStateCompleted {
		t.Fatalf("expected completed resume, got %s", report.State)
	}
	if report.Results[0].Status != StepStatusSkipped {
		t.Errorf("expected bootstrap skipped on resume, got %s", report.Results[0].Status)
	}
	if secondAttempts != 2 {
		t.Errorf("expected erlang install attempted twice, got %d", secondAttempts)
	}
}

func TestExecuteOptionalFailureDoesNotAbort(t *testing.T) {
	editorRan := false
	plan := &Plan{Steps: []*Step{
		{
			ID: "packages", Name: "packages", Kind: StepKindPackages, Required: true,
			Run: func(ctx context.Context) error { return nil },
		},
		{
			ID: "editor", Name: "editor", Kind: StepKindTool,
			Dependencies: []Dependency{Require("packages")},
			Run: func(ctx context.Context) error {
				editorRan = true
				return NewExternalToolError("vim", 100, errors.New("no candidate"))
			},
		},
	}}

	seq := NewSequencer(newTestTelemetry(t), nil)
	report, err := seq.Execute(context.Background(), plan, approve)
	if err != nil {
		t.Fatalf("optional failure must not abort, got %v", err)
	}
	if !editorRan {
		t.Fatal("editor step did not run")
	}
	if report.State != RunStateCompleted {
		t.Errorf("expected completed run, got %s", report.State)
	}
	if report.Results[1].Status != StepStatusFailed {
		t.Errorf("expected recorded failure, got %s", report.Results[1].Status)
	}
}
