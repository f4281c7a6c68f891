package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rigup/rigup/pkg/stores"
	"github.com/rigup/rigup/pkg/telemetry"
)

// ConfirmFunc asks the operator to approve the plan. It returns true to
// proceed. It is the only cancellation point: once the pipeline is running,
// steps are never interrupted mid-flight.
type ConfirmFunc func(plan *Plan) (bool, error)

// StoreOpener lazily opens the run journal. The sequencer invokes it only
// after the operator has confirmed the plan, so a declined run never creates
// the journal file.
type StoreOpener func(ctx context.Context) (stores.Store, error)

// StaticStore wraps an already-open store as an opener, mainly for callers
// that manage the journal lifecycle themselves.
func StaticStore(store stores.Store) StoreOpener {
	if store == nil {
		return nil
	}
	return func(context.Context) (stores.Store, error) { return store, nil }
}

// Sequencer executes a plan strictly sequentially in dependency order,
// aborting on the first failure. Already-applied steps are detected live via
// each step's check, which is what makes an aborted run resumable: re-running
// skips everything a previous run completed.
type Sequencer struct {
	tel   *telemetry.Telemetry
	open  StoreOpener
	store stores.Store
	log   *telemetry.Logger
}

// NewSequencer creates a sequencer. open may be nil, in which case the run
// journal is disabled; journal failures, opening included, are logged and
// never fatal.
func NewSequencer(tel *telemetry.Telemetry, open StoreOpener) *Sequencer {
	return &Sequencer{
		tel:  tel,
		open: open,
		log:  tel.Logger.NewComponentLogger("sequencer"),
	}
}

// Execute runs the plan. The state machine is
// AwaitingConfirmation -> Running -> {Completed, Aborted}: confirm is invoked
// before any side effect; a decline terminates with ErrKindUserDeclined and
// nothing done. When a required step fails the remaining steps do not run
// and no rollback is attempted; partial state stays on disk for manual
// resumption. Optional steps record their failure and the run continues.
func (s *Sequencer) Execute(ctx context.Context, plan *Plan, confirm ConfirmFunc) (*RunReport, error) {
	order, err := NewGraphBuilder().Order(plan.Steps)
	if err != nil {
		return nil, err
	}

	// AwaitingConfirmation
	if confirm != nil {
		ok, err := confirm(plan)
		if err != nil {
			return nil, NewValidationError("confirmation failed", err)
		}
		if !ok {
			return nil, NewUserDeclinedError()
		}
	}

	// The journal opens only now that the operator has approved the plan.
	if s.open != nil && s.store == nil {
		store, err := s.open(ctx)
		if err != nil {
			s.log.WithError(err).Warn("run journal unavailable")
		} else {
			s.store = store
		}
	}

	// Running
	report := &RunReport{
		RunID:     uuid.New().String(),
		State:     RunStateRunning,
		StartedAt: time.Now(),
	}

	runCtx, runSpan := s.tel.Tracer.StartRunSpan(ctx, report.RunID)
	defer runSpan.End()

	s.recordRunStart(runCtx, report, plan)
	s.tel.Metrics.RecordRunStarted()
	s.tel.Events.PublishRunStarted(report.RunID, fmt.Sprintf("provisioning %d steps", len(order)))

	status := make(map[string]StepStatus, len(order))
	for _, step := range order {
		status[step.ID] = StepStatusPending
	}

	for _, step := range order {
		if err := s.checkDependencies(step, status); err != nil {
			// Unreachable while every failure aborts the run, but a hard
			// guard keeps the ordering invariant independent of policy.
			result := s.failResult(step, NewValidationError("dependency not satisfied", err).WithStep(step.ID))
			return s.abort(runCtx, report, step, result)
		}

		result := s.executeStep(runCtx, report.RunID, step)
		status[step.ID] = result.Status
		report.Results = append(report.Results, result)
		s.recordStepResult(runCtx, report.RunID, step, result)
		s.tel.Metrics.RecordStepExecution(string(step.Kind), string(result.Status), result.Duration)

		if result.Status == StepStatusFailed {
			telemetry.RecordError(runSpan, result.Error)
			if step.Required {
				return s.abort(runCtx, report, step, result)
			}
			// Optional steps record their failure and the run moves on.
			if result.Error != nil {
				s.tel.Metrics.RecordError(string(result.Error.Kind))
				s.tel.Events.PublishStepFailed(report.RunID, step.ID, result.Error.Error())
			}
		}
	}

	// Completed
	report.State = RunStateCompleted
	report.Duration = time.Since(report.StartedAt)
	s.recordRunEnd(runCtx, report, nil)
	s.tel.Metrics.RecordRunCompleted(string(report.State), report.Duration)
	s.tel.Events.PublishRunCompleted(report.RunID, report.Summary())
	telemetry.RecordSuccess(runSpan)

	return report, nil
}

// executeStep runs a single step: announce, live idempotency check, run.
func (s *Sequencer) executeStep(ctx context.Context, runID string, step *Step) StepResult {
	log := s.log.WithRunID(runID).WithStepID(step.ID)
	s.tel.Events.PublishStepStarted(runID, step.ID, step.Name)

	stepCtx, span := s.tel.Tracer.StartStepSpan(ctx, step.ID, string(step.Kind))
	defer span.End()

	started := time.Now()

	if step.Check != nil {
		done, err := step.Check(stepCtx)
		if err != nil {
			log.WithError(err).Error("step check failed")
			result := s.finishResult(step, started, StepStatusFailed, classify(err, step))
			telemetry.RecordError(span, result.Error)
			return result
		}
		if done {
			log.Debug("step already satisfied")
			s.tel.Events.PublishStepSkipped(runID, step.ID, fmt.Sprintf("%s: already satisfied", step.Name))
			result := s.finishResult(step, started, StepStatusSkipped, nil)
			telemetry.RecordSuccess(span)
			return result
		}
	}

	if err := step.Run(stepCtx); err != nil {
		log.WithError(err).Error("step failed")
		result := s.finishResult(step, started, StepStatusFailed, classify(err, step))
		telemetry.RecordError(span, result.Error)
		return result
	}

	s.tel.Events.PublishStepCompleted(runID, step.ID, fmt.Sprintf("%s: done", step.Name))
	result := s.finishResult(step, started, StepStatusSucceeded, nil)
	telemetry.RecordSuccess(span)
	return result
}

// checkDependencies verifies that every predecessor reached a satisfying
// terminal state: require edges demand success (or already-satisfied), order
// edges only demand that the target has been sequenced.
func (s *Sequencer) checkDependencies(step *Step, status map[string]StepStatus) error {
	for _, dep := range step.Dependencies {
		st, exists := status[dep.TargetID]
		if !exists {
			return fmt.Errorf("unknown dependency %s", dep.TargetID)
		}
		switch dep.Type {
		case DependencyRequire:
			if !st.Satisfied() {
				return fmt.Errorf("required step %s is %s", dep.TargetID, st)
			}
		case DependencyOrder:
			if !st.IsTerminal() {
				return fmt.Errorf("ordered step %s has not run", dep.TargetID)
			}
		}
	}
	return nil
}

func (s *Sequencer) abort(ctx context.Context, report *RunReport, step *Step, result StepResult) (*RunReport, error) {
	report.State = RunStateAborted
	report.FailedStep = step.ID
	report.Err = result.Error
	report.Duration = time.Since(report.StartedAt)

	s.recordRunEnd(ctx, report, result.Error)
	s.tel.Metrics.RecordRunCompleted(string(report.State), report.Duration)
	if result.Error != nil {
		s.tel.Metrics.RecordError(string(result.Error.Kind))
		s.tel.Events.PublishStepFailed(report.RunID, step.ID, result.Error.Error())
	}
	s.tel.Events.PublishRunAborted(report.RunID, fmt.Sprintf("aborted at step %s", step.ID))

	return report, report.Err
}

func (s *Sequencer) finishResult(step *Step, started time.Time, status StepStatus, stepErr *StepError) StepResult {
	completed := time.Now()
	result := StepResult{
		StepID:      step.ID,
		Status:      status,
		Error:       stepErr,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
	}
	if stepErr != nil {
		result.ExitCode = stepErr.ExitCode
	}
	return result
}

func (s *Sequencer) failResult(step *Step, stepErr *StepError) StepResult {
	now := time.Now()
	return StepResult{
		StepID:      step.ID,
		Status:      StepStatusFailed,
		Error:       stepErr,
		StartedAt:   now,
		CompletedAt: now,
	}
}

// classify wraps arbitrary step errors into the structured taxonomy,
// attaching the step ID.
func classify(err error, step *Step) *StepError {
	if se, ok := err.(*StepError); ok {
		if se.StepID == "" {
			se.StepID = step.ID
		}
		return se
	}
	return NewValidationError("step failed", err).WithStep(step.ID)
}

// recordRunStart journals the run start; journal failures are logged only.
func (s *Sequencer) recordRunStart(ctx context.Context, report *RunReport, plan *Plan) {
	if s.store == nil {
		return
	}
	now := time.Now()
	run := &stores.Run{
		ID:           report.RunID,
		ManifestPath: plan.ManifestPath,
		Status:       stores.RunStatusRunning,
		StartedAt:    report.StartedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.log.WithError(err).Warn("failed to journal run start")
	}
}

func (s *Sequencer) recordRunEnd(ctx context.Context, report *RunReport, stepErr *StepError) {
	if s.store == nil {
		return
	}
	status := stores.RunStatusCompleted
	var errMsg, errKind *string
	if report.State == RunStateAborted {
		status = stores.RunStatusAborted
		if stepErr != nil {
			msg := stepErr.Error()
			kind := string(stepErr.Kind)
			errMsg, errKind = &msg, &kind
		}
	}
	if err := s.store.UpdateRunStatus(ctx, report.RunID, status, errKind, errMsg); err != nil {
		s.log.WithError(err).Warn("failed to journal run end")
	}
}

func (s *Sequencer) recordStepResult(ctx context.Context, runID string, step *Step, result StepResult) {
	if s.store == nil {
		return
	}
	rec := &stores.StepRecord{
		ID:          uuid.New().String(),
		RunID:       runID,
		StepID:      step.ID,
		Name:        step.Name,
		Kind:        string(step.Kind),
		Status:      stores.StepStatus(result.Status),
		ExitCode:    result.ExitCode,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		CreatedAt:   time.Now(),
	}
	if result.Error != nil {
		msg := result.Error.Error()
		rec.Error = &msg
	}
	if err := s.store.CreateStepRecord(ctx, rec); err != nil {
		s.log.WithError(err).Warn("failed to journal step result")
	}
}
