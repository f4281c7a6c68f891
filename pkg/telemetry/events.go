package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of a pipeline event.
type EventType string

const (
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunCompleted  EventType = "run.completed"
	EventTypeRunAborted    EventType = "run.aborted"
	EventTypeStepStarted   EventType = "step.started"
	EventTypeStepCompleted EventType = "step.completed"
	EventTypeStepSkipped   EventType = "step.skipped"
	EventTypeStepFailed    EventType = "step.failed"
)

// Event is a pipeline progress event delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// EventSubscriber receives published events.
type EventSubscriber func(Event)

// EventPublisher fans pipeline events out to subscribers. Delivery is
// synchronous and in publish order: the engine announces each step to the
// operator before running it, so progress lines cannot lag execution.
type EventPublisher struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Subscribe registers a subscriber for all future events.
func (ep *EventPublisher) Subscribe(sub EventSubscriber) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, sub)
}

// Publish delivers an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	subs := make([]EventSubscriber, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}

// PublishRunStarted publishes a run start event.
func (ep *EventPublisher) PublishRunStarted(runID, message string) {
	ep.Publish(Event{Type: EventTypeRunStarted, RunID: runID, Message: message, Level: "info"})
}

// PublishRunCompleted publishes a run completion event.
func (ep *EventPublisher) PublishRunCompleted(runID, message string) {
	ep.Publish(Event{Type: EventTypeRunCompleted, RunID: runID, Message: message, Level: "info"})
}

// PublishRunAborted publishes a run abort event.
func (ep *EventPublisher) PublishRunAborted(runID, message string) {
	ep.Publish(Event{Type: EventTypeRunAborted, RunID: runID, Message: message, Level: "error"})
}

// PublishStepStarted publishes a step start event.
func (ep *EventPublisher) PublishStepStarted(runID, stepID, message string) {
	ep.Publish(Event{Type: EventTypeStepStarted, RunID: runID, StepID: stepID, Message: message, Level: "info"})
}

// PublishStepCompleted publishes a step completion event.
func (ep *EventPublisher) PublishStepCompleted(runID, stepID, message string) {
	ep.Publish(Event{Type: EventTypeStepCompleted, RunID: runID, StepID: stepID, Message: message, Level: "info"})
}

// PublishStepSkipped publishes an already-satisfied step event.
func (ep *EventPublisher) PublishStepSkipped(runID, stepID, message string) {
	ep.Publish(Event{Type: EventTypeStepSkipped, RunID: runID, StepID: stepID, Message: message, Level: "info"})
}

// PublishStepFailed publishes a step failure event.
func (ep *EventPublisher) PublishStepFailed(runID, stepID, message string) {
	ep.Publish(Event{Type: EventTypeStepFailed, RunID: runID, StepID: stepID, Message: message, Level: "error"})
}
