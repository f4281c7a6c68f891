package telemetry

import (
	"testing"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	ep := NewEventPublisher()

	var first, second []Event
	ep.Subscribe(func(e Event) { first = append(first, e) })
	ep.Subscribe(func(e Event) { second = append(second, e) })

	ep.PublishStepStarted("run-1", "packages", "Install system packages")
	ep.PublishStepCompleted("run-1", "packages", "Install system packages: done")

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected both subscribers to see 2 events, got %d and %d", len(first), len(second))
	}
	if first[0].Type != EventTypeStepStarted || first[1].Type != EventTypeStepCompleted {
		t.Errorf("events delivered out of publish order: %s, %s", first[0].Type, first[1].Type)
	}
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	ep := NewEventPublisher()

	var got Event
	ep.Subscribe(func(e Event) { got = e })
	ep.Publish(Event{Type: EventTypeRunStarted, RunID: "run-1", Message: "provisioning 3 steps"})

	if got.ID == "" {
		t.Error("published event has no ID")
	}
	if got.Timestamp.IsZero() {
		t.Error("published event has no timestamp")
	}
}

func TestPublishLevels(t *testing.T) {
	ep := NewEventPublisher()

	var events []Event
	ep.Subscribe(func(e Event) { events = append(events, e) })

	ep.PublishStepFailed("run-1", "runtime:erlang", "install failed")
	ep.PublishRunAborted("run-1", "aborted at step runtime:erlang")
	ep.PublishStepSkipped("run-1", "packages", "already satisfied")

	want := []string{"error", "error", "info"}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, level := range want {
		if events[i].Level != level {
			t.Errorf("event %s: expected level %s, got %s", events[i].Type, level, events[i].Level)
		}
	}
}

func TestSubscribeDuringPublishSeesOnlyLaterEvents(t *testing.T) {
	ep := NewEventPublisher()

	var late []Event
	ep.Subscribe(func(e Event) {
		if e.Type == EventTypeRunStarted {
			ep.Subscribe(func(e Event) { late = append(late, e) })
		}
	})

	ep.PublishRunStarted("run-1", "provisioning 1 step")
	ep.PublishRunCompleted("run-1", "done")

	if len(late) != 1 || late[0].Type != EventTypeRunCompleted {
		t.Errorf("late subscriber expected only the completion event, got %v", late)
	}
}
