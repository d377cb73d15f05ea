// Package bus provides event bus implementations for experiment lifecycle
// notifications. Events are fire-and-forget: consumers observe progress, the
// orchestrator never waits on them.
package bus

import (
	"context"
	"time"

	"github.com/searcheval/search-eval/internal/pkg/hash"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "experiment.completed").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created.
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent builds an event with a generated ID and current timestamp.
func NewEvent(eventType string, payload any) Event {
	now := time.Now()
	return Event{
		ID:        hash.SHA256Short([]byte(eventType+now.Format(time.RFC3339Nano)), 16),
		Type:      eventType,
		Source:    "search-eval",
		Timestamp: now.UnixMilli(),
		Payload:   payload,
	}
}

// Topics for experiment lifecycle events.
const (
	TopicExperimentCreated     = "experiment.created"
	TopicExperimentCompleted   = "experiment.completed"
	TopicExperimentFailed      = "experiment.failed"
	TopicSubExperimentRecorded = "subexperiment.recorded"
	TopicQuerySetUpdated       = "queryset.updated"
	TopicJudgmentsImported     = "judgments.imported"
	TopicSettingsChanged       = "settings.changed"
)
