package bus

import (
	"context"

	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// LoggedBus wraps another Bus and mirrors every published event to disk.
// Useful for auditing experiment runs and replaying them later.
type LoggedBus struct {
	inner       Bus
	eventLogger *EventLogger
	log         *logger.Logger
}

// NewLoggedBus creates a logged bus wrapping an inner bus. Events are logged
// before being published.
func NewLoggedBus(inner Bus, eventLogger *EventLogger, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{
		inner:       inner,
		eventLogger: eventLogger,
		log:         log,
	}
}

// Publish logs the event and then delegates to the inner bus.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	// Best-effort: a failed disk write never blocks the publish
	if err := b.eventLogger.Log(topic, event); err != nil {
		b.log.Warn("failed to log event to disk", "topic", topic, "error", err)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes both the event logger and the inner bus.
func (b *LoggedBus) Close() error {
	if err := b.eventLogger.Close(); err != nil {
		b.log.Warn("failed to close event logger", "error", err)
	}
	return b.inner.Close()
}
