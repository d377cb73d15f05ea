package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/searcheval/search-eval/internal/pkg/errors"
)

// LoggedEvent represents an event that has been logged to disk.
type LoggedEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// EventLogger logs events to disk as JSON lines, one object per line. The
// log is an audit trail of experiment lifecycles and supports replay.
type EventLogger struct {
	logPath string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewEventLogger creates a new event logger. If enabled is false the logger
// is created but never writes.
func NewEventLogger(logPath string, enabled bool) (*EventLogger, error) {
	l := &EventLogger{
		logPath: logPath,
		enabled: enabled,
	}

	if !enabled {
		return l, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return l, nil
}

// Log writes an event to the log file. No-op when disabled.
func (l *EventLogger) Log(topic string, event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New(errors.CodeInternal, "event logger not initialized")
	}

	entry := LoggedEvent{
		Event:     event,
		Topic:     topic,
		Timestamp: time.Now(),
	}

	if err := l.encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// GetEvents reads events logged after the since timestamp, in chronological
// order. If limit > 0 at most that many events are returned.
func (l *EventLogger) GetEvents(since time.Time, limit int) ([]LoggedEvent, error) {
	if !l.enabled {
		return nil, errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoggedEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var events []LoggedEvent
	scanner := bufio.NewScanner(file)

	const maxScanTokenSize = 1024 * 1024
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		var entry LoggedEvent
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Skip malformed lines
			continue
		}

		if entry.Timestamp.After(since) {
			events = append(events, entry)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}
	return events, nil
}

// Replay publishes logged events after since back onto a bus.
func (l *EventLogger) Replay(ctx context.Context, b Bus, since time.Time) error {
	if !l.enabled {
		return errors.New(errors.CodeUnavailable, "event logging is disabled")
	}

	events, err := l.GetEvents(since, 0)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}

	for _, entry := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := b.Publish(ctx, entry.Topic, entry.Event); err != nil {
				return fmt.Errorf("failed to replay event %s: %w", entry.Event.ID, err)
			}
		}
	}
	return nil
}

// Close closes the log file.
func (l *EventLogger) Close() error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.file = nil
		l.encoder = nil
	}
	return nil
}

// IsEnabled returns true if the logger is enabled.
func (l *EventLogger) IsEnabled() bool {
	return l.enabled
}
