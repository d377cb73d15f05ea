package bus

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus(logger.Default())
	defer b.Close()

	received := make(chan Event, 1)
	err := b.Subscribe(context.Background(), TopicExperimentCompleted, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent(TopicExperimentCompleted, map[string]any{"experimentId": "exp1"})
	if err := b.Publish(context.Background(), TopicExperimentCompleted, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("expected event %s, got %s", event.ID, got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBusNoSubscribers(t *testing.T) {
	b := NewMemoryBus(logger.Default())
	defer b.Close()

	// Publishing with no subscribers is not an error
	if err := b.Publish(context.Background(), TopicQuerySetUpdated, NewEvent(TopicQuerySetUpdated, nil)); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus(logger.Default())
	defer b.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		b.Subscribe(context.Background(), TopicSubExperimentRecorded, func(_ context.Context, _ Event) error {
			count.Add(1)
			wg.Done()
			return nil
		})
	}

	if err := b.Publish(context.Background(), TopicSubExperimentRecorded, NewEvent(TopicSubExperimentRecorded, nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}

	if count.Load() != 3 {
		t.Errorf("expected 3 handler invocations, got %d", count.Load())
	}
}

func TestMemoryBusClosedRejectsOperations(t *testing.T) {
	b := NewMemoryBus(logger.Default())
	b.Close()

	if err := b.Publish(context.Background(), "t", Event{}); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if err := b.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil }); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
}

func TestMemoryBusDrain(t *testing.T) {
	b := NewMemoryBus(logger.Default())

	started := make(chan struct{})
	release := make(chan struct{})
	b.Subscribe(context.Background(), "slow", func(context.Context, Event) error {
		close(started)
		<-release
		return nil
	})

	b.Publish(context.Background(), "slow", NewEvent("slow", nil))
	<-started

	if b.DrainTimeout(50 * time.Millisecond) {
		t.Error("expected drain timeout while handler blocked")
	}

	close(release)
	if !b.DrainTimeout(2 * time.Second) {
		t.Error("expected drain to complete after handler released")
	}
	b.Close()
}

func TestEventLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	el, err := NewEventLogger(path, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer el.Close()

	since := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		event := NewEvent(TopicExperimentCreated, map[string]any{"n": i})
		event.ID = fmt.Sprintf("event-%d", i)
		if err := el.Log(TopicExperimentCreated, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	events, err := el.GetEvents(since, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event.ID != "event-0" || events[2].Event.ID != "event-2" {
		t.Errorf("events out of order: %v", events)
	}

	limited, err := el.GetEvents(since, 2)
	if err != nil {
		t.Fatalf("GetEvents with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 events with limit, got %d", len(limited))
	}
}

func TestEventLoggerDisabled(t *testing.T) {
	el, err := NewEventLogger("", false)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	if err := el.Log("t", Event{}); err != nil {
		t.Errorf("disabled Log should be a no-op, got %v", err)
	}
	if _, err := el.GetEvents(time.Time{}, 0); err == nil {
		t.Error("expected error reading from disabled logger")
	}
}

func TestEventLoggerReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el, err := NewEventLogger(path, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer el.Close()

	event := NewEvent(TopicJudgmentsImported, map[string]any{"judgmentId": "j1"})
	if err := el.Log(TopicJudgmentsImported, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	b := NewMemoryBus(logger.Default())
	defer b.Close()

	received := make(chan Event, 1)
	b.Subscribe(context.Background(), TopicJudgmentsImported, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})

	if err := el.Replay(context.Background(), b, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("replayed wrong event: %s", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replayed event")
	}
}

func TestLoggedBusMirrorsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el, err := NewEventLogger(path, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	lb := NewLoggedBus(NewMemoryBus(logger.Default()), el, logger.Default())
	defer lb.Close()

	event := NewEvent(TopicExperimentFailed, nil)
	if err := lb.Publish(context.Background(), TopicExperimentFailed, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	events, err := el.GetEvents(time.Now().Add(-time.Minute), 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Event.ID != event.ID {
		t.Errorf("expected mirrored event, got %v", events)
	}
}

func TestNewBusFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BusConfig
		wantErr bool
	}{
		{"memory", config.BusConfig{Type: "memory"}, false},
		{"empty defaults to memory", config.BusConfig{}, false},
		{"kafka without brokers", config.BusConfig{Type: "kafka"}, true},
		{"unknown type", config.BusConfig{Type: "nats"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.cfg, logger.Default())
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBus failed: %v", err)
			}
			b.Close()
		})
	}
}

func TestPartitionKeyPrefersExperimentID(t *testing.T) {
	withExp := NewEvent(TopicSubExperimentRecorded, map[string]any{
		"experimentId":    "exp42",
		"subExperimentId": "sub1",
	})
	if got := partitionKey(withExp); got != "exp42" {
		t.Errorf("partitionKey = %q, want exp42", got)
	}

	withoutExp := NewEvent(TopicSettingsChanged, map[string]any{"changedBy": "ops"})
	if got := partitionKey(withoutExp); got != withoutExp.ID {
		t.Errorf("partitionKey = %q, want event ID %q", got, withoutExp.ID)
	}

	structPayload := NewEvent(TopicSettingsChanged, struct{ Field string }{"x"})
	if got := partitionKey(structPayload); got != structPayload.ID {
		t.Errorf("partitionKey = %q, want event ID for non-map payload", got)
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	brokers := ParseKafkaBrokers("broker1:9092, broker2:9092")
	if len(brokers) != 2 || brokers[0] != "broker1:9092" || brokers[1] != "broker2:9092" {
		t.Errorf("unexpected brokers: %v", brokers)
	}
	if ParseKafkaBrokers("") != nil {
		t.Error("expected nil for empty broker string")
	}
}
