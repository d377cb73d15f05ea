package bus

import (
	"fmt"
	"strings"

	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/pkg/errors"
	"github.com/searcheval/search-eval/internal/pkg/logger"
)

// NewBus creates a Bus from the configuration. When an event log path is set
// the bus is wrapped so every event is mirrored to disk.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var inner Bus

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "search-eval"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "search-eval-bus",
		}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog != "" {
		eventLogger, err := NewEventLogger(cfg.EventLog, true)
		if err != nil {
			inner.Close()
			return nil, fmt.Errorf("creating event logger: %w", err)
		}
		return NewLoggedBus(inner, eventLogger, log), nil
	}

	return inner, nil
}
