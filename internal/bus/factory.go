package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// NewBus builds the bus selected by cfg. The transport is wrapped with the
// on-disk event log when cfg.EventLog is set, and with rec when non-nil.
func NewBus(cfg config.BusConfig, rec Recorder, log *logger.Logger) (Bus, error) {
	log = logger.OrDefault(log)

	var b Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		group := cfg.KafkaGroup
		if group == "" {
			group = "quickquery"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			ClientID:      "quickquery-bus",
		}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog != "" {
		events, err := OpenEventLog(cfg.EventLog)
		if err != nil {
			b.Close()
			return nil, err
		}
		b = NewLoggedBus(b, events, log)
	}

	if rec != nil {
		b = NewInstrumentedBus(b, rec)
	}
	return b, nil
}
