package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/pkg/logger"
)

// DispatchEvent is the record published for every dispatch outcome and
// trip transition. Downstream consumers (analytics, billing) key on the
// trip ID so one trip's events land on one partition in order.
type DispatchEvent struct {
	Type       string     `json:"type"`
	TripID     uuid.UUID  `json:"trip_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	DriverID   *uuid.UUID `json:"driver_id,omitempty"`
	Status     string     `json:"status"`
	CascadeLen int        `json:"cascade_length,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

const (
	TypeDriverMatched = "driver_matched"
	TypeTripUnmatched = "trip_unmatched"
	TypeTripStarted   = "trip_started"
	TypeTripCompleted = "trip_completed"
	TypeTripCancelled = "trip_cancelled"
	TypeSOSTriggered  = "sos_triggered"
)

// Publisher emits dispatch events. The no-op implementation is used when
// Kafka is not configured.
type Publisher interface {
	Publish(ctx context.Context, e DispatchEvent)
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DispatchEvent) {}
func (NopPublisher) Close() error                           { return nil }

// KafkaPublisher writes events to a Kafka topic. Publishing is
// best-effort: a broker outage is logged and never fails the dispatch
// that produced the event.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.Nop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn("kafka publish error", logger.String("detail", msg))
		}),
	}
	return &KafkaPublisher{writer: writer, logger: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e DispatchEvent) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("failed to encode dispatch event", logger.Err(err))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.TripID.String()),
		Value: value,
	})
	if err != nil {
		p.logger.Warn("failed to publish dispatch event",
			logger.String("type", e.Type),
			logger.String("trip_id", e.TripID.String()),
			logger.Err(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
