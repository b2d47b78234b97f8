package notify

import (
	"github.com/google/uuid"

	"github.com/swiftride/dispatch/pkg/logger"
)

// Event is a rider- or driver-facing notification. Delivery is
// best-effort; dispatch never blocks on it.
type Event struct {
	Kind      string    `json:"kind"`
	TripID    uuid.UUID `json:"trip_id"`
	DriverID  uuid.UUID `json:"driver_id,omitempty"`
	ClientID  uuid.UUID `json:"client_id,omitempty"`
	Message   string    `json:"message,omitempty"`
}

const (
	KindDriverAssigned = "driver_assigned"
	KindTripUnmatched  = "trip_unmatched"
	KindTripStarted    = "trip_started"
	KindTripCompleted  = "trip_completed"
	KindTripCancelled  = "trip_cancelled"
	KindSOSTriggered   = "sos_triggered"
)

// Sink delivers one notification. Implementations may be slow; the queue
// decouples them from the dispatch path.
type Sink interface {
	Send(Event)
}

// Queue fans events to a sink from a single worker goroutine. Enqueue
// never blocks: when the buffer is full the event is dropped and logged,
// which is acceptable for advisory notifications.
type Queue struct {
	events chan Event
	sink   Sink
	logger *logger.Logger
	done   chan struct{}
}

func NewQueue(sink Sink, buffer int, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Nop()
	}
	q := &Queue{
		events: make(chan Event, buffer),
		sink:   sink,
		logger: log,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Enqueue(e Event) {
	select {
	case q.events <- e:
	default:
		q.logger.Warn("notification buffer full, dropping event",
			logger.String("kind", e.Kind),
			logger.String("trip_id", e.TripID.String()))
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for e := range q.events {
		q.sink.Send(e)
	}
}

// Close drains the buffer and stops the worker.
func (q *Queue) Close() {
	close(q.events)
	<-q.done
}

// LogSink writes notifications to the application log. Stands in for a
// push-notification provider.
type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Send(e Event) {
	s.Logger.Info("notification",
		logger.String("kind", e.Kind),
		logger.String("trip_id", e.TripID.String()),
		logger.String("message", e.Message))
}
