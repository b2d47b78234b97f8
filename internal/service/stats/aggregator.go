package stats

import (
	"sync"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/pkg/logger"
)

// Aggregator is the single writer of driver acceptance and completion
// rates. Dispatch and trip transitions report outcomes here; nothing else
// touches those fields, so the rates stay consistent under concurrent
// dispatches.
type Aggregator struct {
	registry *registry.Registry
	logger   *logger.Logger

	mu        sync.Mutex
	offers    int
	accepted  int
	matched   int
	unmatched int
	completed int
	cancelled int
}

func NewAggregator(reg *registry.Registry, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	return &Aggregator{registry: reg, logger: log}
}

// RecordOffer folds one offer outcome into the driver's acceptance rate.
func (a *Aggregator) RecordOffer(driverID uuid.UUID, accepted bool) {
	a.mu.Lock()
	a.offers++
	if accepted {
		a.accepted++
	}
	a.mu.Unlock()

	delta := registry.MetricsDelta{OfferDeclined: !accepted, OfferAccepted: accepted}
	if err := a.registry.UpdateMetrics(driverID, delta); err != nil {
		a.logger.Warn("failed to record offer outcome",
			logger.String("driver_id", driverID.String()),
			logger.Err(err))
	}
}

// RecordDispatch counts a finished dispatch attempt.
func (a *Aggregator) RecordDispatch(matched bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if matched {
		a.matched++
	} else {
		a.unmatched++
	}
}

// RecordTripOutcome folds a trip's end state into the driver's completion
// rate.
func (a *Aggregator) RecordTripOutcome(driverID uuid.UUID, completed bool) {
	a.mu.Lock()
	if completed {
		a.completed++
	} else {
		a.cancelled++
	}
	a.mu.Unlock()

	delta := registry.MetricsDelta{TripCompleted: completed, TripCancelled: !completed}
	if err := a.registry.UpdateMetrics(driverID, delta); err != nil {
		a.logger.Warn("failed to record trip outcome",
			logger.String("driver_id", driverID.String()),
			logger.Err(err))
	}
}

// Summary is the system-wide dispatch counters snapshot.
type Summary struct {
	OffersSent     int     `json:"offers_sent"`
	OffersAccepted int     `json:"offers_accepted"`
	TripsMatched   int     `json:"trips_matched"`
	TripsUnmatched int     `json:"trips_unmatched"`
	TripsCompleted int     `json:"trips_completed"`
	TripsCancelled int     `json:"trips_cancelled"`
	MatchRate      float64 `json:"match_rate"`
	AcceptRate     float64 `json:"accept_rate"`
}

func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		OffersSent:     a.offers,
		OffersAccepted: a.accepted,
		TripsMatched:   a.matched,
		TripsUnmatched: a.unmatched,
		TripsCompleted: a.completed,
		TripsCancelled: a.cancelled,
	}
	if total := a.matched + a.unmatched; total > 0 {
		s.MatchRate = float64(a.matched) / float64(total) * 100
	}
	if a.offers > 0 {
		s.AcceptRate = float64(a.accepted) / float64(a.offers) * 100
	}
	return s
}
