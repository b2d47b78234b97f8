package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/collab/fraud"
	"github.com/swiftride/dispatch/internal/collab/notify"
	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/domain/trip"
	"github.com/swiftride/dispatch/internal/events"
	"github.com/swiftride/dispatch/internal/observability"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/service/pricing"
	"github.com/swiftride/dispatch/internal/service/selector"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/storage"
	apperrors "github.com/swiftride/dispatch/pkg/errors"
	"github.com/swiftride/dispatch/pkg/logger"
	"github.com/swiftride/dispatch/pkg/monitoring"
)

// Offer is what a candidate driver sees when a trip is pushed to them.
type Offer struct {
	TripID        uuid.UUID        `json:"trip_id"`
	PickupLat     float64          `json:"pickup_latitude"`
	PickupLng     float64          `json:"pickup_longitude"`
	PickupAddress string           `json:"pickup_address,omitempty"`
	DistanceKM    float64          `json:"distance_km"`
	Fare          pricing.Estimate `json:"fare"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Transport pushes an offer to a driver's device. An error means the
// driver is unreachable and the cascade moves on without waiting.
type Transport interface {
	SendOffer(ctx context.Context, driverID uuid.UUID, offer Offer) error
}

// Result is the outcome of one dispatch flow.
type Result struct {
	Matched      bool              `json:"matched"`
	TripID       uuid.UUID         `json:"trip_id"`
	DriverID     *uuid.UUID        `json:"driver_id,omitempty"`
	DriverName   string            `json:"driver_name,omitempty"`
	DistanceKM   float64           `json:"distance_km,omitempty"`
	Score        float64           `json:"score,omitempty"`
	Fare         *pricing.Estimate `json:"fare,omitempty"`
	CascadeDepth int               `json:"cascade_depth"`
	TimeToMatch  time.Duration     `json:"-"`
}

// flow is one in-flight dispatch. cancel aborts the offer wait; pending
// holds the response channel for the offer currently on the wire.
type flow struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[uuid.UUID]chan bool // keyed by driver ID
}

// Coordinator runs the dispatch flow for a trip: rank candidates, reserve
// one, offer, and either assign or cascade to the next. One flow runs per
// trip at a time; concurrent requests for the same trip are rejected.
type Coordinator struct {
	registry  *registry.Registry
	selector  *selector.Selector
	store     storage.TripStore
	transport Transport
	pricing   *pricing.Calculator
	fraud     fraud.Checker
	stats     *stats.Aggregator
	notifier  *notify.Queue
	publisher events.Publisher
	monitor   *monitoring.NewRelicApp
	cfg       config.MatchingConfig
	logger    *logger.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]*flow
}

type Deps struct {
	Registry  *registry.Registry
	Selector  *selector.Selector
	Store     storage.TripStore
	Transport Transport
	Pricing   *pricing.Calculator
	Fraud     fraud.Checker
	Stats     *stats.Aggregator
	Notifier  *notify.Queue
	Publisher events.Publisher
	Monitor   *monitoring.NewRelicApp
}

func NewCoordinator(deps Deps, cfg config.MatchingConfig, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Fraud == nil {
		deps.Fraud = fraud.AllowAll{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &Coordinator{
		registry:  deps.Registry,
		selector:  deps.Selector,
		store:     deps.Store,
		transport: deps.Transport,
		pricing:   deps.Pricing,
		fraud:     deps.Fraud,
		stats:     deps.Stats,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		monitor:   deps.Monitor,
		cfg:       cfg,
		logger:    log,
		inflight:  make(map[uuid.UUID]*flow),
	}
}

// FindDriver runs the full dispatch flow for a requested trip and blocks
// until it resolves. Calling it again for a trip that already has a
// driver returns the existing assignment; calling it while a flow is
// running returns ErrDispatchInProgress.
func (c *Coordinator) FindDriver(ctx context.Context, tripID uuid.UUID, riderLanguage string) (*Result, error) {
	t, err := c.store.Get(ctx, tripID)
	if err != nil {
		if errors.Is(err, trip.ErrTripNotFound) {
			return nil, apperrors.ErrTripNotFound
		}
		return nil, apperrors.ErrDispatchInfrastructure
	}

	switch t.Status {
	case trip.StatusAccepted, trip.StatusStarted:
		return c.existingAssignment(t), nil
	case trip.StatusRequested:
	default:
		return nil, apperrors.ErrInvalidTransition
	}

	f, err := c.beginFlow(tripID)
	if err != nil {
		return nil, err
	}
	flowCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	defer func() {
		cancel()
		c.endFlow(tripID)
	}()

	allowed, err := c.fraud.Check(flowCtx, t.ClientID, t.PickupLatitude, t.PickupLongitude)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, apperrors.ErrDispatchCancelled
		}
		c.logger.Error("fraud screen unavailable, refusing dispatch",
			logger.String("trip_id", tripID.String()),
			logger.Err(err))
		return nil, apperrors.ErrDispatchInfrastructure
	}
	if !allowed {
		return nil, apperrors.ErrFraudRejected
	}

	started := time.Now()
	result, err := c.runCascade(flowCtx, f, t, riderLanguage, started)
	if err != nil {
		return nil, err
	}

	c.stats.RecordDispatch(result.Matched)
	if result.Matched {
		observability.DispatchesTotal.WithLabelValues("matched").Inc()
		observability.TimeToMatch.Observe(result.TimeToMatch.Seconds())
		observability.CascadeDepth.Observe(float64(result.CascadeDepth))
	} else {
		observability.DispatchesTotal.WithLabelValues("unmatched").Inc()
	}
	if c.monitor != nil {
		c.monitor.RecordDispatchOutcome(tripID.String(), result.Matched, result.CascadeDepth)
		if result.Matched {
			c.monitor.RecordTimeToMatch(result.TimeToMatch)
			c.monitor.RecordCascadeDepth(result.CascadeDepth)
		}
	}
	return result, nil
}

// runCascade ranks candidates and offers the trip to each in turn. An
// empty first pass widens the search radius once before giving up.
func (c *Coordinator) runCascade(ctx context.Context, f *flow, t *trip.Trip, riderLanguage string, started time.Time) (*Result, error) {
	req := selector.Request{
		ClientID:      t.ClientID,
		PickupLat:     t.PickupLatitude,
		PickupLng:     t.PickupLongitude,
		RadiusKM:      c.cfg.SearchRadiusKM,
		VehicleType:   t.VehicleType,
		RiderLanguage: riderLanguage,
	}

	candidates, err := c.selector.Rank(ctx, req)
	if err != nil {
		return nil, apperrors.ErrDispatchInfrastructure
	}
	if len(candidates) == 0 && c.cfg.WidenMultiplier > 1 {
		req.RadiusKM = c.cfg.SearchRadiusKM * c.cfg.WidenMultiplier
		c.logger.Info("no candidates in radius, widening search",
			logger.String("trip_id", t.ID.String()),
			logger.Float64("radius_km", req.RadiusKM))
		candidates, err = c.selector.Rank(ctx, req)
		if err != nil {
			return nil, apperrors.ErrDispatchInfrastructure
		}
	}

	depth := 0
	for _, cand := range candidates {
		select {
		case <-ctx.Done():
			return nil, apperrors.ErrDispatchCancelled
		default:
		}

		if err := c.registry.Reserve(cand.ID, t.ID); err != nil {
			if errors.Is(err, driver.ErrAlreadyReserved) {
				// lost the driver to a concurrent dispatch, not an offer
				observability.ReservationConflicts.Inc()
				continue
			}
			continue
		}
		depth++

		accepted, err := c.offerTo(ctx, f, t, cand, req.RadiusKM)
		if err != nil {
			c.release(cand.ID)
			if errors.Is(err, context.Canceled) {
				return nil, apperrors.ErrDispatchCancelled
			}
			// unreachable driver, no offer outcome to record
			continue
		}

		if !accepted {
			c.release(cand.ID)
			c.stats.RecordOffer(cand.ID, false)
			continue
		}

		c.stats.RecordOffer(cand.ID, true)
		return c.assign(ctx, t, cand, depth, started)
	}

	return c.unmatched(ctx, t, depth)
}

// offerTo pushes one offer and waits for the driver's answer, the
// deadline, or cancellation.
func (c *Coordinator) offerTo(ctx context.Context, f *flow, t *trip.Trip, cand selector.Candidate, radiusKM float64) (bool, error) {
	estimate := c.estimate(ctx, t)
	offer := Offer{
		TripID:        t.ID,
		PickupLat:     t.PickupLatitude,
		PickupLng:     t.PickupLongitude,
		PickupAddress: t.PickupAddress,
		DistanceKM:    cand.DistanceKM,
		Fare:          estimate,
		ExpiresAt:     time.Now().Add(c.cfg.OfferDeadline),
	}

	answer := f.addPending(cand.ID)
	defer f.removePending(cand.ID)

	if err := c.transport.SendOffer(ctx, cand.ID, offer); err != nil {
		c.logger.Warn("offer delivery failed",
			logger.String("trip_id", t.ID.String()),
			logger.String("driver_id", cand.ID.String()),
			logger.Err(err))
		return false, err
	}

	timer := time.NewTimer(c.cfg.OfferDeadline)
	defer timer.Stop()

	select {
	case accepted := <-answer:
		result := "declined"
		if accepted {
			result = "accepted"
		}
		observability.OffersTotal.WithLabelValues(result).Inc()
		return accepted, nil
	case <-timer.C:
		observability.OffersTotal.WithLabelValues("timeout").Inc()
		return false, nil
	case <-ctx.Done():
		return false, context.Canceled
	}
}

// assign commits the match: trip transition, durable write, events.
func (c *Coordinator) assign(ctx context.Context, t *trip.Trip, cand selector.Candidate, depth int, started time.Time) (*Result, error) {
	if err := t.Accept(cand.ID); err != nil {
		c.release(cand.ID)
		return nil, apperrors.ErrInvalidTransition
	}

	if err := c.saveWithRetry(ctx, t); err != nil {
		// the match is not durable; undo the reservation and surface
		// the failure as an infrastructure error
		c.release(cand.ID)
		c.logger.Error("failed to persist match",
			logger.String("trip_id", t.ID.String()),
			logger.Err(err))
		return nil, apperrors.ErrDispatchInfrastructure
	}

	driverID := cand.ID
	c.publisher.Publish(ctx, events.DispatchEvent{
		Type:       events.TypeDriverMatched,
		TripID:     t.ID,
		ClientID:   t.ClientID,
		DriverID:   &driverID,
		Status:     string(t.Status),
		CascadeLen: depth,
	})
	if c.notifier != nil {
		c.notifier.Enqueue(notify.Event{
			Kind:     notify.KindDriverAssigned,
			TripID:   t.ID,
			DriverID: cand.ID,
			ClientID: t.ClientID,
			Message:  cand.Name + " is on the way",
		})
	}

	estimate := c.estimate(ctx, t)
	return &Result{
		Matched:      true,
		TripID:       t.ID,
		DriverID:     &driverID,
		DriverName:   cand.Name,
		DistanceKM:   cand.DistanceKM,
		Score:        cand.Score,
		Fare:         &estimate,
		CascadeDepth: depth,
		TimeToMatch:  time.Since(started),
	}, nil
}

// unmatched resolves a flow that ran out of candidates. Exhaustion is a
// valid outcome, not an error, but it must still be durable.
func (c *Coordinator) unmatched(ctx context.Context, t *trip.Trip, depth int) (*Result, error) {
	if err := t.MarkUnmatched(); err != nil {
		return nil, apperrors.ErrInvalidTransition
	}
	if err := c.saveWithRetry(ctx, t); err != nil {
		c.logger.Error("failed to persist unmatched outcome",
			logger.String("trip_id", t.ID.String()),
			logger.Err(err))
		return nil, apperrors.ErrDispatchInfrastructure
	}

	c.publisher.Publish(ctx, events.DispatchEvent{
		Type:       events.TypeTripUnmatched,
		TripID:     t.ID,
		ClientID:   t.ClientID,
		Status:     string(t.Status),
		CascadeLen: depth,
	})
	if c.notifier != nil {
		c.notifier.Enqueue(notify.Event{
			Kind:     notify.KindTripUnmatched,
			TripID:   t.ID,
			ClientID: t.ClientID,
			Message:  "No drivers are available right now",
		})
	}
	return &Result{Matched: false, TripID: t.ID, CascadeDepth: depth}, nil
}

// HandleOfferResponse routes a driver's answer to the flow waiting on it.
// It is called from both the WebSocket session and the REST fallback.
// Answers for offers that already expired are ignored.
func (c *Coordinator) HandleOfferResponse(tripID, driverID uuid.UUID, accepted bool) bool {
	c.mu.Lock()
	f, ok := c.inflight[tripID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return f.deliver(driverID, accepted)
}

// Abort cancels an in-flight dispatch for the trip, releasing any held
// reservation. It reports whether a flow was running.
func (c *Coordinator) Abort(tripID uuid.UUID) bool {
	c.mu.Lock()
	f, ok := c.inflight[tripID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	if f.cancel != nil {
		f.cancel()
	}
	return true
}

func (c *Coordinator) existingAssignment(t *trip.Trip) *Result {
	return &Result{Matched: true, TripID: t.ID, DriverID: t.DriverID}
}

func (c *Coordinator) estimate(ctx context.Context, t *trip.Trip) pricing.Estimate {
	if c.pricing == nil {
		return pricing.Estimate{}
	}
	distKM := registry.HaversineKM(t.PickupLatitude, t.PickupLongitude,
		t.DropoffLatitude, t.DropoffLongitude)
	// rough urban average of 2 minutes per kilometer
	return c.pricing.EstimateFare(ctx, t.VehicleType, distKM, int(distKM*2))
}

// saveWithRetry writes a trip outcome, retrying transient store failures
// with doubling backoff before giving up.
func (c *Coordinator) saveWithRetry(ctx context.Context, t *trip.Trip) error {
	backoff := c.cfg.OutcomeBackoff
	var err error
	for attempt := 0; attempt < c.cfg.OutcomeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = c.store.Save(ctx, t); err == nil {
			return nil
		}
	}
	return err
}

func (c *Coordinator) release(driverID uuid.UUID) {
	if err := c.registry.Release(driverID); err != nil {
		c.logger.Warn("failed to release driver",
			logger.String("driver_id", driverID.String()),
			logger.Err(err))
	}
}

func (c *Coordinator) beginFlow(tripID uuid.UUID) (*flow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[tripID]; ok {
		return nil, apperrors.ErrDispatchInProgress
	}
	f := &flow{pending: make(map[uuid.UUID]chan bool)}
	c.inflight[tripID] = f
	return f, nil
}

func (c *Coordinator) endFlow(tripID uuid.UUID) {
	c.mu.Lock()
	delete(c.inflight, tripID)
	c.mu.Unlock()
}

func (f *flow) addPending(driverID uuid.UUID) chan bool {
	ch := make(chan bool, 1)
	f.mu.Lock()
	f.pending[driverID] = ch
	f.mu.Unlock()
	return ch
}

func (f *flow) removePending(driverID uuid.UUID) {
	f.mu.Lock()
	delete(f.pending, driverID)
	f.mu.Unlock()
}

// deliver hands an answer to the waiting offer. The channel is buffered,
// so a second answer for the same offer is dropped.
func (f *flow) deliver(driverID uuid.UUID, accepted bool) bool {
	f.mu.Lock()
	ch, ok := f.pending[driverID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- accepted:
		return true
	default:
		return false
	}
}
