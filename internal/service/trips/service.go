package trips

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/collab/notify"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/domain/trip"
	"github.com/swiftride/dispatch/internal/events"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/service/pricing"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/storage"
	apperrors "github.com/swiftride/dispatch/pkg/errors"
	"github.com/swiftride/dispatch/pkg/logger"
)

// Aborter lets the trip service cancel an in-flight dispatch before
// applying a cancellation. Implemented by the dispatch coordinator.
type Aborter interface {
	Abort(tripID uuid.UUID) bool
}

// Service owns the trip lifecycle after dispatch: start, complete,
// cancel, SOS. Every transition is validated by the trip itself; the
// service adds persistence, driver release and outcome accounting.
type Service struct {
	store     storage.TripStore
	registry  *registry.Registry
	pricing   *pricing.Calculator
	stats     *stats.Aggregator
	notifier  *notify.Queue
	publisher events.Publisher
	aborter   Aborter
	logger    *logger.Logger
}

func NewService(store storage.TripStore, reg *registry.Registry, calc *pricing.Calculator,
	agg *stats.Aggregator, notifier *notify.Queue, publisher events.Publisher,
	aborter Aborter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     store,
		registry:  reg,
		pricing:   calc,
		stats:     agg,
		notifier:  notifier,
		publisher: publisher,
		aborter:   aborter,
		logger:    log,
	}
}

// CreateParams carries a rider's trip request.
type CreateParams struct {
	ClientID       uuid.UUID
	VehicleType    driver.VehicleType
	PickupLat      float64
	PickupLng      float64
	DropoffLat     float64
	DropoffLng     float64
	PickupAddress  string
	DropoffAddress string
	Language       string
}

// Create records a new trip in the requested state.
func (s *Service) Create(ctx context.Context, p CreateParams) (*trip.Trip, error) {
	if !p.VehicleType.IsValid() {
		return nil, apperrors.ErrInvalidVehicleType
	}
	if !validCoordinates(p.PickupLat, p.PickupLng) || !validCoordinates(p.DropoffLat, p.DropoffLng) {
		return nil, apperrors.ErrInvalidCoordinates
	}

	t := trip.New(p.ClientID, p.VehicleType)
	t.PickupLatitude, t.PickupLongitude = p.PickupLat, p.PickupLng
	t.DropoffLatitude, t.DropoffLongitude = p.DropoffLat, p.DropoffLng
	t.PickupAddress, t.DropoffAddress = p.PickupAddress, p.DropoffAddress
	t.Language = p.Language

	if err := s.store.Save(ctx, t); err != nil {
		return nil, apperrors.Internal("Failed to create trip", err)
	}
	s.logger.Info("trip created",
		logger.String("trip_id", t.ID.String()),
		logger.String("client_id", t.ClientID.String()),
		logger.String("vehicle_type", string(t.VehicleType)))
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, trip.ErrTripNotFound) {
			return nil, apperrors.ErrTripNotFound
		}
		return nil, apperrors.Internal("Failed to load trip", err)
	}
	return t, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*trip.Trip, error) {
	out, err := s.store.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, apperrors.Internal("Failed to list trips", err)
	}
	return out, nil
}

// Start moves an accepted trip to started (rider picked up).
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.Start(); err != nil {
		return nil, transitionError(err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, apperrors.Internal("Failed to persist trip", err)
	}

	s.publisher.Publish(ctx, events.DispatchEvent{
		Type: events.TypeTripStarted, TripID: t.ID, ClientID: t.ClientID,
		DriverID: t.DriverID, Status: string(t.Status),
	})
	s.notify(notify.Event{Kind: notify.KindTripStarted, TripID: t.ID, ClientID: t.ClientID})
	return t, nil
}

// Complete finishes a started trip, prices it from actuals, frees the
// driver and credits their completion rate.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, distanceKM float64, durationMin int) (*trip.Trip, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fare := 0.0
	if s.pricing != nil {
		fare = s.pricing.FinalFare(ctx, t.VehicleType, distanceKM, durationMin)
	}
	if err := t.Complete(distanceKM, durationMin, fare); err != nil {
		return nil, transitionError(err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, apperrors.Internal("Failed to persist trip", err)
	}

	if t.DriverID != nil {
		s.releaseDriver(*t.DriverID)
		s.stats.RecordTripOutcome(*t.DriverID, true)
	}
	s.publisher.Publish(ctx, events.DispatchEvent{
		Type: events.TypeTripCompleted, TripID: t.ID, ClientID: t.ClientID,
		DriverID: t.DriverID, Status: string(t.Status),
	})
	s.notify(notify.Event{Kind: notify.KindTripCompleted, TripID: t.ID, ClientID: t.ClientID})
	return t, nil
}

// Cancel aborts a trip at any pre-terminal stage. A dispatch still
// hunting for a driver is stopped first; an assigned driver is released
// and the cancellation counts against their completion rate.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*trip.Trip, error) {
	if s.aborter != nil {
		s.aborter.Abort(id)
	}

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	assigned := t.DriverID
	if err := t.Cancel(reason); err != nil {
		if errors.Is(err, trip.ErrCancelReasonRequired) {
			return nil, apperrors.BadRequest("Cancellation reason is required", err)
		}
		return nil, transitionError(err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, apperrors.Internal("Failed to persist trip", err)
	}

	if assigned != nil {
		s.releaseDriver(*assigned)
		s.stats.RecordTripOutcome(*assigned, false)
	}
	s.publisher.Publish(ctx, events.DispatchEvent{
		Type: events.TypeTripCancelled, TripID: t.ID, ClientID: t.ClientID,
		DriverID: assigned, Status: string(t.Status),
	})
	s.notify(notify.Event{Kind: notify.KindTripCancelled, TripID: t.ID, ClientID: t.ClientID, Message: reason})
	return t, nil
}

// TriggerSOS flags an in-progress trip. The trip keeps running; the flag
// fans out to the monitoring channel.
func (s *Service) TriggerSOS(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.TriggerSOS(); err != nil {
		return nil, transitionError(err)
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, apperrors.Internal("Failed to persist trip", err)
	}

	s.publisher.Publish(ctx, events.DispatchEvent{
		Type: events.TypeSOSTriggered, TripID: t.ID, ClientID: t.ClientID,
		DriverID: t.DriverID, Status: string(t.Status),
	})
	s.notify(notify.Event{Kind: notify.KindSOSTriggered, TripID: t.ID, ClientID: t.ClientID, Message: "SOS triggered"})
	s.logger.Warn("SOS triggered",
		logger.String("trip_id", t.ID.String()),
		logger.String("client_id", t.ClientID.String()))
	return t, nil
}

func (s *Service) releaseDriver(driverID uuid.UUID) {
	if err := s.registry.Release(driverID); err != nil {
		s.logger.Warn("failed to release driver",
			logger.String("driver_id", driverID.String()),
			logger.Err(err))
	}
}

func (s *Service) notify(e notify.Event) {
	if s.notifier != nil {
		s.notifier.Enqueue(e)
	}
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, trip.ErrInvalidTransition), errors.Is(err, trip.ErrSOSNotInProgress):
		return apperrors.UnprocessableEntity(err.Error(), err)
	case errors.Is(err, trip.ErrMissingTripTotals):
		return apperrors.BadRequest(err.Error(), err)
	default:
		return apperrors.Internal("Trip transition failed", err)
	}
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
