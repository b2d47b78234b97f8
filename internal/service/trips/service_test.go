package trips

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/domain/trip"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/service/pricing"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/storage"
	apperrors "github.com/swiftride/dispatch/pkg/errors"
)

type fixture struct {
	svc      *Service
	store    *storage.MemoryStore
	registry *registry.Registry
	stats    *stats.Aggregator
	aborted  []uuid.UUID
}

func (f *fixture) Abort(tripID uuid.UUID) bool {
	f.aborted = append(f.aborted, tripID)
	return false
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		registry: registry.New(nil, nil),
	}
	calc := pricing.NewCalculator(config.PricingConfig{
		BaseFare:      map[string]float64{"standard": 50},
		PerKMRate:     map[string]float64{"standard": 12},
		PerMinuteRate: map[string]float64{"standard": 2},
		MinSurge:      1.0,
		MaxSurge:      3.0,
	}, nil, nil)
	f.stats = stats.NewAggregator(f.registry, nil)
	f.svc = NewService(f.store, f.registry, calc, f.stats, nil, nil, f, nil)
	return f
}

func (f *fixture) assignedTrip(t *testing.T) (*trip.Trip, uuid.UUID) {
	t.Helper()
	d := driver.Driver{
		ID:          uuid.New(),
		Location:    driver.Location{Latitude: 12.97, Longitude: 77.59, UpdatedAt: time.Now()},
		Available:   true,
		VehicleType: driver.VehicleStandard,
		Verified:    true,
	}
	f.registry.Upsert(d)

	tr, err := f.svc.Create(context.Background(), CreateParams{
		ClientID:    uuid.New(),
		VehicleType: driver.VehicleStandard,
		PickupLat:   12.9716, PickupLng: 77.5946,
		DropoffLat: 12.9352, DropoffLng: 77.6245,
	})
	require.NoError(t, err)
	require.NoError(t, f.registry.Reserve(d.ID, tr.ID))
	f.stats.RecordOffer(d.ID, true)
	require.NoError(t, tr.Accept(d.ID))
	require.NoError(t, f.store.Save(context.Background(), tr))
	return tr, d.ID
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateParams{ClientID: uuid.New(), VehicleType: "jetski"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidVehicleType)

	_, err = f.svc.Create(ctx, CreateParams{
		ClientID: uuid.New(), VehicleType: driver.VehicleStandard,
		PickupLat: 91.0,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCoordinates)
}

func TestCompleteReleasesDriverAndPrices(t *testing.T) {
	f := newFixture(t)
	tr, driverID := f.assignedTrip(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, tr.ID)
	require.NoError(t, err)

	got, err := f.svc.Complete(ctx, tr.ID, 10, 25)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusCompleted, got.Status)
	require.NotNil(t, got.FinalFare)
	// 50 base + 12*10 distance + 2*25 time at surge 1.0
	assert.InDelta(t, 220.0, *got.FinalFare, 0.001)

	d, err := f.registry.Get(driverID)
	require.NoError(t, err)
	assert.True(t, d.Available)
	assert.Equal(t, 1, d.CompletedTrips)
	assert.InDelta(t, 100.0, d.CompletionRate, 0.001)
}

func TestCompleteBeforeStartRejected(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.assignedTrip(t)

	_, err := f.svc.Complete(context.Background(), tr.ID, 10, 25)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 422, appErr.Status)
}

func TestCancelAssignedTrip(t *testing.T) {
	f := newFixture(t)
	tr, driverID := f.assignedTrip(t)

	got, err := f.svc.Cancel(context.Background(), tr.ID, "rider changed plans")
	require.NoError(t, err)
	assert.Equal(t, trip.StatusCancelled, got.Status)
	assert.Equal(t, "rider changed plans", got.CancellationReason)
	assert.Contains(t, f.aborted, tr.ID, "in-flight dispatch is aborted first")

	d, err := f.registry.Get(driverID)
	require.NoError(t, err)
	assert.True(t, d.Available, "cancellation frees the driver")
	assert.Zero(t, d.CompletionRate)
}

func TestCancelWithoutReason(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.assignedTrip(t)

	_, err := f.svc.Cancel(context.Background(), tr.ID, "")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 400, appErr.Status)
}

func TestCancelCompletedTripRejected(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.assignedTrip(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, tr.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, tr.ID, 5, 10)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, tr.ID, "too late")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 422, appErr.Status)
}

func TestSOSOnlyWhileStarted(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.assignedTrip(t)
	ctx := context.Background()

	_, err := f.svc.TriggerSOS(ctx, tr.ID)
	require.Error(t, err)

	_, err = f.svc.Start(ctx, tr.ID)
	require.NoError(t, err)

	got, err := f.svc.TriggerSOS(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, got.SOSTriggered)
	assert.Equal(t, trip.StatusStarted, got.Status)

	// the flag never blocks completion
	_, err = f.svc.Complete(ctx, tr.ID, 3, 9)
	require.NoError(t, err)
}

func TestGetUnknownTrip(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrTripNotFound)
}
