package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/domain/driver"
)

func testDriver(lat, lng float64) driver.Driver {
	return driver.Driver{
		ID:          uuid.New(),
		Name:        "Test Driver",
		Location:    driver.Location{Latitude: lat, Longitude: lng, UpdatedAt: time.Now()},
		Available:   true,
		VehicleType: driver.VehicleStandard,
		Rating:      4.5,
		Verified:    true,
	}
}

func TestReserveConcurrent(t *testing.T) {
	r := New(nil, nil)
	d := testDriver(12.97, 77.59)
	r.Upsert(d)

	const workers = 50
	var wg sync.WaitGroup
	wins := make(chan uuid.UUID, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tripID := uuid.New()
			if err := r.Reserve(d.ID, tripID); err == nil {
				wins <- tripID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []uuid.UUID
	for id := range wins {
		winners = append(winners, id)
	}
	require.Len(t, winners, 1, "exactly one concurrent reservation must win")

	got, err := r.Get(d.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
	require.NotNil(t, got.ActiveTripID)
	assert.Equal(t, winners[0], *got.ActiveTripID)
}

func TestReserveReleaseCycle(t *testing.T) {
	r := New(nil, nil)
	d := testDriver(12.97, 77.59)
	r.Upsert(d)
	tripID := uuid.New()

	require.NoError(t, r.Reserve(d.ID, tripID))
	assert.ErrorIs(t, r.Reserve(d.ID, uuid.New()), driver.ErrAlreadyReserved)

	require.NoError(t, r.Release(d.ID))
	assert.ErrorIs(t, r.Release(d.ID), driver.ErrNotReserved)

	got, err := r.Get(d.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Nil(t, got.ActiveTripID)
}

func TestFindAvailableFiltersAndOrders(t *testing.T) {
	r := New(nil, nil)
	center := struct{ lat, lng float64 }{12.9716, 77.5946}

	near := testDriver(12.9720, 77.5950)
	far := testDriver(12.9900, 77.6200)
	near.Name, far.Name = "near", "far"

	reserved := testDriver(12.9718, 77.5948)
	offShift := testDriver(12.9717, 77.5947)
	offShift.Available = false
	wrongVehicle := testDriver(12.9717, 77.5947)
	wrongVehicle.VehicleType = driver.VehiclePremium
	unverified := testDriver(12.9717, 77.5947)
	unverified.Verified = false
	outOfRange := testDriver(13.30, 77.90)

	for _, d := range []driver.Driver{near, far, reserved, offShift, wrongVehicle, unverified, outOfRange} {
		r.Upsert(d)
	}
	require.NoError(t, r.Reserve(reserved.ID, uuid.New()))

	got := r.FindAvailable(center.lat, center.lng, 5.0, driver.VehicleStandard, 20)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Name)
	assert.Equal(t, "far", got[1].Name)
	assert.Less(t, got[0].DistanceKM, got[1].DistanceKM)
}

func TestFindAvailableRespectsLimit(t *testing.T) {
	r := New(nil, nil)
	for i := 0; i < 10; i++ {
		r.Upsert(testDriver(12.97, 77.59))
	}
	got := r.FindAvailable(12.97, 77.59, 5.0, driver.VehicleStandard, 3)
	assert.Len(t, got, 3)
}

func TestSetAvailabilityBlockedWhileReserved(t *testing.T) {
	r := New(nil, nil)
	d := testDriver(12.97, 77.59)
	r.Upsert(d)
	require.NoError(t, r.Reserve(d.ID, uuid.New()))

	assert.ErrorIs(t, r.SetAvailability(d.ID, true), driver.ErrAlreadyReserved)
	assert.ErrorIs(t, r.SetAvailability(d.ID, false), driver.ErrAlreadyReserved)
}

func TestUpdateMetrics(t *testing.T) {
	r := New(nil, nil)
	d := testDriver(12.97, 77.59)
	r.Upsert(d)

	require.NoError(t, r.UpdateMetrics(d.ID, MetricsDelta{OfferAccepted: true}))
	require.NoError(t, r.UpdateMetrics(d.ID, MetricsDelta{OfferDeclined: true}))

	got, err := r.Get(d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got.AcceptanceRate, 0.001)

	require.NoError(t, r.UpdateMetrics(d.ID, MetricsDelta{TripCompleted: true}))
	got, err = r.Get(d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, got.CompletionRate, 0.001)
	assert.Equal(t, 1, got.CompletedTrips)
	assert.False(t, got.LastCompleted.IsZero())
}

func TestUpsertPreservesReservation(t *testing.T) {
	r := New(nil, nil)
	d := testDriver(12.97, 77.59)
	r.Upsert(d)
	tripID := uuid.New()
	require.NoError(t, r.Reserve(d.ID, tripID))

	d.Name = "Renamed"
	d.Available = true // stale profile payload
	r.Upsert(d)

	got, err := r.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.False(t, got.Available)
	require.NotNil(t, got.ActiveTripID)
	assert.Equal(t, tripID, *got.ActiveTripID)
}

func TestHaversineKM(t *testing.T) {
	// Bangalore city center to airport, roughly 31-33 km
	d := HaversineKM(12.9716, 77.5946, 13.1986, 77.7066)
	assert.InDelta(t, 28.0, d, 4.0)

	assert.Zero(t, HaversineKM(12.97, 77.59, 12.97, 77.59))
}
