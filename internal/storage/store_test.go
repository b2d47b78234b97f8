package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/domain/trip"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tr := trip.New(uuid.New(), driver.VehicleStandard)
	require.NoError(t, s.Save(ctx, tr))

	got, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)

	// the stored copy is isolated from later mutation
	tr.Status = trip.StatusCancelled
	got, err = s.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusRequested, got.Status)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, trip.ErrTripNotFound)
}

func TestCountCompletedPair(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	clientID := uuid.New()
	driverID := uuid.New()

	for i := 0; i < 3; i++ {
		tr := trip.New(clientID, driver.VehicleStandard)
		require.NoError(t, tr.Accept(driverID))
		require.NoError(t, tr.Start())
		require.NoError(t, tr.Complete(5, 12, 120))
		require.NoError(t, s.Save(ctx, tr))
	}
	// same pair but cancelled, must not count
	tr := trip.New(clientID, driver.VehicleStandard)
	require.NoError(t, tr.Accept(driverID))
	require.NoError(t, tr.Cancel("rider no-show"))
	require.NoError(t, s.Save(ctx, tr))
	// different driver
	other := trip.New(clientID, driver.VehicleStandard)
	require.NoError(t, other.Accept(uuid.New()))
	require.NoError(t, other.Start())
	require.NoError(t, other.Complete(2, 6, 70))
	require.NoError(t, s.Save(ctx, other))

	n, err := s.CountCompletedPair(ctx, clientID, driverID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListByClient(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	clientID := uuid.New()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(ctx, trip.New(clientID, driver.VehicleStandard)))
	}
	require.NoError(t, s.Save(ctx, trip.New(uuid.New(), driver.VehicleStandard)))

	out, err := s.ListByClient(ctx, clientID, 10)
	require.NoError(t, err)
	assert.Len(t, out, 4)

	out, err = s.ListByClient(ctx, clientID, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
