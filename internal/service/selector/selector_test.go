package selector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/scoring"
)

func newSelector(t *testing.T, reg *registry.Registry, w scoring.Weights) *Selector {
	t.Helper()
	params, err := scoring.NewParameterStore(w)
	require.NoError(t, err)
	return New(reg, params, nil, 20)
}

func candidateDriver(name string, lat, lng float64) driver.Driver {
	return driver.Driver{
		ID:          uuid.New(),
		Name:        name,
		Location:    driver.Location{Latitude: lat, Longitude: lng, UpdatedAt: time.Now()},
		Available:   true,
		VehicleType: driver.VehicleStandard,
		Rating:      4.0,
		Verified:    true,
	}
}

func baseRequest() Request {
	return Request{
		ClientID:    uuid.New(),
		PickupLat:   12.9716,
		PickupLng:   77.5946,
		RadiusKM:    5.0,
		VehicleType: driver.VehicleStandard,
	}
}

func TestRankOrdersByScore(t *testing.T) {
	reg := registry.New(nil, nil)
	// equidistant, differing rating
	low := candidateDriver("low", 12.980, 77.5946)
	high := candidateDriver("high", 12.980, 77.5946)
	low.Rating = 3.0
	high.Rating = 5.0
	reg.Upsert(low)
	reg.Upsert(high)

	sel := newSelector(t, reg, scoring.Weights{Distance: 50, Rating: 50})
	got, err := sel.Rank(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Name)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankTieBreaks(t *testing.T) {
	// Weight only on a factor all candidates share, forcing score ties.
	weights := scoring.Weights{VehicleMatch: 100}

	t.Run("closer distance wins", func(t *testing.T) {
		reg := registry.New(nil, nil)
		near := candidateDriver("near", 12.9720, 77.5950)
		far := candidateDriver("far", 12.9900, 77.6100)
		reg.Upsert(far)
		reg.Upsert(near)

		got, err := newSelector(t, reg, weights).Rank(context.Background(), baseRequest())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, got[0].Score, got[1].Score)
		assert.Equal(t, "near", got[0].Name)
	})

	t.Run("higher completion rate wins at equal distance", func(t *testing.T) {
		reg := registry.New(nil, nil)
		a := candidateDriver("steady", 12.9800, 77.5946)
		b := candidateDriver("flaky", 12.9800, 77.5946)
		a.CompletionRate = 98
		b.CompletionRate = 60
		reg.Upsert(b)
		reg.Upsert(a)

		got, err := newSelector(t, reg, weights).Rank(context.Background(), baseRequest())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "steady", got[0].Name)
	})

	t.Run("longest idle wins at equal distance and completion", func(t *testing.T) {
		reg := registry.New(nil, nil)
		idle := candidateDriver("idle", 12.9800, 77.5946)
		busy := candidateDriver("busy", 12.9800, 77.5946)
		idle.LastCompleted = time.Now().Add(-2 * time.Hour)
		busy.LastCompleted = time.Now().Add(-5 * time.Minute)
		reg.Upsert(busy)
		reg.Upsert(idle)

		got, err := newSelector(t, reg, weights).Rank(context.Background(), baseRequest())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "idle", got[0].Name)
	})
}

func TestRankDeterministic(t *testing.T) {
	reg := registry.New(nil, nil)
	for i := 0; i < 8; i++ {
		d := candidateDriver("d", 12.9720+float64(i)*0.001, 77.5950)
		d.Rating = 3.5 + float64(i%3)*0.5
		reg.Upsert(d)
	}
	sel := newSelector(t, reg, scoring.Weights{Distance: 40, Rating: 40, CompletionRate: 20})

	first, err := sel.Rank(context.Background(), baseRequest())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := sel.Rank(context.Background(), baseRequest())
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
}

func TestRankEmptyWhenNoCandidates(t *testing.T) {
	reg := registry.New(nil, nil)
	sel := newSelector(t, reg, scoring.Weights{Distance: 100})
	got, err := sel.Rank(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Empty(t, got)
}
