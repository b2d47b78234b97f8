package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/registry"
)

func TestAggregatorRates(t *testing.T) {
	reg := registry.New(nil, nil)
	d := driver.Driver{
		ID:          uuid.New(),
		Location:    driver.Location{Latitude: 12.97, Longitude: 77.59, UpdatedAt: time.Now()},
		Available:   true,
		VehicleType: driver.VehicleStandard,
		Verified:    true,
	}
	reg.Upsert(d)
	agg := NewAggregator(reg, nil)

	agg.RecordOffer(d.ID, true)
	agg.RecordOffer(d.ID, false)
	agg.RecordOffer(d.ID, true)
	agg.RecordDispatch(true)
	agg.RecordDispatch(false)
	agg.RecordTripOutcome(d.ID, true)
	agg.RecordTripOutcome(d.ID, false)

	got, err := reg.Get(d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 66.666, got.AcceptanceRate, 0.01)
	assert.InDelta(t, 50.0, got.CompletionRate, 0.01)

	s := agg.Snapshot()
	assert.Equal(t, 3, s.OffersSent)
	assert.Equal(t, 2, s.OffersAccepted)
	assert.Equal(t, 1, s.TripsMatched)
	assert.Equal(t, 1, s.TripsUnmatched)
	assert.InDelta(t, 50.0, s.MatchRate, 0.001)
	assert.InDelta(t, 66.666, s.AcceptRate, 0.01)
}

func TestAggregatorUnknownDriver(t *testing.T) {
	agg := NewAggregator(registry.New(nil, nil), nil)
	// must not panic; the failure is logged and counted system-wide
	agg.RecordOffer(uuid.New(), true)
	agg.RecordTripOutcome(uuid.New(), false)
	assert.Equal(t, 1, agg.Snapshot().OffersSent)
}
