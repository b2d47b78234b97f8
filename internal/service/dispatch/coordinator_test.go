package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/domain/trip"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/scoring"
	"github.com/swiftride/dispatch/internal/service/selector"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/storage"
	apperrors "github.com/swiftride/dispatch/pkg/errors"
)

// scriptedTransport answers offers on behalf of drivers: accept, decline,
// let the deadline pass, or fail delivery entirely.
type scriptedTransport struct {
	mu      sync.Mutex
	coord   *Coordinator
	scripts map[uuid.UUID]string // "accept", "decline", "silent", "unreachable"
	offered []uuid.UUID
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{scripts: make(map[uuid.UUID]string)}
}

func (t *scriptedTransport) SendOffer(_ context.Context, driverID uuid.UUID, offer Offer) error {
	t.mu.Lock()
	t.offered = append(t.offered, driverID)
	script := t.scripts[driverID]
	t.mu.Unlock()

	switch script {
	case "unreachable":
		return fmt.Errorf("driver session not found")
	case "silent":
		return nil
	case "decline":
		go t.coord.HandleOfferResponse(offer.TripID, driverID, false)
		return nil
	default:
		go t.coord.HandleOfferResponse(offer.TripID, driverID, true)
		return nil
	}
}

func (t *scriptedTransport) offerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offered)
}

type harness struct {
	coord     *Coordinator
	registry  *registry.Registry
	store     *storage.MemoryStore
	transport *scriptedTransport
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := registry.New(nil, nil)
	params, err := scoring.NewParameterStore(scoring.Weights{Distance: 60, Rating: 40})
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	sel := selector.New(reg, params, store, 20)
	transport := newScriptedTransport()

	cfg := config.MatchingConfig{
		SearchRadiusKM:  5.0,
		WidenMultiplier: 2.0,
		MaxCandidates:   20,
		OfferDeadline:   50 * time.Millisecond,
		OutcomeRetries:  3,
		OutcomeBackoff:  time.Millisecond,
	}

	coord := NewCoordinator(Deps{
		Registry:  reg,
		Selector:  sel,
		Store:     store,
		Transport: transport,
		Stats:     stats.NewAggregator(reg, nil),
	}, cfg, nil)
	transport.coord = coord

	return &harness{coord: coord, registry: reg, store: store, transport: transport}
}

func (h *harness) addDriver(t *testing.T, lat, lng float64, script string) uuid.UUID {
	t.Helper()
	d := driver.Driver{
		ID:          uuid.New(),
		Name:        "Driver " + script,
		Location:    driver.Location{Latitude: lat, Longitude: lng, UpdatedAt: time.Now()},
		Available:   true,
		VehicleType: driver.VehicleStandard,
		Rating:      4.5,
		Verified:    true,
	}
	h.registry.Upsert(d)
	h.transport.mu.Lock()
	h.transport.scripts[d.ID] = script
	h.transport.mu.Unlock()
	return d.ID
}

func (h *harness) addTrip(t *testing.T) *trip.Trip {
	t.Helper()
	tr := trip.New(uuid.New(), driver.VehicleStandard)
	tr.PickupLatitude, tr.PickupLongitude = 12.9716, 77.5946
	tr.DropoffLatitude, tr.DropoffLongitude = 12.9352, 77.6245
	require.NoError(t, h.store.Save(context.Background(), tr))
	return tr
}

func TestFindDriverFirstCandidateAccepts(t *testing.T) {
	h := newHarness(t)
	driverID := h.addDriver(t, 12.9720, 77.5950, "accept")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.NotNil(t, res.DriverID)
	assert.Equal(t, driverID, *res.DriverID)
	assert.Equal(t, 1, res.CascadeDepth)

	saved, err := h.store.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusAccepted, saved.Status)
	require.NotNil(t, saved.DriverID)
	assert.Equal(t, driverID, *saved.DriverID)

	d, err := h.registry.Get(driverID)
	require.NoError(t, err)
	assert.False(t, d.Available, "accepting driver stays reserved")
}

func TestFindDriverCascadesOnDecline(t *testing.T) {
	h := newHarness(t)
	// decliner is closer, so it is offered first
	decliner := h.addDriver(t, 12.9718, 77.5948, "decline")
	accepter := h.addDriver(t, 12.9800, 77.6000, "accept")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, accepter, *res.DriverID)
	assert.Equal(t, 2, res.CascadeDepth)

	d, err := h.registry.Get(decliner)
	require.NoError(t, err)
	assert.True(t, d.Available, "declining driver is released")
}

func TestFindDriverOfferTimeout(t *testing.T) {
	h := newHarness(t)
	silent := h.addDriver(t, 12.9718, 77.5948, "silent")
	accepter := h.addDriver(t, 12.9800, 77.6000, "accept")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, accepter, *res.DriverID)

	d, err := h.registry.Get(silent)
	require.NoError(t, err)
	assert.True(t, d.Available, "timed-out driver is released")
}

func TestFindDriverSkipsUnreachable(t *testing.T) {
	h := newHarness(t)
	dead := h.addDriver(t, 12.9718, 77.5948, "unreachable")
	accepter := h.addDriver(t, 12.9800, 77.6000, "accept")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, accepter, *res.DriverID)

	d, err := h.registry.Get(dead)
	require.NoError(t, err)
	assert.True(t, d.Available)
}

func TestFindDriverUnmatchedWhenExhausted(t *testing.T) {
	h := newHarness(t)
	h.addDriver(t, 12.9718, 77.5948, "decline")
	h.addDriver(t, 12.9800, 77.6000, "decline")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.DriverID)

	saved, err := h.store.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusUnmatched, saved.Status)
}

func TestFindDriverNoCandidatesAtAll(t *testing.T) {
	h := newHarness(t)
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Zero(t, res.CascadeDepth)
	assert.Zero(t, h.transport.offerCount())
}

func TestFindDriverWidensRadiusOnce(t *testing.T) {
	h := newHarness(t)
	// ~7.7km out: beyond the 5km radius, inside the widened 10km
	far := h.addDriver(t, 13.0410, 77.5946, "accept")
	tr := h.addTrip(t)

	res, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, far, *res.DriverID)
}

func TestFindDriverIdempotentAfterMatch(t *testing.T) {
	h := newHarness(t)
	driverID := h.addDriver(t, 12.9720, 77.5950, "accept")
	tr := h.addTrip(t)

	first, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	require.True(t, first.Matched)

	again, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	require.NoError(t, err)
	assert.True(t, again.Matched)
	assert.Equal(t, driverID, *again.DriverID)
	assert.Equal(t, 1, h.transport.offerCount(), "no second offer goes out")
}

func TestFindDriverConcurrentSameTrip(t *testing.T) {
	h := newHarness(t)
	h.addDriver(t, 12.9720, 77.5950, "silent")
	tr := h.addTrip(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
		done <- err
	}()

	// second request for the same trip while the offer is pending
	require.Eventually(t, func() bool { return h.transport.offerCount() == 1 },
		time.Second, time.Millisecond)
	_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrDispatchInProgress)

	require.NoError(t, <-done) // silent driver times out, trip unmatched
}

func TestAbortReleasesReservation(t *testing.T) {
	h := newHarness(t)
	silent := h.addDriver(t, 12.9720, 77.5950, "silent")
	tr := h.addTrip(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
		done <- err
	}()

	// wait until the offer is on the wire, then abort
	require.Eventually(t, func() bool { return h.transport.offerCount() == 1 },
		time.Second, time.Millisecond)
	require.True(t, h.coord.Abort(tr.ID))

	err := <-done
	assert.ErrorIs(t, err, apperrors.ErrDispatchCancelled)

	d, err := h.registry.Get(silent)
	require.NoError(t, err)
	assert.True(t, d.Available, "aborted dispatch releases the driver")
}

func TestHandleOfferResponseStale(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.coord.HandleOfferResponse(uuid.New(), uuid.New(), true))
}

func TestFindDriverTripNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.FindDriver(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, apperrors.ErrTripNotFound)
}

func TestFindDriverTerminalTrip(t *testing.T) {
	h := newHarness(t)
	tr := h.addTrip(t)
	require.NoError(t, tr.Cancel("rider changed plans"))
	require.NoError(t, h.store.Save(context.Background(), tr))

	_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

// failingStore wraps the memory store and fails Save after the trip
// reaches a given status.
type failingStore struct {
	*storage.MemoryStore
	failOn trip.Status
}

func (s *failingStore) Save(ctx context.Context, t *trip.Trip) error {
	if t.Status == s.failOn {
		return fmt.Errorf("connection refused")
	}
	return s.MemoryStore.Save(ctx, t)
}

func TestFindDriverPersistenceFailureIsInfraError(t *testing.T) {
	h := newHarness(t)
	store := &failingStore{MemoryStore: h.store, failOn: trip.StatusAccepted}
	h.coord.store = store

	driverID := h.addDriver(t, 12.9720, 77.5950, "accept")
	tr := h.addTrip(t)

	_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrDispatchInfrastructure)

	d, err := h.registry.Get(driverID)
	require.NoError(t, err)
	assert.True(t, d.Available, "driver released when the match cannot be persisted")
}

// stubFraud scripts the fraud screen's verdict.
type stubFraud struct {
	allowed bool
	err     error
}

func (s stubFraud) Check(context.Context, uuid.UUID, float64, float64) (bool, error) {
	return s.allowed, s.err
}

func TestFindDriverFraudRejected(t *testing.T) {
	h := newHarness(t)
	h.coord.fraud = stubFraud{allowed: false}

	h.addDriver(t, 12.9720, 77.5950, "accept")
	tr := h.addTrip(t)

	_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrFraudRejected)
	assert.Equal(t, 0, h.transport.offerCount(), "no offers go out for a rejected request")
}

func TestFindDriverFraudScreenDownIsInfraError(t *testing.T) {
	h := newHarness(t)
	h.coord.fraud = stubFraud{err: fmt.Errorf("connection refused")}

	h.addDriver(t, 12.9720, 77.5950, "accept")
	tr := h.addTrip(t)

	_, err := h.coord.FindDriver(context.Background(), tr.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrDispatchInfrastructure)
	assert.Equal(t, 0, h.transport.offerCount(), "no offers go out when screening is unavailable")

	saved, getErr := h.store.Get(context.Background(), tr.ID)
	require.NoError(t, getErr)
	assert.Equal(t, trip.StatusRequested, saved.Status, "trip stays requested and can be retried")
}
