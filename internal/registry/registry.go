package registry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/observability"
	"github.com/swiftride/dispatch/pkg/logger"
)

// Registry is the authoritative in-memory view of live drivers. It is the
// only shared mutable resource in the matching core; all mutation goes
// through its methods. The index map is guarded by an RWMutex, each driver
// record carries its own mutex, so Reserve is linearizable per driver and
// one trip's offer wait never blocks another driver's location update.
type Registry struct {
	mu      sync.RWMutex
	drivers map[uuid.UUID]*entry
	mirror  GeoMirror
	logger  *logger.Logger
}

type entry struct {
	mu sync.Mutex
	d  driver.Driver

	// dispatch counters, written only via UpdateMetrics
	offersTotal    int
	offersAccepted int
	tripsAssigned  int
	tripsCompleted int
}

// Snapshot is an immutable copy of a driver record at selection time,
// annotated with the distance from the query center.
type Snapshot struct {
	driver.Driver
	DistanceKM float64
}

// MetricsDelta describes one dispatch outcome for a driver. Exactly one
// of the offer fields and at most one of the trip fields is set per call.
type MetricsDelta struct {
	OfferAccepted bool
	OfferDeclined bool
	TripCompleted bool
	TripCancelled bool
}

// GeoMirror receives best-effort location updates for external consumers
// (dashboard, warm restarts). The registry never reads from it.
type GeoMirror interface {
	Upsert(driverID uuid.UUID, lat, lng float64)
}

// New creates an empty registry. The mirror may be nil.
func New(mirror GeoMirror, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		drivers: make(map[uuid.UUID]*entry),
		mirror:  mirror,
		logger:  log,
	}
}

// Upsert registers a driver or replaces its profile fields. Availability
// and the active trip reference of an existing record are preserved so a
// profile refresh cannot break a reservation.
func (r *Registry) Upsert(d driver.Driver) {
	r.mu.Lock()
	e, ok := r.drivers[d.ID]
	if !ok {
		e = &entry{d: d}
		r.drivers[d.ID] = e
		r.mu.Unlock()
		if d.Available {
			observability.DriversAvailable.Inc()
		}
		return
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	avail, active := e.d.Available, e.d.ActiveTripID
	e.d = d
	e.d.Available = avail
	e.d.ActiveTripID = active
}

// Get returns a snapshot of a single driver.
func (r *Registry) Get(id uuid.UUID) (driver.Driver, error) {
	e, ok := r.lookup(id)
	if !ok {
		return driver.Driver{}, driver.ErrDriverNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneDriver(e.d), nil
}

// FindAvailable returns snapshots of available, verified drivers of the
// requested vehicle type within radiusKM of the center, ordered by
// distance ascending.
func (r *Registry) FindAvailable(lat, lng, radiusKM float64, vehicleType driver.VehicleType, limit int) []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.drivers))
	for _, e := range r.drivers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, limit)
	for _, e := range entries {
		e.mu.Lock()
		d := e.d
		e.mu.Unlock()

		if !d.Available || !d.CanServe(vehicleType) {
			continue
		}
		dist := HaversineKM(lat, lng, d.Location.Latitude, d.Location.Longitude)
		if dist > radiusKM {
			continue
		}
		out = append(out, Snapshot{Driver: cloneDriver(d), DistanceKM: dist})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Reserve places an exclusive hold on a driver for the given trip. Exactly
// one of any set of concurrent callers succeeds; the rest receive
// ErrAlreadyReserved. Availability flips false immediately so the driver
// cannot be offered two trips at once.
func (r *Registry) Reserve(driverID, tripID uuid.UUID) error {
	e, ok := r.lookup(driverID)
	if !ok {
		return driver.ErrDriverNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.d.Available || e.d.ActiveTripID != nil {
		return driver.ErrAlreadyReserved
	}
	id := tripID
	e.d.Available = false
	e.d.ActiveTripID = &id
	observability.DriversAvailable.Dec()
	return nil
}

// Release undoes a reservation (offer declined or timed out, trip finished
// or cancelled). Releasing an unreserved driver is a no-op error so
// compensating paths can call it unconditionally.
func (r *Registry) Release(driverID uuid.UUID) error {
	e, ok := r.lookup(driverID)
	if !ok {
		return driver.ErrDriverNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.ActiveTripID == nil {
		return driver.ErrNotReserved
	}
	e.d.Available = true
	e.d.ActiveTripID = nil
	observability.DriversAvailable.Inc()
	return nil
}

// UpdateLocation applies a location report. Reports are last-writer-wins
// per driver in arrival order; the stored timestamp is set on write.
func (r *Registry) UpdateLocation(driverID uuid.UUID, lat, lng float64) error {
	e, ok := r.lookup(driverID)
	if !ok {
		return driver.ErrDriverNotFound
	}

	e.mu.Lock()
	e.d.Location = driver.Location{Latitude: lat, Longitude: lng, UpdatedAt: time.Now()}
	e.mu.Unlock()

	if r.mirror != nil {
		r.mirror.Upsert(driverID, lat, lng)
	}
	return nil
}

// SetAvailability lets a driver go on or off shift. It refuses while a
// reservation or trip is active; Release is the only way out of those.
func (r *Registry) SetAvailability(driverID uuid.UUID, available bool) error {
	e, ok := r.lookup(driverID)
	if !ok {
		return driver.ErrDriverNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.ActiveTripID != nil {
		return driver.ErrAlreadyReserved
	}
	if e.d.Available == available {
		return nil
	}
	e.d.Available = available
	if available {
		observability.DriversAvailable.Inc()
	} else {
		observability.DriversAvailable.Dec()
	}
	return nil
}

// UpdateMetrics folds one dispatch outcome into a driver's rolling rates.
// Rates are cumulative ratios, so every recent accept or completion moves
// them in the matching direction. The statistics aggregator is the only
// caller.
func (r *Registry) UpdateMetrics(driverID uuid.UUID, delta MetricsDelta) error {
	e, ok := r.lookup(driverID)
	if !ok {
		return driver.ErrDriverNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if delta.OfferAccepted || delta.OfferDeclined {
		e.offersTotal++
		if delta.OfferAccepted {
			e.offersAccepted++
			e.tripsAssigned++
		}
		e.d.AcceptanceRate = ratio(e.offersAccepted, e.offersTotal)
	}
	if delta.TripCompleted || delta.TripCancelled {
		if delta.TripCompleted {
			e.tripsCompleted++
			e.d.CompletedTrips++
			e.d.LastCompleted = time.Now()
		}
		e.d.CompletionRate = ratio(e.tripsCompleted, e.tripsAssigned)
	}
	return nil
}

func (r *Registry) lookup(id uuid.UUID) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.drivers[id]
	r.mu.RUnlock()
	return e, ok
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func cloneDriver(d driver.Driver) driver.Driver {
	if d.ActiveTripID != nil {
		id := *d.ActiveTripID
		d.ActiveTripID = &id
	}
	if d.Languages != nil {
		d.Languages = append([]string(nil), d.Languages...)
	}
	return d
}

// HaversineKM calculates the great-circle distance between two points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371 // kilometers

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
