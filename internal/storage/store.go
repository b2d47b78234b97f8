package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/domain/trip"
)

// TripStore persists trip records. The dispatch coordinator treats Save
// failures on final outcomes as infrastructure errors, distinct from
// matching outcomes.
type TripStore interface {
	Save(ctx context.Context, t *trip.Trip) error
	Get(ctx context.Context, id uuid.UUID) (*trip.Trip, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*trip.Trip, error)
	// CountCompletedPair returns how many completed trips this driver and
	// client share, feeding the familiarity scoring factor.
	CountCompletedPair(ctx context.Context, clientID, driverID uuid.UUID) (int, error)
}

// MemoryStore is a map-backed TripStore for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	trips map[uuid.UUID]trip.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[uuid.UUID]trip.Trip)}
}

func (s *MemoryStore) Save(_ context.Context, t *trip.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = *t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	return &t, nil
}

func (s *MemoryStore) ListByClient(_ context.Context, clientID uuid.UUID, limit int) ([]*trip.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*trip.Trip
	for _, t := range s.trips {
		if t.ClientID != clientID {
			continue
		}
		cp := t
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CountCompletedPair(_ context.Context, clientID, driverID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.trips {
		if t.Status == trip.StatusCompleted && t.ClientID == clientID &&
			t.DriverID != nil && *t.DriverID == driverID {
			n++
		}
	}
	return n, nil
}
