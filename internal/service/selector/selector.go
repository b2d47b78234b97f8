package selector

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/scoring"
)

// Candidate is a scored driver in ranking order.
type Candidate struct {
	registry.Snapshot
	Score float64
}

// PriorTripCounter reports how many completed trips a driver and client
// share. A nil counter scores the familiarity factor as zero.
type PriorTripCounter interface {
	CountCompletedPair(ctx context.Context, clientID, driverID uuid.UUID) (int, error)
}

// Selector ranks available drivers for a trip request. Ranking is fully
// deterministic: identical inputs always return the same order.
type Selector struct {
	registry *registry.Registry
	params   *scoring.ParameterStore
	prior    PriorTripCounter
	maxCount int
}

func New(reg *registry.Registry, params *scoring.ParameterStore, prior PriorTripCounter, maxCandidates int) *Selector {
	return &Selector{registry: reg, params: params, prior: prior, maxCount: maxCandidates}
}

// Request describes what to rank candidates against.
type Request struct {
	ClientID      uuid.UUID
	PickupLat     float64
	PickupLng     float64
	RadiusKM      float64
	VehicleType   driver.VehicleType
	RiderLanguage string
}

// Rank returns candidates ordered best first. Ties on score break to the
// closer driver, then the higher completion rate, then the driver who has
// waited longest since their last completed trip.
func (s *Selector) Rank(ctx context.Context, req Request) ([]Candidate, error) {
	weights := s.params.Get()
	snaps := s.registry.FindAvailable(req.PickupLat, req.PickupLng, req.RadiusKM,
		req.VehicleType, s.maxCount)

	out := make([]Candidate, 0, len(snaps))
	for _, snap := range snaps {
		prior := 0
		if s.prior != nil {
			n, err := s.prior.CountCompletedPair(ctx, req.ClientID, snap.ID)
			if err == nil {
				prior = n
			}
		}
		score := scoring.Score(scoring.Input{
			DistanceKM:     snap.DistanceKM,
			MaxRadiusKM:    req.RadiusKM,
			Rating:         snap.Rating,
			AcceptanceRate: snap.AcceptanceRate,
			CompletionRate: snap.CompletionRate,
			CompletedTrips: snap.CompletedTrips,
			Languages:      snap.Languages,
			RiderLanguage:  req.RiderLanguage,
			VehicleType:    snap.VehicleType,
			WantedVehicle:  req.VehicleType,
			PriorTrips:     prior,
		}, weights)
		out = append(out, Candidate{Snapshot: snap, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DistanceKM != b.DistanceKM {
			return a.DistanceKM < b.DistanceKM
		}
		if a.CompletionRate != b.CompletionRate {
			return a.CompletionRate > b.CompletionRate
		}
		return a.LastCompleted.Before(b.LastCompleted)
	})
	return out, nil
}
