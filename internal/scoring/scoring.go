package scoring

import (
	"math"

	"github.com/swiftride/dispatch/internal/domain/driver"
)

// experienceCeiling is the completed-trip count at which the experience
// factor saturates at 100.
const experienceCeiling = 500

// priorTripsCeiling caps the client-familiarity factor; ten or more prior
// trips with the same client scores 100.
const priorTripsCeiling = 10

// Input carries everything the engine needs to score one candidate for
// one trip request. All fields are plain values so a score is a pure
// function of its input.
type Input struct {
	DistanceKM     float64
	MaxRadiusKM    float64
	Rating         float64
	AcceptanceRate float64
	CompletionRate float64
	CompletedTrips int
	Languages      []string
	RiderLanguage  string
	VehicleType    driver.VehicleType
	WantedVehicle  driver.VehicleType
	PriorTrips     int
}

// Score computes a candidate's weighted suitability in [0, 100]. Each
// factor is normalized to [0, 100] before weighting, the weights are
// normalized to sum 100, so the result stays in range regardless of the
// operator-supplied vector.
func Score(in Input, w Weights) float64 {
	w = w.Normalized()

	s := w.Distance * distanceFactor(in.DistanceKM, in.MaxRadiusKM)
	s += w.Rating * (clamp(in.Rating, 0, 5) * 20)
	s += w.AcceptanceRate * clamp(in.AcceptanceRate, 0, 100)
	s += w.CompletionRate * clamp(in.CompletionRate, 0, 100)
	s += w.Experience * experienceFactor(in.CompletedTrips)
	s += w.Language * languageFactor(in.Languages, in.RiderLanguage)
	s += w.VehicleMatch * vehicleFactor(in.VehicleType, in.WantedVehicle)
	s += w.PriorTrips * priorTripsFactor(in.PriorTrips)

	return s / 100
}

// distanceFactor is 100 at the pickup point and falls linearly to 0 at
// the search radius edge.
func distanceFactor(distKM, maxKM float64) float64 {
	if maxKM <= 0 {
		return 0
	}
	return 100 * (1 - math.Min(distKM/maxKM, 1))
}

func experienceFactor(trips int) float64 {
	return math.Min(float64(trips)/experienceCeiling, 1) * 100
}

func languageFactor(langs []string, wanted string) float64 {
	if wanted == "" {
		return 100
	}
	for _, l := range langs {
		if l == wanted {
			return 100
		}
	}
	return 0
}

func vehicleFactor(have, want driver.VehicleType) float64 {
	if have == want {
		return 100
	}
	return 0
}

func priorTripsFactor(n int) float64 {
	return math.Min(float64(n)/priorTripsCeiling, 1) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
