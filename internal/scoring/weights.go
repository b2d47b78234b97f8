package scoring

import (
	"sync/atomic"

	"github.com/swiftride/dispatch/pkg/errors"
)

// Weights holds the relative importance of each scoring factor. Values are
// expressed as percentages; Normalized rescales them so active factors sum
// to 100, which keeps the final score inside [0, 100] no matter what an
// operator submits.
type Weights struct {
	Distance       float64 `json:"distance"`
	Rating         float64 `json:"rating"`
	AcceptanceRate float64 `json:"acceptanceRate"`
	CompletionRate float64 `json:"completionRate"`
	Experience     float64 `json:"experience"`
	Language       float64 `json:"language"`
	VehicleMatch   float64 `json:"vehicleMatch"`
	PriorTrips     float64 `json:"priorTrips"`
}

func (w Weights) fields() []float64 {
	return []float64{
		w.Distance, w.Rating, w.AcceptanceRate, w.CompletionRate,
		w.Experience, w.Language, w.VehicleMatch, w.PriorTrips,
	}
}

// Validate rejects weight vectors the engine cannot score with: any
// negative weight, or all weights zero.
func (w Weights) Validate() error {
	sum := 0.0
	for _, f := range w.fields() {
		if f < 0 {
			return errors.ErrInvalidWeights
		}
		sum += f
	}
	if sum == 0 {
		return errors.ErrInvalidWeights
	}
	return nil
}

// Normalized returns a copy rescaled so the weights sum to 100.
func (w Weights) Normalized() Weights {
	sum := 0.0
	for _, f := range w.fields() {
		sum += f
	}
	if sum == 0 {
		return w
	}
	k := 100.0 / sum
	return Weights{
		Distance:       w.Distance * k,
		Rating:         w.Rating * k,
		AcceptanceRate: w.AcceptanceRate * k,
		CompletionRate: w.CompletionRate * k,
		Experience:     w.Experience * k,
		Language:       w.Language * k,
		VehicleMatch:   w.VehicleMatch * k,
		PriorTrips:     w.PriorTrips * k,
	}
}

// ParameterStore holds the live weight vector. Readers always see a
// complete vector: updates swap an immutable snapshot via atomic.Pointer,
// so a dispatch mid-flight keeps the vector it started with.
type ParameterStore struct {
	current atomic.Pointer[Weights]
}

// NewParameterStore seeds the store with validated defaults.
func NewParameterStore(defaults Weights) (*ParameterStore, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	s := &ParameterStore{}
	norm := defaults.Normalized()
	s.current.Store(&norm)
	return s, nil
}

// Get returns the current weight vector.
func (s *ParameterStore) Get() Weights {
	return *s.current.Load()
}

// Update validates, normalizes and atomically installs a new vector.
// On validation failure the previous vector stays in effect.
func (s *ParameterStore) Update(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	norm := w.Normalized()
	s.current.Store(&norm)
	return nil
}
