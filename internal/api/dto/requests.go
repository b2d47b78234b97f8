package dto

import (
	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/scoring"
)

// CreateTripRequest represents a rider requesting a trip
type CreateTripRequest struct {
	ClientID         string  `json:"client_id" binding:"required,uuid"`
	PickupLatitude   float64 `json:"pickup_latitude" binding:"min=-90,max=90"`
	PickupLongitude  float64 `json:"pickup_longitude" binding:"min=-180,max=180"`
	DropoffLatitude  float64 `json:"dropoff_latitude" binding:"min=-90,max=90"`
	DropoffLongitude float64 `json:"dropoff_longitude" binding:"min=-180,max=180"`
	PickupAddress    string  `json:"pickup_address"`
	DropoffAddress   string  `json:"dropoff_address"`
	VehicleType      string  `json:"vehicle_type" binding:"required,oneof=standard premium suv moto"`
	Language         string  `json:"language"`
}

// FindDriverRequest starts the dispatch flow for a requested trip
type FindDriverRequest struct {
	TripID   string `json:"trip_id" binding:"required,uuid"`
	Language string `json:"language"`
}

// OfferResponseRequest is the REST fallback for a driver answering an
// offer when their WebSocket session is unavailable
type OfferResponseRequest struct {
	DriverID string `json:"driver_id" binding:"required,uuid"`
	Accepted *bool  `json:"accepted" binding:"required"`
}

// CompleteTripRequest represents ending a trip
type CompleteTripRequest struct {
	DistanceKM      float64 `json:"distance_km" binding:"required"`
	DurationMinutes int     `json:"duration_minutes" binding:"required"`
}

// CancelTripRequest carries the mandatory cancellation reason
type CancelTripRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RegisterDriverRequest registers or refreshes a driver profile
type RegisterDriverRequest struct {
	ID          string   `json:"id" binding:"omitempty,uuid"`
	Name        string   `json:"name" binding:"required"`
	Latitude    float64  `json:"latitude" binding:"min=-90,max=90"`
	Longitude   float64  `json:"longitude" binding:"min=-180,max=180"`
	VehicleType string   `json:"vehicle_type" binding:"required,oneof=standard premium suv moto"`
	Rating      float64  `json:"rating" binding:"min=0,max=5"`
	Languages   []string `json:"languages"`
	Verified    bool     `json:"verified"`
	Available   bool     `json:"available"`
}

// UpdateLocationRequest represents a driver location update. Zero is a
// legal coordinate, so validation is by range rather than presence.
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

// UpdateAvailabilityRequest flips a driver on or off shift
type UpdateAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// UpdateWeightsRequest replaces the live scoring weight vector
type UpdateWeightsRequest struct {
	Weights scoring.Weights `json:"weights" binding:"required"`
}

// SimulateRequest scores candidates for a hypothetical trip without
// reserving anyone
type SimulateRequest struct {
	ClientID        string           `json:"client_id" binding:"omitempty,uuid"`
	PickupLatitude  float64          `json:"pickup_latitude" binding:"min=-90,max=90"`
	PickupLongitude float64          `json:"pickup_longitude" binding:"min=-180,max=180"`
	VehicleType     string           `json:"vehicle_type" binding:"required,oneof=standard premium suv moto"`
	Language        string           `json:"language"`
	Weights         *scoring.Weights `json:"weights"`
}

// CandidateResponse is one ranked candidate in a simulation
type CandidateResponse struct {
	DriverID       uuid.UUID `json:"driver_id"`
	Name           string    `json:"name"`
	Score          float64   `json:"score"`
	DistanceKM     float64   `json:"distance_km"`
	Rating         float64   `json:"rating"`
	AcceptanceRate float64   `json:"acceptance_rate"`
	CompletionRate float64   `json:"completion_rate"`
}
