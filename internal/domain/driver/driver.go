package driver

import (
	"time"

	"github.com/google/uuid"
)

// VehicleType represents the type of vehicle
type VehicleType string

const (
	VehicleStandard VehicleType = "standard"
	VehiclePremium  VehicleType = "premium"
	VehicleSUV      VehicleType = "suv"
	VehicleMoto     VehicleType = "moto"
)

// Location represents a geographic position with its observation time
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Driver represents a driver entity.
//
// Availability and the active trip reference move together: an unavailable
// driver always has an active trip recorded and an available driver never
// does. The registry enforces this through Reserve/Release.
type Driver struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Location       Location    `json:"location"`
	Available      bool        `json:"available"`
	ActiveTripID   *uuid.UUID  `json:"active_trip_id,omitempty"`
	VehicleType    VehicleType `json:"vehicle_type"`
	Rating         float64     `json:"rating"`          // 0..5
	AcceptanceRate float64     `json:"acceptance_rate"` // 0..100
	CompletionRate float64     `json:"completion_rate"` // 0..100
	CompletedTrips int         `json:"completed_trips"`
	Languages      []string    `json:"languages"`
	Verified       bool        `json:"verified"`
	LastCompleted  time.Time   `json:"last_completed_at"`
}

// IsValid validates the vehicle type
func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleStandard, VehiclePremium, VehicleSUV, VehicleMoto:
		return true
	}
	return false
}

// CanServe reports whether the driver is eligible for a request of the
// given vehicle type. Verification is a hard gate.
func (d *Driver) CanServe(v VehicleType) bool {
	return d.Verified && d.VehicleType == v
}
