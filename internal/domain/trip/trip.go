package trip

import (
	"time"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/domain/driver"
)

// Status represents trip status
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusUnmatched Status = "unmatched"
)

// Trip represents a trip request and its lifecycle.
//
// The driver reference is non-nil exactly when the status is accepted,
// started or completed; every mutation goes through the transition methods
// below, which preserve that invariant.
type Trip struct {
	ID                 uuid.UUID          `json:"id"`
	ClientID           uuid.UUID          `json:"client_id"`
	DriverID           *uuid.UUID         `json:"driver_id,omitempty"`
	Status             Status             `json:"status"`
	VehicleType        driver.VehicleType `json:"vehicle_type"`
	PickupLatitude     float64            `json:"pickup_latitude"`
	PickupLongitude    float64            `json:"pickup_longitude"`
	DropoffLatitude    float64            `json:"dropoff_latitude"`
	DropoffLongitude   float64            `json:"dropoff_longitude"`
	PickupAddress      string             `json:"pickup_address,omitempty"`
	DropoffAddress     string             `json:"dropoff_address,omitempty"`
	Language           string             `json:"language,omitempty"`
	SOSTriggered       bool               `json:"sos_triggered"`
	FinalDistanceKM    *float64           `json:"final_distance_km,omitempty"`
	FinalDurationMin   *int               `json:"final_duration_minutes,omitempty"`
	FinalFare          *float64           `json:"final_fare,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	RequestedAt        time.Time          `json:"requested_at"`
	MatchedAt          *time.Time         `json:"matched_at,omitempty"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
}

// New creates a trip in the requested state.
func New(clientID uuid.UUID, vehicleType driver.VehicleType) *Trip {
	return &Trip{
		ID:          uuid.New(),
		ClientID:    clientID,
		Status:      StatusRequested,
		VehicleType: vehicleType,
		RequestedAt: time.Now(),
	}
}

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusStarted,
		StatusCompleted, StatusCancelled, StatusUnmatched:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusUnmatched:
		return true
	}
	return false
}

// canTransition is the single source of truth for the lifecycle table.
func canTransition(from, to Status) bool {
	switch from {
	case StatusRequested:
		return to == StatusAccepted || to == StatusUnmatched || to == StatusCancelled
	case StatusAccepted:
		return to == StatusStarted || to == StatusCancelled
	case StatusStarted:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// Accept assigns a driver and moves the trip to accepted.
func (t *Trip) Accept(driverID uuid.UUID) error {
	if !canTransition(t.Status, StatusAccepted) {
		return transitionErr(t.Status, StatusAccepted)
	}
	now := time.Now()
	t.Status = StatusAccepted
	t.DriverID = &driverID
	t.MatchedAt = &now
	return nil
}

// Start moves an accepted trip to started.
func (t *Trip) Start() error {
	if !canTransition(t.Status, StatusStarted) {
		return transitionErr(t.Status, StatusStarted)
	}
	now := time.Now()
	t.Status = StatusStarted
	t.StartedAt = &now
	return nil
}

// Complete finalizes a started trip. The trip keeps its driver reference;
// fare is computed by the pricing collaborator before this is called.
func (t *Trip) Complete(distanceKM float64, durationMin int, fare float64) error {
	if !canTransition(t.Status, StatusCompleted) {
		return transitionErr(t.Status, StatusCompleted)
	}
	if distanceKM < 0 || durationMin < 0 {
		return ErrMissingTripTotals
	}
	now := time.Now()
	t.Status = StatusCompleted
	t.FinalDistanceKM = &distanceKM
	t.FinalDurationMin = &durationMin
	t.FinalFare = &fare
	t.CompletedAt = &now
	return nil
}

// Cancel terminates the trip from any pre-completion state. A reason is
// required; the driver reference is cleared so the availability invariant
// survives the release that follows.
func (t *Trip) Cancel(reason string) error {
	if !canTransition(t.Status, StatusCancelled) {
		return transitionErr(t.Status, StatusCancelled)
	}
	if reason == "" {
		return ErrCancelReasonRequired
	}
	now := time.Now()
	t.Status = StatusCancelled
	t.CancellationReason = reason
	t.CancelledAt = &now
	t.DriverID = nil
	return nil
}

// MarkUnmatched records that no eligible driver could be found.
func (t *Trip) MarkUnmatched() error {
	if !canTransition(t.Status, StatusUnmatched) {
		return transitionErr(t.Status, StatusUnmatched)
	}
	t.Status = StatusUnmatched
	return nil
}

// TriggerSOS raises the SOS flag on an in-progress trip. The flag is
// orthogonal to status and does not block completion or cancellation.
func (t *Trip) TriggerSOS() error {
	if t.Status != StatusStarted {
		return ErrSOSNotInProgress
	}
	t.SOSTriggered = true
	return nil
}
