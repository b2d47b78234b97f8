package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/api/dto"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/service/trips"
	"github.com/swiftride/dispatch/pkg/logger"
)

// CreateTrip handles POST /v1/trips
func (h *Handlers) CreateTrip(c *gin.Context) {
	var req dto.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	t, err := h.Trips.Create(c.Request.Context(), trips.CreateParams{
		ClientID:       uuid.MustParse(req.ClientID),
		VehicleType:    driver.VehicleType(req.VehicleType),
		PickupLat:      req.PickupLatitude,
		PickupLng:      req.PickupLongitude,
		DropoffLat:     req.DropoffLatitude,
		DropoffLng:     req.DropoffLongitude,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Language:       req.Language,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// GetTrip handles GET /v1/trips/:id
func (h *Handlers) GetTrip(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip id"})
		return
	}

	t, err := h.Trips.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ListTrips handles GET /v1/trips?client_id=...
func (h *Handlers) ListTrips(c *gin.Context) {
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id query parameter is required"})
		return
	}

	out, err := h.Trips.ListByClient(c.Request.Context(), clientID, 50)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": out})
}

// RespondToOffer handles PUT /v1/trips/:id/accept, the REST fallback
// for drivers answering an offer without a live WebSocket session.
func (h *Handlers) RespondToOffer(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip id"})
		return
	}
	var req dto.OfferResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	routed := h.Dispatch.HandleOfferResponse(tripID, uuid.MustParse(req.DriverID), *req.Accepted)
	if !routed {
		// the offer already expired or was never made to this driver
		c.JSON(http.StatusGone, gin.H{"error": "No pending offer for this trip and driver"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// StartTrip handles POST /v1/trips/:id/start
func (h *Handlers) StartTrip(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.Trips.Start(c.Request.Context(), id)
	})
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *Handlers) CompleteTrip(c *gin.Context) {
	var req dto.CompleteTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.Trips.Complete(c.Request.Context(), id, req.DistanceKM, req.DurationMinutes)
	})
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *Handlers) CancelTrip(c *gin.Context) {
	var req dto.CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cancellation reason is required"})
		return
	}
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.Trips.Cancel(c.Request.Context(), id, req.Reason)
	})
}

// TriggerSOS handles POST /v1/trips/:id/sos
func (h *Handlers) TriggerSOS(c *gin.Context) {
	h.transition(c, func(id uuid.UUID) (interface{}, error) {
		return h.Trips.TriggerSOS(c.Request.Context(), id)
	})
}

func (h *Handlers) transition(c *gin.Context, fn func(uuid.UUID) (interface{}, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip id"})
		return
	}

	t, err := fn(id)
	if err != nil {
		h.Logger.Warn("Trip transition rejected",
			logger.String("trip_id", id.String()),
			logger.Err(err),
		)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
