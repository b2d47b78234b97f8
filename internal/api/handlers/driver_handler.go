package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/api/dto"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/pkg/logger"
)

// RegisterDriver handles POST /v1/drivers
func (h *Handlers) RegisterDriver(c *gin.Context) {
	var req dto.RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	id := uuid.New()
	if req.ID != "" {
		id = uuid.MustParse(req.ID)
	}

	d := driver.Driver{
		ID:   id,
		Name: req.Name,
		Location: driver.Location{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			UpdatedAt: time.Now(),
		},
		Available:   req.Available,
		VehicleType: driver.VehicleType(req.VehicleType),
		Rating:      req.Rating,
		Languages:   req.Languages,
		Verified:    req.Verified,
	}
	h.Registry.Upsert(d)

	h.Logger.Info("Driver registered",
		logger.String("driver_id", id.String()),
		logger.String("vehicle_type", req.VehicleType),
	)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetDriver handles GET /v1/drivers/:id
func (h *Handlers) GetDriver(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
		return
	}

	d, err := h.Registry.Get(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// UpdateDriverLocation handles POST /v1/drivers/:id/location
func (h *Handlers) UpdateDriverLocation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
		return
	}
	var req dto.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	if err := h.Registry.UpdateLocation(id, req.Latitude, req.Longitude); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// UpdateDriverAvailability handles POST /v1/drivers/:id/availability
func (h *Handlers) UpdateDriverAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
		return
	}
	var req dto.UpdateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	if err := h.Registry.SetAvailability(id, *req.Available); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "available": *req.Available})
}
