package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/api/dto"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/scoring"
	"github.com/swiftride/dispatch/internal/service/selector"
	"github.com/swiftride/dispatch/pkg/logger"
)

// FindDriver handles POST /v1/matching/find-driver. It blocks until the
// dispatch flow resolves: a driver accepted, every candidate was
// exhausted, or the flow was aborted.
func (h *Handlers) FindDriver(c *gin.Context) {
	var req dto.FindDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	tripID := uuid.MustParse(req.TripID)

	h.Logger.Info("Dispatch requested",
		logger.String("trip_id", req.TripID),
	)

	result, err := h.Dispatch.FindDriver(c.Request.Context(), tripID, req.Language)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !result.Matched {
		c.JSON(http.StatusOK, gin.H{
			"matched": false,
			"trip_id": result.TripID,
			"message": "No drivers available",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetParameters handles GET /v1/matching/parameters
func (h *Handlers) GetParameters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"weights": h.Params.Get()})
}

// UpdateParameters handles PUT /v1/matching/parameters. The new vector
// applies to dispatches started after this call; flows already running
// keep the vector they started with.
func (h *Handlers) UpdateParameters(c *gin.Context) {
	var req dto.UpdateWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	if err := h.Params.Update(req.Weights); err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info("Scoring weights updated")
	c.JSON(http.StatusOK, gin.H{"weights": h.Params.Get()})
}

// Simulate handles POST /v1/matching/simulate. It ranks candidates for a
// hypothetical trip without reserving or offering, optionally with an
// ad-hoc weight vector, so operators can tune weights against live state.
func (h *Handlers) Simulate(c *gin.Context) {
	var req dto.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	weights := h.Params.Get()
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			h.respondError(c, err)
			return
		}
		weights = req.Weights.Normalized()
	}

	clientID := uuid.Nil
	if req.ClientID != "" {
		clientID = uuid.MustParse(req.ClientID)
	}

	rankReq := selector.Request{
		ClientID:      clientID,
		PickupLat:     req.PickupLatitude,
		PickupLng:     req.PickupLongitude,
		RadiusKM:      h.Cfg.SearchRadiusKM,
		VehicleType:   driver.VehicleType(req.VehicleType),
		RiderLanguage: req.Language,
	}

	var candidates []selector.Candidate
	if req.Weights == nil {
		candidates, _ = h.Selector.Rank(c.Request.Context(), rankReq)
	} else {
		candidates = h.rankWith(c, rankReq, weights)
	}

	out := make([]dto.CandidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, dto.CandidateResponse{
			DriverID:       cand.ID,
			Name:           cand.Name,
			Score:          cand.Score,
			DistanceKM:     cand.DistanceKM,
			Rating:         cand.Rating,
			AcceptanceRate: cand.AcceptanceRate,
			CompletionRate: cand.CompletionRate,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"candidates": out,
		"weights":    weights,
		"radius_km":  h.Cfg.SearchRadiusKM,
	})
}

func (h *Handlers) rankWith(c *gin.Context, req selector.Request, weights scoring.Weights) []selector.Candidate {
	// ad-hoc weights get a scratch parameter store, leaving the
	// production vector untouched
	store, err := scoring.NewParameterStore(weights)
	if err != nil {
		return nil
	}
	sim := selector.New(h.Registry, store, nil, h.Cfg.MaxCandidates)
	candidates, err := sim.Rank(c.Request.Context(), req)
	if err != nil {
		return nil
	}
	return candidates
}

// GetStatistics handles GET /v1/matching/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dispatch":          h.Stats.Snapshot(),
		"connected_drivers": h.Hub.ConnectedDrivers(),
	})
}

// GetPerformance handles GET /v1/matching/performance
func (h *Handlers) GetPerformance(c *gin.Context) {
	snapshot := h.Stats.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":     int(time.Since(h.StartedAt).Seconds()),
		"active_connections": h.Hub.GetActiveConnections(),
		"connected_drivers":  h.Hub.ConnectedDrivers(),
		"match_rate":         snapshot.MatchRate,
		"accept_rate":        snapshot.AcceptRate,
	})
}
