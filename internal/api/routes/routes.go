package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiftride/dispatch/internal/api/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Matching endpoints
		matching := v1.Group("/matching")
		{
			matching.POST("/find-driver", h.FindDriver)
			matching.GET("/parameters", h.GetParameters)
			matching.PUT("/parameters", h.UpdateParameters)
			matching.POST("/simulate", h.Simulate)
			matching.GET("/statistics", h.GetStatistics)
			matching.GET("/performance", h.GetPerformance)
		}

		// Trip endpoints
		trips := v1.Group("/trips")
		{
			trips.POST("", h.CreateTrip)
			trips.GET("", h.ListTrips)
			trips.GET("/:id", h.GetTrip)
			trips.PUT("/:id/accept", h.RespondToOffer)
			trips.PUT("/:id/start", h.StartTrip)
			trips.PUT("/:id/complete", h.CompleteTrip)
			trips.PUT("/:id/cancel", h.CancelTrip)
			trips.POST("/:id/sos", h.TriggerSOS)
		}

		// Driver endpoints
		drivers := v1.Group("/drivers")
		{
			drivers.POST("", h.RegisterDriver)
			drivers.GET("/:id", h.GetDriver)
			drivers.POST("/:id/location", h.UpdateDriverLocation)
			drivers.POST("/:id/availability", h.UpdateDriverAvailability)
		}
	}
}
