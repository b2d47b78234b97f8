package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/scoring"
	"github.com/swiftride/dispatch/internal/service/dispatch"
	"github.com/swiftride/dispatch/internal/service/selector"
	"github.com/swiftride/dispatch/internal/service/stats"
	"github.com/swiftride/dispatch/internal/service/trips"
	apperrors "github.com/swiftride/dispatch/pkg/errors"
	"github.com/swiftride/dispatch/pkg/logger"
	"github.com/swiftride/dispatch/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Logger    *logger.Logger
	Trips     *trips.Service
	Dispatch  *dispatch.Coordinator
	Registry  *registry.Registry
	Selector  *selector.Selector
	Params    *scoring.ParameterStore
	Stats     *stats.Aggregator
	Hub       *websocket.Hub
	WSHandler websocket.InboundHandler
	Cfg       config.MatchingConfig
	StartedAt time.Time
}

// respondError maps a service error to its HTTP shape. Plain registry
// sentinels are checked before falling back to the AppError wrapper,
// which turns anything unknown into a 500.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	switch {
	case errors.Is(err, driver.ErrDriverNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Driver not found"})
	case errors.Is(err, driver.ErrAlreadyReserved):
		c.JSON(http.StatusConflict, gin.H{"error": "Driver has an active trip"})
	case errors.Is(err, driver.ErrNotReserved):
		c.JSON(http.StatusConflict, gin.H{"error": "Driver is not reserved"})
	default:
		h.Logger.Error("unhandled error", logger.Err(err))
		appErr = apperrors.GetAppError(err)
		c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
	}
}
