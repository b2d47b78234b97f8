package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/registry"
	"github.com/swiftride/dispatch/internal/service/dispatch"
	"github.com/swiftride/dispatch/pkg/logger"
	"github.com/swiftride/dispatch/pkg/monitoring"
	"github.com/swiftride/dispatch/pkg/websocket"
)

// HubTransport delivers dispatch offers over the driver's WebSocket
// session.
type HubTransport struct {
	hub *websocket.Hub
}

func NewHubTransport(hub *websocket.Hub) *HubTransport {
	return &HubTransport{hub: hub}
}

func (t *HubTransport) SendOffer(_ context.Context, driverID uuid.UUID, offer dispatch.Offer) error {
	if !t.hub.SendToDriver(driverID, websocket.Message{Type: "trip_offer", Data: offer}) {
		return fmt.Errorf("driver %s has no live session", driverID)
	}
	return nil
}

// Inbound routes messages arriving on driver sessions: offer answers to
// the coordinator, location reports to the registry.
type Inbound struct {
	coordinator *dispatch.Coordinator
	registry    *registry.Registry
	monitor     *monitoring.NewRelicApp
	logger      *logger.Logger
}

func NewInbound(coord *dispatch.Coordinator, reg *registry.Registry, monitor *monitoring.NewRelicApp, log *logger.Logger) *Inbound {
	if log == nil {
		log = logger.Nop()
	}
	return &Inbound{coordinator: coord, registry: reg, monitor: monitor, logger: log}
}

func (i *Inbound) OfferResponse(tripID, driverID uuid.UUID, accepted bool) {
	if !i.coordinator.HandleOfferResponse(tripID, driverID, accepted) {
		i.logger.Info("offer response arrived after the offer expired",
			logger.String("trip_id", tripID.String()),
			logger.String("driver_id", driverID.String()))
	}
}

func (i *Inbound) LocationUpdate(driverID uuid.UUID, lat, lng float64) {
	if err := i.registry.UpdateLocation(driverID, lat, lng); err != nil {
		i.logger.Warn("location update for unknown driver",
			logger.String("driver_id", driverID.String()))
		return
	}
	if i.monitor != nil {
		i.monitor.RecordLocationUpdate()
	}
}
