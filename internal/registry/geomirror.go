package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/swiftride/dispatch/pkg/logger"
)

const geoKey = "drivers:locations"

// RedisGeoMirror publishes driver positions into a Redis geo set so other
// services (dashboards, heatmaps) can query them without touching the
// registry. Writes are fire-and-forget; a Redis outage never fails a
// location update.
type RedisGeoMirror struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisGeoMirror(client *redis.Client, log *logger.Logger) *RedisGeoMirror {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisGeoMirror{client: client, logger: log}
}

func (m *RedisGeoMirror) Upsert(driverID uuid.UUID, lat, lng float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.client.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      driverID.String(),
		Latitude:  lat,
		Longitude: lng,
	}).Err()
	if err != nil {
		m.logger.Warn("geo mirror write failed",
			logger.String("driver_id", driverID.String()),
			logger.Err(err))
	}
}
