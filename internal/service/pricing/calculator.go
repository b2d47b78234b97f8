package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/internal/domain/driver"
	"github.com/swiftride/dispatch/pkg/logger"
)

const surgeKeyPrefix = "surge:"

// Calculator estimates and finalizes fares. Surge multipliers are read
// from Redis per vehicle type; when Redis is disabled or a key is missing
// the multiplier falls back to the configured minimum.
type Calculator struct {
	cfg    config.PricingConfig
	redis  *redis.Client
	logger *logger.Logger
}

func NewCalculator(cfg config.PricingConfig, redisClient *redis.Client, log *logger.Logger) *Calculator {
	if log == nil {
		log = logger.Nop()
	}
	return &Calculator{cfg: cfg, redis: redisClient, logger: log}
}

// Estimate is the fare quote attached to an offer.
type Estimate struct {
	BaseFare        float64 `json:"base_fare"`
	DistanceFare    float64 `json:"distance_fare"`
	TimeFare        float64 `json:"time_fare"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Total           float64 `json:"total"`
	Currency        string  `json:"currency"`
}

// EstimateFare quotes a trip of the given distance and expected duration.
func (c *Calculator) EstimateFare(ctx context.Context, vehicleType driver.VehicleType, distanceKM float64, durationMin int) Estimate {
	vt := string(vehicleType)
	base := c.cfg.BaseFare[vt]
	distFare := c.cfg.PerKMRate[vt] * distanceKM
	timeFare := c.cfg.PerMinuteRate[vt] * float64(durationMin)
	surge := c.surge(ctx, vt)

	total := (base + distFare + timeFare) * surge
	return Estimate{
		BaseFare:        round2(base),
		DistanceFare:    round2(distFare),
		TimeFare:        round2(timeFare),
		SurgeMultiplier: surge,
		Total:           round2(total),
		Currency:        "INR",
	}
}

// FinalFare prices a completed trip from its actual distance and duration.
func (c *Calculator) FinalFare(ctx context.Context, vehicleType driver.VehicleType, distanceKM float64, durationMin int) float64 {
	return c.EstimateFare(ctx, vehicleType, distanceKM, durationMin).Total
}

// SetSurge installs a surge multiplier for a vehicle type, clamped to the
// configured bounds. Multipliers expire so a forgotten surge decays on
// its own.
func (c *Calculator) SetSurge(ctx context.Context, vehicleType driver.VehicleType, multiplier float64, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("surge pricing requires redis")
	}
	m := math.Max(c.cfg.MinSurge, math.Min(multiplier, c.cfg.MaxSurge))
	return c.redis.Set(ctx, surgeKeyPrefix+string(vehicleType), m, ttl).Err()
}

func (c *Calculator) surge(ctx context.Context, vehicleType string) float64 {
	if c.redis == nil {
		return c.cfg.MinSurge
	}
	m, err := c.redis.Get(ctx, surgeKeyPrefix+vehicleType).Float64()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("surge lookup failed", logger.String("vehicle_type", vehicleType), logger.Err(err))
		}
		return c.cfg.MinSurge
	}
	return math.Max(c.cfg.MinSurge, math.Min(m, c.cfg.MaxSurge))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
