package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	NewRelic NewRelicConfig
	Matching MatchingConfig
	Scoring  ScoringConfig
	Pricing  PricingConfig
	Fraud    FraudConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port string
	Env  string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MaxIdle  int
	Enabled  bool
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	Enabled     bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// MatchingConfig tunes candidate search and the offer protocol.
type MatchingConfig struct {
	SearchRadiusKM  float64
	WidenMultiplier float64
	MaxCandidates   int
	OfferDeadline   time.Duration
	OutcomeRetries  int
	OutcomeBackoff  time.Duration
}

// ScoringConfig carries the boot-time weight vector; admins replace it at
// runtime through the parameters endpoint.
type ScoringConfig struct {
	Distance       float64
	Rating         float64
	AcceptanceRate float64
	CompletionRate float64
	Experience     float64
	LanguageMatch  float64
	VehicleMatch   float64
	PriorTrips     float64
}

type PricingConfig struct {
	BaseFare      map[string]float64
	PerKMRate     map[string]float64
	PerMinuteRate map[string]float64
	MaxSurge      float64
	MinSurge      float64
}

type FraudConfig struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "swiftride"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdle:  getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			Enabled:  getEnvAsBool("DB_ENABLED", true),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 50),
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
			Enabled:     getEnvAsBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "dispatch-events"),
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "SwiftRide-Dispatch"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
		},
		Matching: MatchingConfig{
			SearchRadiusKM:  getEnvAsFloat64("MATCHING_SEARCH_RADIUS_KM", 5.0),
			WidenMultiplier: getEnvAsFloat64("MATCHING_WIDEN_MULTIPLIER", 2.0),
			MaxCandidates:   getEnvAsInt("MATCHING_MAX_CANDIDATES", 20),
			OfferDeadline:   parseDuration(getEnv("MATCHING_OFFER_DEADLINE", "15s"), 15*time.Second),
			OutcomeRetries:  getEnvAsInt("MATCHING_OUTCOME_RETRIES", 3),
			OutcomeBackoff:  parseDuration(getEnv("MATCHING_OUTCOME_BACKOFF", "200ms"), 200*time.Millisecond),
		},
		Scoring: ScoringConfig{
			Distance:       getEnvAsFloat64("SCORING_WEIGHT_DISTANCE", 30),
			Rating:         getEnvAsFloat64("SCORING_WEIGHT_RATING", 15),
			AcceptanceRate: getEnvAsFloat64("SCORING_WEIGHT_ACCEPTANCE", 15),
			CompletionRate: getEnvAsFloat64("SCORING_WEIGHT_COMPLETION", 15),
			Experience:     getEnvAsFloat64("SCORING_WEIGHT_EXPERIENCE", 10),
			LanguageMatch:  getEnvAsFloat64("SCORING_WEIGHT_LANGUAGE", 5),
			VehicleMatch:   getEnvAsFloat64("SCORING_WEIGHT_VEHICLE", 5),
			PriorTrips:     getEnvAsFloat64("SCORING_WEIGHT_PRIOR_TRIPS", 5),
		},
		Fraud: FraudConfig{
			Endpoint: getEnv("FRAUD_ENDPOINT", ""),
			Timeout:  parseDuration(getEnv("FRAUD_TIMEOUT", "2s"), 2*time.Second),
			Retries:  getEnvAsInt("FRAUD_RETRIES", 2),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	cfg.Pricing = PricingConfig{
		BaseFare: map[string]float64{
			"standard": getEnvAsFloat64("BASE_FARE_STANDARD", 50),
			"premium":  getEnvAsFloat64("BASE_FARE_PREMIUM", 100),
			"suv":      getEnvAsFloat64("BASE_FARE_SUV", 120),
			"moto":     getEnvAsFloat64("BASE_FARE_MOTO", 25),
		},
		PerKMRate: map[string]float64{
			"standard": getEnvAsFloat64("PER_KM_RATE_STANDARD", 10),
			"premium":  getEnvAsFloat64("PER_KM_RATE_PREMIUM", 15),
			"suv":      getEnvAsFloat64("PER_KM_RATE_SUV", 18),
			"moto":     getEnvAsFloat64("PER_KM_RATE_MOTO", 6),
		},
		PerMinuteRate: map[string]float64{
			"standard": getEnvAsFloat64("PER_MINUTE_RATE_STANDARD", 2),
			"premium":  getEnvAsFloat64("PER_MINUTE_RATE_PREMIUM", 3),
			"suv":      getEnvAsFloat64("PER_MINUTE_RATE_SUV", 4),
			"moto":     getEnvAsFloat64("PER_MINUTE_RATE_MOTO", 1),
		},
		MaxSurge: getEnvAsFloat64("MAX_SURGE_MULTIPLIER", 3.0),
		MinSurge: getEnvAsFloat64("MIN_SURGE_MULTIPLIER", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.Matching.SearchRadiusKM <= 0 {
		return fmt.Errorf("MATCHING_SEARCH_RADIUS_KM must be > 0")
	}
	if c.Matching.WidenMultiplier < 1 {
		return fmt.Errorf("MATCHING_WIDEN_MULTIPLIER must be >= 1")
	}
	if c.Matching.MaxCandidates <= 0 {
		return fmt.Errorf("MATCHING_MAX_CANDIDATES must be > 0")
	}
	if c.Matching.OfferDeadline <= 0 {
		return fmt.Errorf("MATCHING_OFFER_DEADLINE must be > 0")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}

func splitAndTrim(v string) []string {
	if v == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
