package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.enabled
}

// Custom metric helpers

// RecordTimeToMatch records how long a dispatch took to reach acceptance
func (nr *NewRelicApp) RecordTimeToMatch(d time.Duration) {
	nr.RecordCustomMetric("custom/dispatch/time_to_match_ms", float64(d.Milliseconds()))
}

// RecordCascadeDepth records how many candidates a dispatch walked through
func (nr *NewRelicApp) RecordCascadeDepth(depth int) {
	nr.RecordCustomMetric("custom/dispatch/cascade_depth", float64(depth))
}

// RecordDispatchOutcome records a completed dispatch flow
func (nr *NewRelicApp) RecordDispatchOutcome(tripID string, matched bool, cascadeDepth int) {
	nr.RecordCustomEvent("DispatchCompleted", map[string]interface{}{
		"trip_id":       tripID,
		"matched":       matched,
		"cascade_depth": cascadeDepth,
	})
}

// RecordLocationUpdate records a driver location update
func (nr *NewRelicApp) RecordLocationUpdate() {
	nr.RecordCustomMetric("custom/driver/location_update", 1)
}
