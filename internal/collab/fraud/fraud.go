package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/internal/config"
	"github.com/swiftride/dispatch/pkg/logger"
)

// Checker screens a trip request before dispatch starts. A rejection
// aborts matching; a non-nil error means the screen could not be
// reached even after retries and dispatch must not proceed.
type Checker interface {
	Check(ctx context.Context, clientID uuid.UUID, pickupLat, pickupLng float64) (bool, error)
}

// AllowAll approves every request. Used when no fraud endpoint is
// configured and in tests.
type AllowAll struct{}

func (AllowAll) Check(context.Context, uuid.UUID, float64, float64) (bool, error) {
	return true, nil
}

// HTTPChecker calls an external screening service, retrying transient
// failures before giving up.
type HTTPChecker struct {
	endpoint string
	retries  int
	client   *http.Client
	logger   *logger.Logger
}

func NewHTTPChecker(cfg config.FraudConfig, log *logger.Logger) *HTTPChecker {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPChecker{
		endpoint: cfg.Endpoint,
		retries:  cfg.Retries,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   log,
	}
}

type checkRequest struct {
	ClientID  string  `json:"client_id"`
	PickupLat float64 `json:"pickup_latitude"`
	PickupLng float64 `json:"pickup_longitude"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (c *HTTPChecker) Check(ctx context.Context, clientID uuid.UUID, pickupLat, pickupLng float64) (bool, error) {
	body, err := json.Marshal(checkRequest{
		ClientID:  clientID.String(),
		PickupLat: pickupLat,
		PickupLng: pickupLng,
	})
	if err != nil {
		return false, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		allowed, reason, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if !allowed {
			c.logger.Warn("trip request rejected by fraud screen",
				logger.String("client_id", clientID.String()),
				logger.String("reason", reason))
		}
		return allowed, nil
	}

	c.logger.Error("fraud screen unreachable after retries", logger.Err(lastErr))
	return false, lastErr
}

func (c *HTTPChecker) post(ctx context.Context, body []byte) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, "", fmt.Errorf("fraud screen returned %d", resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, "", err
	}
	return out.Allowed, out.Reason, nil
}
