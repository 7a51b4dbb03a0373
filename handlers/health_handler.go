package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/services/telemetry"
	"github.com/arnobt78/multimodel-chat/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessCheck reports the state of one dependency. A non-nil error marks
// the gateway as not ready; the returned string is shown either way.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) (string, error)
}

// HealthChecker is satisfied by the Postgres pool
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmitterStats is satisfied by the telemetry emitter
type EmitterStats interface {
	Stats() telemetry.Stats
}

var (
	errNoBackends       = errors.New("no usable backends")
	errTelemetryStopped = errors.New("telemetry emitter is not running")
)

// DatabaseCheck pings db. A nil db is reported as not configured.
func DatabaseCheck(db HealthChecker) ReadinessCheck {
	return ReadinessCheck{Name: "database", Check: func(ctx context.Context) (string, error) {
		if db == nil {
			return "not_configured", nil
		}
		if err := db.HealthCheck(ctx); err != nil {
			return "unhealthy", err
		}
		return "healthy", nil
	}}
}

// BackendsCheck fails when no backend is both enabled and credentialed
func BackendsCheck(usable int) ReadinessCheck {
	return ReadinessCheck{Name: "backends", Check: func(context.Context) (string, error) {
		if usable == 0 {
			return "none_configured", errNoBackends
		}
		return "healthy", nil
	}}
}

// TelemetryCheck reports the emitter state. A full buffer means events are
// being dropped but chat keeps working, so it does not fail readiness.
func TelemetryCheck(emitter EmitterStats) ReadinessCheck {
	return ReadinessCheck{Name: "telemetry", Check: func(context.Context) (string, error) {
		if emitter == nil {
			return "disabled", nil
		}
		stats := emitter.Stats()
		switch {
		case !stats.Started:
			return "stopped", errTelemetryStopped
		case stats.PendingEvents >= stats.BufferSize:
			return "saturated", nil
		default:
			return "healthy", nil
		}
	}}
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks []ReadinessCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(logger *zap.Logger, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz. It never touches dependencies.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Checks: make(map[string]string, len(h.checks)),
	}
	httpStatus := http.StatusOK

	for _, c := range h.checks {
		state, err := c.Check(ctx)
		response.Checks[c.Name] = state
		if err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
			response.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	response.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
