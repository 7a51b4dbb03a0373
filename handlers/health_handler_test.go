package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/repositories/postgres"
	"github.com/arnobt78/multimodel-chat/services/telemetry"
)

type stubStats telemetry.Stats

func (s stubStats) Stats() telemetry.Stats { return telemetry.Stats(s) }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func readiness(handler *HealthHandler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop(), BackendsCheck(0))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeHealth(t, w)
	assert.Equal(t, "healthy", response.Status)
	assert.NotEmpty(t, response.Timestamp)
	assert.Empty(t, response.Checks)
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(logger,
			DatabaseCheck(postgres.Wrap(db, logger)),
			BackendsCheck(2),
			TelemetryCheck(stubStats{BufferSize: 10, Started: true}),
		)

		w := readiness(handler)

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, map[string]string{
			"database":  "healthy",
			"backends":  "healthy",
			"telemetry": "healthy",
		}, response.Checks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy when database ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		handler := NewHealthHandler(logger, DatabaseCheck(postgres.Wrap(db, logger)), BackendsCheck(2))

		w := readiness(handler)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "unhealthy", response.Checks["database"])
		assert.Equal(t, "healthy", response.Checks["backends"])
	})

	t.Run("optional dependencies", func(t *testing.T) {
		handler := NewHealthHandler(logger, DatabaseCheck(nil), BackendsCheck(1), TelemetryCheck(nil))

		w := readiness(handler)

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeHealth(t, w)
		assert.Equal(t, "not_configured", response.Checks["database"])
		assert.Equal(t, "disabled", response.Checks["telemetry"])
	})

	t.Run("unhealthy without usable backends", func(t *testing.T) {
		w := readiness(NewHealthHandler(logger, DatabaseCheck(nil), BackendsCheck(0)))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "none_configured", decodeHealth(t, w).Checks["backends"])
	})

	t.Run("telemetry states", func(t *testing.T) {
		w := readiness(NewHealthHandler(logger, BackendsCheck(1),
			TelemetryCheck(stubStats{BufferSize: 4, PendingEvents: 4, Started: true})))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "saturated", decodeHealth(t, w).Checks["telemetry"])

		w = readiness(NewHealthHandler(logger, BackendsCheck(1), TelemetryCheck(stubStats{BufferSize: 4})))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "stopped", decodeHealth(t, w).Checks["telemetry"])
	})

	t.Run("check receives a deadline", func(t *testing.T) {
		var hasDeadline bool
		handler := NewHealthHandler(logger, ReadinessCheck{Name: "probe", Check: func(ctx context.Context) (string, error) {
			_, hasDeadline = ctx.Deadline()
			return "ok", nil
		}})

		w := readiness(handler)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, hasDeadline)
		assert.Equal(t, "ok", decodeHealth(t, w).Checks["probe"])
	})
}
