package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stubOutbox struct {
	domain.OutboxRepository
	stats domain.OutboxStats
	err   error
}

func (s stubOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	return s.stats, s.err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w, resp
}

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewPingChecker("store", pingFunc(func(context.Context) error { return nil })))

	w, resp := serve(t, handler.ServeHTTP)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, StatusHealthy, resp.Status)
	require.Equal(t, "v1.0.0", resp.Version)
	require.Len(t, resp.Checks, 1)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("store", NewFuncChecker("store", func(context.Context) error {
		return errors.New("connection refused")
	}))
	handler.RegisterChecker("outbox", NewOutboxChecker(stubOutbox{}, 10, time.Minute))

	w, resp := serve(t, handler.ServeHTTP)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, StatusUnhealthy, resp.Status)
	require.Equal(t, "connection refused", resp.Checks["store"].Message)
	require.Equal(t, StatusHealthy, resp.Checks["outbox"].Status)
}

func TestHealthHandler_DegradedIsStillOK(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("outbox", NewOutboxChecker(stubOutbox{stats: domain.OutboxStats{PendingCount: 50}}, 10, 0))

	w, resp := serve(t, handler.ServeHTTP)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, StatusDegraded, resp.Status)
	require.Contains(t, resp.Checks["outbox"].Message, "50 pending")
}

func TestOutboxChecker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	old := NewOutboxChecker(stubOutbox{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-10 * time.Minute)}}, 0, time.Minute)
	old.now = func() time.Time { return now }
	require.Equal(t, StatusDegraded, old.Check(context.Background()).Status)

	fresh := NewOutboxChecker(stubOutbox{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-time.Second)}}, 0, time.Minute)
	fresh.now = func() time.Time { return now }
	require.Equal(t, StatusHealthy, fresh.Check(context.Background()).Status)

	broken := NewOutboxChecker(stubOutbox{err: errors.New("db down")}, 0, 0)
	require.Equal(t, StatusUnhealthy, broken.Check(context.Background()).Status)
}

func TestEvaluate_AppliesTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	overall, checks := handler.Evaluate(context.Background())
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, StatusUnhealthy, overall)
	require.Equal(t, context.DeadlineExceeded.Error(), checks["slow"].Message)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("dev")
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	handler.RegisterChecker("store", NewFuncChecker("store", func(context.Context) error { return errors.New("down") }))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}
