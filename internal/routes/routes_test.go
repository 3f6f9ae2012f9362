package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/handlers"
	"github.com/stretchr/testify/assert"
)

func testRouter(metrics http.Handler) http.Handler {
	logger := zerolog.Nop()
	return NewRouter(Handlers{
		Health:       handlers.NewHealthHandler(nil),
		Clusters:     handlers.NewClusterHandler(nil, logger),
		Policies:     handlers.NewPolicyHandler(nil, nil, nil, nil, nil, nil, logger),
		Notification: handlers.NewNotificationHandler(nil, logger),
		Report:       handlers.NewReportHandler(nil, logger),
		Metrics:      metrics,
	})
}

func TestHealthRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
}

func TestMetricsRouteOptional(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	served := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("replication_instances_total 1\n"))
	})
	rec = httptest.NewRecorder()
	testRouter(served).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "replication_instances_total")
}

func TestWrongMethodIsRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/policies/daily/abort", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
