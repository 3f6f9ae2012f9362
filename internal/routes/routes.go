package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/stratum-replicator/internal/handlers"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Health       *handlers.HealthHandler
	Clusters     *handlers.ClusterHandler
	Policies     *handlers.PolicyHandler
	Notification *handlers.NotificationHandler
	Report       *handlers.ReportHandler

	// Metrics is mounted at MetricsPath, or /metrics, when set.
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter sets up the API routes
func NewRouter(hs Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", hs.Health.Check).Methods(http.MethodGet)
	if hs.Metrics != nil {
		path := hs.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, hs.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/clusters", hs.Clusters.Create).Methods(http.MethodPost)
	api.HandleFunc("/clusters", hs.Clusters.List).Methods(http.MethodGet)
	api.HandleFunc("/clusters/{name}", hs.Clusters.Get).Methods(http.MethodGet)

	api.HandleFunc("/policies", hs.Policies.Submit).Methods(http.MethodPost)
	api.HandleFunc("/policies", hs.Policies.List).Methods(http.MethodGet)
	api.HandleFunc("/policies/{name}", hs.Policies.Get).Methods(http.MethodGet)
	api.HandleFunc("/policies/{name}", hs.Policies.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/policies/{name}/suspend", hs.Policies.Suspend).Methods(http.MethodPost)
	api.HandleFunc("/policies/{name}/resume", hs.Policies.Resume).Methods(http.MethodPost)
	api.HandleFunc("/policies/{name}/instances", hs.Policies.Instances).Methods(http.MethodGet)
	api.HandleFunc("/policies/{name}/status", hs.Policies.Status).Methods(http.MethodGet)
	api.HandleFunc("/policies/{name}/abort", hs.Policies.Abort).Methods(http.MethodPost)

	api.HandleFunc("/notifications", hs.Notification.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", hs.Notification.MarkRead).Methods(http.MethodPost)

	api.HandleFunc("/stats", hs.Report.Stats).Methods(http.MethodGet)

	return router
}
