package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check returns a simple JSON status. The database is reported as down
// without failing the probe.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"status": "ok", "database": "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			response["database"] = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, response)
}
