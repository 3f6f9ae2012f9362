package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/repository"
)

type ReportHandler struct {
	instances repository.InstanceRepository
	logger    zerolog.Logger
}

func NewReportHandler(instances repository.InstanceRepository, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		instances: instances,
		logger:    logger.With().Str("handler", "report").Logger(),
	}
}

// Stats aggregates instance outcomes over the last `days` days (default 31).
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 31)
	stats, err := h.instances.Stats(r.Context(), days)
	if err != nil {
		writeError(w, h.logger, err, "Failed to get instance stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
