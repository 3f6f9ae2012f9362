package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/conflict"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var conflictErr *conflict.ConflictError
	switch {
	case jobbuilder.IsConfigError(err):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr), errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with its mapped status. Server errors are logged
// and their detail is withheld from the client.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, msg string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(strings.ToLower(msg))
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func intQuery(r *http.Request, key string, def int) int {
	if raw := strings.TrimSpace(r.URL.Query().Get(key)); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}
