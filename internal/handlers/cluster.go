package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/repository"
)

type ClusterHandler struct {
	repo   repository.ClusterRepository
	logger zerolog.Logger
}

func NewClusterHandler(repo repository.ClusterRepository, logger zerolog.Logger) *ClusterHandler {
	return &ClusterHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "cluster").Logger(),
	}
}

func (h *ClusterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload models.Cluster
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" || strings.TrimSpace(payload.FsEndpoint) == "" {
		http.Error(w, "Cluster name and fsEndpoint are required", http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(r.Context(), payload)
	if err != nil {
		writeError(w, h.logger, err, "Failed to create cluster")
		return
	}
	h.logger.Info().Str("cluster", created.Name).Msg("cluster registered")
	writeJSON(w, http.StatusCreated, created)
}

func (h *ClusterHandler) List(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.repo.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "Failed to list clusters")
		return
	}
	if clusters == nil {
		clusters = []models.Cluster{}
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (h *ClusterHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	c, err := h.repo.GetCluster(r.Context(), name)
	if err != nil {
		writeError(w, h.logger, err, "Failed to get cluster")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
