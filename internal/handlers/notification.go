package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

// List returns recent notifications, optionally narrowed to one policy.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 25)
	policy := strings.TrimSpace(r.URL.Query().Get("policy"))

	notifications, err := h.service.ListRecent(r.Context(), policy, limit)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return
	}

	notif, err := h.service.MarkRead(r.Context(), notifID)
	if err != nil {
		writeError(w, h.logger.With().Str("notification_id", notifID).Logger(), err, "Failed to update notification")
		return
	}

	writeJSON(w, http.StatusOK, notif)
}
