package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/models"
)

// Notifier delivers a persisted notification over one channel.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// sanitizeRecipients trims addresses and drops blanks and duplicates,
// keeping the first spelling of each address.
func sanitizeRecipients(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	var cleaned []string
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r == "" || seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, r)
	}
	return cleaned
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	evt := logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("channel", channel)
	if notif.PolicyName != nil {
		evt = evt.Str("policy", *notif.PolicyName)
	}
	evt.Msg("failed to deliver notification")
}
