package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/stratum-replicator/internal/config"
	"github.com/stanstork/stratum-replicator/internal/models"
)

const subjectPrefix = "[Replication]"

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails every notification to a fixed list of operators.
type EmailNotifier struct {
	addr       string
	auth       smtp.Auth
	from       string
	recipients []string
	logger     zerolog.Logger
	send       sendFunc
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	n := &EmailNotifier{
		addr:       fmt.Sprintf("%s:%d", host, port),
		from:       from,
		recipients: sanitizeRecipients(cfg.Recipients),
		logger:     logger.With().Str("notifier", "email").Logger(),
		send:       smtp.SendMail,
	}
	if user := strings.TrimSpace(cfg.Username); user != "" {
		n.auth = smtp.PlainAuth("", user, cfg.Password, host)
	}
	return n, nil
}

func (n *EmailNotifier) Notify(_ context.Context, notif models.Notification) error {
	if len(n.recipients) == 0 {
		return nil
	}
	if err := n.send(n.addr, n.auth, n.from, n.recipients, n.compose(notif)); err != nil {
		return err
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Strs("recipients", n.recipients).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}

// compose renders the RFC 822 message of a notification. Errors and
// warnings carry their severity in the subject.
func (n *EmailNotifier) compose(notif models.Notification) []byte {
	title := strings.TrimSpace(notif.Title)
	if title == "" {
		title = "Notification"
	}
	subject := subjectPrefix + " " + title
	if notif.Severity == models.NotificationSeverityError || notif.Severity == models.NotificationSeverityWarning {
		subject = fmt.Sprintf("%s[%s] %s", subjectPrefix, strings.ToUpper(string(notif.Severity)), title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.recipients, ","))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")

	b.WriteString(strings.TrimSpace(notif.Message))
	b.WriteString("\n\n")
	if notif.PolicyName != nil {
		fmt.Fprintf(&b, "Policy: %s\n", *notif.PolicyName)
	}
	fmt.Fprintf(&b, "Event: %s\n", notif.EventType)
	if !notif.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", notif.CreatedAt.UTC().Format(time.RFC3339))
	}
	writeMetadata(&b, notif.Metadata)
	return []byte(b.String())
}

// writeMetadata prints metadata fields one per line in key order.
// Metadata that is not a JSON object is printed raw.
func writeMetadata(b *strings.Builder, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		fmt.Fprintf(b, "Metadata: %s\n", string(raw))
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s: %v\n", k, fields[k])
	}
}
