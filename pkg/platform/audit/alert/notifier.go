package alert

import (
	"context"
	"log/slog"
)

// Notifier delivers alerts to one external channel (chat, email, pager, stream).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback channel
// when no external notifier is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs alerts at warn level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Name implements Notifier.
func (n *LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.WarnContext(ctx, "audit alert",
		"alert_type", a.Type,
		"severity", a.Severity,
		"description", a.Description,
		"subject", a.Subject,
		"count", a.Count,
		"event_ids", a.EventIDs(),
	)
	return nil
}
