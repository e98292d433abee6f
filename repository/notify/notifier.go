package notifyrepo

import (
	"context"
	"log/slog"
)

// Notifier delivers one-way text messages. Best-effort: callers log failures
// and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes notifications to the structured log. Used in dev and as
// the fallback when no Telegram credentials are configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.Log.Info("notification", "message", message)
	return nil
}
