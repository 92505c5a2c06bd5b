package notification

import (
	"context"
	"log/slog"
)

const (
	// KindEnrollment indicates a completed bulk enrollment run.
	KindEnrollment = "enrollment"
	// KindLockUpdated indicates a lock was created or replaced.
	KindLockUpdated = "lock_updated"
)

// Message describes a ledger event for downstream systems.
type Message struct {
	Kind    string
	Account string
	Body    string
}

// Notifier delivers ledger events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "account", message.Account, "body", message.Body)
	return nil
}
