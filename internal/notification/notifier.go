package notification

import (
	"context"
	"log/slog"
)

const (
	// KindOTPCode carries a one-time verification code.
	KindOTPCode = "otp_code"
	// KindOrderStatus announces an order status change.
	KindOrderStatus = "order_status"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. One-time codes are only
// written when revealCodes is set, which is the case in development.
type LoggerNotifier struct {
	logger      *slog.Logger
	revealCodes bool
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger, revealCodes bool) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, revealCodes: revealCodes}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	body := message.Body
	if message.Kind == KindOTPCode && !n.revealCodes {
		body = "[redacted]"
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "destination", message.Destination, "body", body)
	return nil
}
