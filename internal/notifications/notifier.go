// Package notifications fans order lifecycle events out to people.
package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

// Notification is one message destined for staff or the customer.
type Notification struct {
	Kind        string
	OrderID     uuid.UUID
	OrderNumber string
	Message     string
	// Internal notifications stay with staff and never reach the customer.
	Internal bool
}

// Notifier delivers notifications. Implementations decide the channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// an email or SMS channel in environments without one configured.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"kind":         notification.Kind,
		"order_id":     notification.OrderID.String(),
		"order_number": notification.OrderNumber,
		"internal":     notification.Internal,
	})
	n.logg.Info(logCtx, notification.Message)
	return nil
}
