package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/registry"
)

const orderNotificationConsumer = "order-notifications"

type idempotencyManager interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error)
	Delete(ctx context.Context, consumer string, eventID string) error
}

// Consumer watches domain events and turns the customer-facing ones into
// notifications.
type Consumer struct {
	notifier     Notifier
	subscription *pubsub.Subscriber
	idempotency  idempotencyManager
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds the order notification consumer.
func NewConsumer(notifier Notifier, subscription *pubsub.Subscriber, manager idempotencyManager, logg *logger.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifier:     notifier,
		subscription: subscription,
		idempotency:  manager,
		decoders:     newDecoders(),
		logg:         logg,
	}, nil
}

func newDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventAgreementSigned, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.AgreementSignedEvent
		return &event, json.Unmarshal(payload, &event)
	})
	decoders.Register(enums.EventAgreementDeclined, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.AgreementDeclinedEvent
		return &event, json.Unmarshal(payload, &event)
	})
	decoders.Register(enums.EventPaymentRecorded, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.PaymentRecordedEvent
		return &event, json.Unmarshal(payload, &event)
	})
	decoders.Register(enums.EventDeliveryOverride, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.DeliveryOverrideEvent
		return &event, json.Unmarshal(payload, &event)
	})
	return decoders
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType.String(),
	})

	if !wantsEvent(eventType) {
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	if err := c.Process(ctx, eventType, envelope); err != nil {
		c.logg.Error(logCtx, "notification processing failed", err)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

// Process applies one decoded envelope. A returned error means the message
// should be redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if !wantsEvent(eventType) {
		return nil
	}

	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		// Nothing to dedupe on; dropping beats redelivering forever.
		return nil
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		return fmt.Errorf("checking idempotency: %w", err)
	}
	if already {
		return nil
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return fmt.Errorf("decoding payload: %w", err)
	}

	notification, ok := buildNotification(eventType, decoded)
	if !ok {
		return nil
	}

	if err := c.notifier.Notify(ctx, notification); err != nil {
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return fmt.Errorf("delivering notification: %w", err)
	}
	return nil
}

func wantsEvent(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventAgreementSigned, enums.EventAgreementDeclined,
		enums.EventPaymentRecorded, enums.EventDeliveryOverride:
		return true
	default:
		return false
	}
}

func buildNotification(eventType enums.OutboxEventType, decoded interface{}) (Notification, bool) {
	switch event := decoded.(type) {
	case *payloads.AgreementSignedEvent:
		return Notification{
			Kind:        string(eventType),
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Message:     fmt.Sprintf("agreement signed for order %s", event.OrderNumber),
		}, true
	case *payloads.AgreementDeclinedEvent:
		// Declines are staff-only; the customer already knows.
		return Notification{
			Kind:        string(eventType),
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Message:     fmt.Sprintf("agreement declined for order %s", event.OrderNumber),
			Internal:    true,
		}, true
	case *payloads.PaymentRecordedEvent:
		return Notification{
			Kind:        string(eventType),
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Message:     fmt.Sprintf("payment of %d cents recorded for order %s", event.AmountCents, event.OrderNumber),
		}, true
	case *payloads.DeliveryOverrideEvent:
		return Notification{
			Kind:        string(eventType),
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Message:     fmt.Sprintf("delivery gate overridden for order %s: %s", event.OrderNumber, event.Reason),
			Internal:    true,
		}, true
	default:
		return Notification{}, false
	}
}
