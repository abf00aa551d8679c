package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

// OrderCreatedEvent signals a new rental order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalCents  int64             `json:"total_cents"`
}

// OrderUpdatedEvent is emitted after any persisted order mutation.
type OrderUpdatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Version     int               `json:"version"`
	TotalCents  int64             `json:"total_cents"`
}

// OrderDeletedEvent records removal of an order that never took payment.
type OrderDeletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	DeletedAt   time.Time `json:"deleted_at"`
}

// AgreementSentEvent signals a rental agreement went out for signature.
type AgreementSentEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	SubmissionID  string    `json:"submission_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

// AgreementSignedEvent is emitted when the agreement reaches signed.
type AgreementSignedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	SubmissionID string    `json:"submission_id"`
	SignedAt     time.Time `json:"signed_at"`
}

// AgreementDeclinedEvent is emitted when the customer declines to sign.
type AgreementDeclinedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	SubmissionID string    `json:"submission_id"`
	DeclinedAt   time.Time `json:"declined_at"`
}

// PaymentRecordedEvent surfaces a gateway transaction applied to an order.
type PaymentRecordedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	TransactionID   string              `json:"transaction_id"`
	AmountCents     int64               `json:"amount_cents"`
	BalanceDueCents int64               `json:"balance_due_cents"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
}

// DeliveryOverrideEvent records a manual release of the delivery gate.
type DeliveryOverrideEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
	ByUserID    uuid.UUID `json:"by_user_id"`
	OverrideAt  time.Time `json:"override_at"`
}
