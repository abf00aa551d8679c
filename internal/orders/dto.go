package orders

import (
	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

// ItemInput is one requested order line.
type ItemInput struct {
	Kind           enums.OrderItemKind
	Name           string
	ProductRef     *uuid.UUID
	Quantity       int
	UnitPriceCents int64
}

// CreateOrderInput carries everything needed to open a new order.
type CreateOrderInput struct {
	ContactRef    *uuid.UUID
	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string

	Items []ItemInput

	PaymentMethod enums.PaymentMethod

	// Nil fee fields fall back to configured defaults; a supplied
	// processing fee wins over the rate-derived one.
	DeliveryFeeCents   *int64
	ProcessingFeeCents *int64
	TaxCents           int64
	DiscountCents      int64
	DepositCents       int64

	Notes         *string
	InternalNotes *string
}

// UpdateOrderInput mutates an existing order. ExpectedVersion carries the
// client's optimistic-concurrency token; a stale token is rejected, never
// silently retried.
type UpdateOrderInput struct {
	OrderID         uuid.UUID
	ExpectedVersion int

	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string

	Items *[]ItemInput

	Status        *enums.OrderStatus
	PaymentMethod *enums.PaymentMethod

	DeliveryFeeCents   *int64
	ProcessingFeeCents *int64
	TaxCents           *int64
	DiscountCents      *int64
	DepositCents       *int64

	Notes         *string
	InternalNotes *string
}
