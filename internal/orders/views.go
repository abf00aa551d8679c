package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

// OrderItemView is the serialized form of one order line.
type OrderItemView struct {
	ID             uuid.UUID           `json:"id"`
	Kind           enums.OrderItemKind `json:"kind"`
	Name           string              `json:"name"`
	ProductRef     *uuid.UUID          `json:"product_ref,omitempty"`
	Quantity       int                 `json:"quantity"`
	UnitPriceCents int64               `json:"unit_price_cents"`
	LineTotalCents int64               `json:"line_total_cents"`
	Position       int                 `json:"position"`
}

// TransactionView is the serialized form of one recorded gateway result.
type TransactionView struct {
	ID            uuid.UUID               `json:"id"`
	TransactionID string                  `json:"transaction_id"`
	AmountCents   int64                   `json:"amount_cents"`
	Currency      string                  `json:"currency"`
	Status        enums.TransactionStatus `json:"status"`
	RecordedAt    time.Time               `json:"recorded_at"`
}

// OrderView is the full serialized order. The version token is not part of
// the body; controllers surface it as an ETag and accept it back via
// If-Match.
type OrderView struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`

	ContactRef    *uuid.UUID `json:"contact_ref,omitempty"`
	CustomerName  *string    `json:"customer_name,omitempty"`
	CustomerEmail *string    `json:"customer_email,omitempty"`
	CustomerPhone *string    `json:"customer_phone,omitempty"`

	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`

	SubtotalCents      int64 `json:"subtotal_cents"`
	TaxCents           int64 `json:"tax_cents"`
	DiscountCents      int64 `json:"discount_cents"`
	DeliveryFeeCents   int64 `json:"delivery_fee_cents"`
	ProcessingFeeCents int64 `json:"processing_fee_cents"`
	TotalCents         int64 `json:"total_cents"`
	DepositCents       int64 `json:"deposit_cents"`
	BalanceDueCents    int64 `json:"balance_due_cents"`

	AgreementStatus       enums.AgreementStatus `json:"agreement_status"`
	AgreementSubmissionID *string               `json:"agreement_submission_id,omitempty"`
	AgreementSentAt       *time.Time            `json:"agreement_sent_at,omitempty"`
	AgreementViewedAt     *time.Time            `json:"agreement_viewed_at,omitempty"`
	AgreementSignedAt     *time.Time            `json:"agreement_signed_at,omitempty"`

	DeliveryBlocked bool       `json:"delivery_blocked"`
	OverrideReason  *string    `json:"override_reason,omitempty"`
	OverrideAt      *time.Time `json:"override_at,omitempty"`

	Notes         *string `json:"notes,omitempty"`
	InternalNotes *string `json:"internal_notes,omitempty"`

	Items        []OrderItemView   `json:"items"`
	Transactions []TransactionView `json:"transactions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgreementStatusView is the trimmed serialization behind the agreement
// status endpoint.
type AgreementStatusView struct {
	OrderID               uuid.UUID             `json:"order_id"`
	AgreementStatus       enums.AgreementStatus `json:"agreement_status"`
	AgreementSubmissionID *string               `json:"agreement_submission_id,omitempty"`
	AgreementSentAt       *time.Time            `json:"agreement_sent_at,omitempty"`
	AgreementViewedAt     *time.Time            `json:"agreement_viewed_at,omitempty"`
	AgreementSignedAt     *time.Time            `json:"agreement_signed_at,omitempty"`
	DeliveryBlocked       bool                  `json:"delivery_blocked"`
}

// NewAgreementStatusView maps the agreement axis of an order onto its wire
// representation.
func NewAgreementStatusView(order *models.Order) AgreementStatusView {
	if order == nil {
		return AgreementStatusView{}
	}
	return AgreementStatusView{
		OrderID:               order.ID,
		AgreementStatus:       order.AgreementStatus,
		AgreementSubmissionID: order.AgreementSubmissionID,
		AgreementSentAt:       order.AgreementSentAt,
		AgreementViewedAt:     order.AgreementViewedAt,
		AgreementSignedAt:     order.AgreementSignedAt,
		DeliveryBlocked:       order.DeliveryBlocked,
	}
}

// OrderListView is one serialized page of orders.
type OrderListView struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// NewOrderView maps a persisted order onto its wire representation.
func NewOrderView(order *models.Order) OrderView {
	if order == nil {
		return OrderView{}
	}

	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			ID:             item.ID,
			Kind:           item.Kind,
			Name:           item.Name,
			ProductRef:     item.ProductRef,
			Quantity:       item.Quantity,
			UnitPriceCents: int64(item.UnitPriceCents),
			LineTotalCents: int64(item.LineTotalCents),
			Position:       item.Position,
		})
	}

	txns := make([]TransactionView, 0, len(order.PaymentTransactions))
	for _, txn := range order.PaymentTransactions {
		txns = append(txns, TransactionView{
			ID:            txn.ID,
			TransactionID: txn.TransactionID,
			AmountCents:   int64(txn.AmountCents),
			Currency:      txn.Currency,
			Status:        txn.Status,
			RecordedAt:    txn.RecordedAt,
		})
	}

	return OrderView{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		ContactRef:            order.ContactRef,
		CustomerName:          order.CustomerName,
		CustomerEmail:         order.CustomerEmail,
		CustomerPhone:         order.CustomerPhone,
		Status:                order.Status,
		PaymentStatus:         order.PaymentStatus,
		PaymentMethod:         order.PaymentMethod,
		SubtotalCents:         int64(order.SubtotalCents),
		TaxCents:              int64(order.TaxCents),
		DiscountCents:         int64(order.DiscountCents),
		DeliveryFeeCents:      int64(order.DeliveryFeeCents),
		ProcessingFeeCents:    int64(order.ProcessingFeeCents),
		TotalCents:            int64(order.TotalCents),
		DepositCents:          int64(order.DepositCents),
		BalanceDueCents:       int64(order.BalanceDueCents),
		AgreementStatus:       order.AgreementStatus,
		AgreementSubmissionID: order.AgreementSubmissionID,
		AgreementSentAt:       order.AgreementSentAt,
		AgreementViewedAt:     order.AgreementViewedAt,
		AgreementSignedAt:     order.AgreementSignedAt,
		DeliveryBlocked:       order.DeliveryBlocked,
		OverrideReason:        order.OverrideReason,
		OverrideAt:            order.OverrideAt,
		Notes:                 order.Notes,
		InternalNotes:         order.InternalNotes,
		Items:                 items,
		Transactions:          txns,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
}

// NewOrderListView maps a repository page onto its wire representation.
func NewOrderListView(list *OrderList) OrderListView {
	if list == nil {
		return OrderListView{}
	}
	views := make([]OrderView, 0, len(list.Orders))
	for i := range list.Orders {
		views = append(views, NewOrderView(&list.Orders[i]))
	}
	return OrderListView{Orders: views, NextCursor: list.NextCursor}
}
