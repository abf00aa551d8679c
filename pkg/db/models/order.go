package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
)

// Order is the billing/fulfillment aggregate for one rental booking. It is
// owned by the orders repository; every persisted mutation bumps Version,
// which doubles as the optimistic-concurrency token.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;uniqueIndex;not null"`
	Version     int       `gorm:"column:version;not null;default:1"`

	ContactRef    *uuid.UUID `gorm:"column:contact_ref;type:uuid"`
	CustomerEmail *string    `gorm:"column:customer_email"`
	CustomerName  *string    `gorm:"column:customer_name"`
	CustomerPhone *string    `gorm:"column:customer_phone"`

	Status        enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null;default:'card'"`

	SubtotalCents      money.Cents `gorm:"column:subtotal_cents;not null"`
	TaxCents           money.Cents `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents      money.Cents `gorm:"column:discount_cents;not null;default:0"`
	DeliveryFeeCents   money.Cents `gorm:"column:delivery_fee_cents;not null;default:0"`
	ProcessingFeeCents money.Cents `gorm:"column:processing_fee_cents;not null;default:0"`
	TotalCents         money.Cents `gorm:"column:total_cents;not null"`
	DepositCents       money.Cents `gorm:"column:deposit_cents;not null;default:0"`
	BalanceDueCents    money.Cents `gorm:"column:balance_due_cents;not null;default:0"`

	AgreementStatus       enums.AgreementStatus `gorm:"column:agreement_status;not null;default:'not_sent'"`
	AgreementSubmissionID *string               `gorm:"column:agreement_submission_id;uniqueIndex"`
	AgreementSentAt       *time.Time            `gorm:"column:agreement_sent_at"`
	AgreementViewedAt     *time.Time            `gorm:"column:agreement_viewed_at"`
	AgreementSignedAt     *time.Time            `gorm:"column:agreement_signed_at"`

	DeliveryBlocked  bool       `gorm:"column:delivery_blocked;not null;default:true"`
	OverrideReason   *string    `gorm:"column:override_reason"`
	OverrideByUserID *uuid.UUID `gorm:"column:override_by_user_id;type:uuid"`
	OverrideAt       *time.Time `gorm:"column:override_at"`

	Notes         *string `gorm:"column:notes"`
	InternalNotes *string `gorm:"column:internal_notes"`

	Items               []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaymentTransactions []PaymentTransaction `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasOverride reports whether a delivery override audit record is present.
func (o *Order) HasOverride() bool {
	return o != nil && o.OverrideReason != nil
}

// FindTransaction returns the recorded transaction with the given gateway id.
func (o *Order) FindTransaction(transactionID string) *PaymentTransaction {
	if o == nil {
		return nil
	}
	for i := range o.PaymentTransactions {
		if o.PaymentTransactions[i].TransactionID == transactionID {
			return &o.PaymentTransactions[i]
		}
	}
	return nil
}

// CompletedPaymentCents sums the transactions that count toward balance due.
func (o *Order) CompletedPaymentCents() money.Cents {
	if o == nil {
		return 0
	}
	var total money.Cents
	for _, txn := range o.PaymentTransactions {
		if txn.Status.CountsTowardBalance() {
			total += txn.AmountCents
		}
	}
	return total
}
