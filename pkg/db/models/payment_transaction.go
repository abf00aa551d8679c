package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
)

// PaymentTransaction is one gateway result applied to an order. Rows are
// append-only and unique per (order_id, transaction_id), which is what makes
// payment recording idempotent.
type PaymentTransaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payment_transactions_order_txn"`
	TransactionID string                  `gorm:"column:transaction_id;not null;uniqueIndex:ux_payment_transactions_order_txn"`
	AmountCents   money.Cents             `gorm:"column:amount_cents;not null"`
	Currency      string                  `gorm:"column:currency;not null;default:'USD'"`
	Status        enums.TransactionStatus `gorm:"column:status;not null"`
	GatewayStatus string                  `gorm:"column:gateway_status;not null"`
	RecordedAt    time.Time               `gorm:"column:recorded_at;not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}
