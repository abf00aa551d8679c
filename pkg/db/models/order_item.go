package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
)

// OrderItem is one line of a rental order. LineTotalCents is always
// Quantity * UnitPriceCents; the orders service recomputes it before every
// persisted write.
type OrderItem struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Kind           enums.OrderItemKind `gorm:"column:kind;not null;default:'rental'"`
	Name           string              `gorm:"column:name;not null"`
	ProductRef     *uuid.UUID          `gorm:"column:product_ref;type:uuid"`
	Quantity       int                 `gorm:"column:quantity;not null"`
	UnitPriceCents money.Cents         `gorm:"column:unit_price_cents;not null"`
	LineTotalCents money.Cents         `gorm:"column:line_total_cents;not null"`
	Position       int                 `gorm:"column:position;not null;default:0"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}
