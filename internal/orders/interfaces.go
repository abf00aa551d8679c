package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySubmissionID(ctx context.Context, submissionID string) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListOpenAgreements(ctx context.Context) ([]models.Order, error)
	UpdateWithVersion(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error
	ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	AppendTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	AllocateOrderNumber(ctx context.Context, year int) (int64, error)
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status          *enums.OrderStatus
	AgreementStatus *enums.AgreementStatus
	PaymentStatus   *enums.PaymentStatus
}

// OrderList is one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}
