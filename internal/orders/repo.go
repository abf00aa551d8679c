package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("PaymentTransactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("recorded_at ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBySubmissionID(ctx context.Context, submissionID string) (*models.Order, error) {
	trimmed := strings.TrimSpace(submissionID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("PaymentTransactions").
		Where("agreement_submission_id = ?", trimmed).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items").
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.AgreementStatus != nil {
		query = query.Where("agreement_status = ?", *filters.AgreementStatus)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		list.Orders = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) ListOpenAgreements(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("agreement_submission_id IS NOT NULL").
		Where("agreement_status IN ?", []enums.AgreementStatus{enums.AgreementStatusPending, enums.AgreementStatusViewed}).
		Order("agreement_sent_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateWithVersion applies updates only when the stored version still matches
// expectedVersion, bumping version in the same statement. Zero rows affected
// means another writer got there first.
func (r *repository) UpdateWithVersion(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error {
	payload := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		payload[k] = v
	}
	payload["version"] = expectedVersion + 1
	payload["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(payload)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
	}
	return nil
}

func (r *repository) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) Delete(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", orderID).
		Delete(&models.Order{}).Error
}

// AllocateOrderNumber hands out the next sequence value for the year with a
// single atomic upsert.
func (r *repository) AllocateOrderNumber(ctx context.Context, year int) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO order_counters (year, value) VALUES (?, 1)
		 ON CONFLICT (year) DO UPDATE SET value = order_counters.value + 1
		 RETURNING value`,
		year,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
