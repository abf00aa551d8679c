package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/pkg/config"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

type stubRepo struct {
	createFn            func(ctx context.Context, order *models.Order) (*models.Order, error)
	findByIDFn          func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	updateWithVersionFn func(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error
	replaceItemsFn      func(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	deleteFn            func(ctx context.Context, orderID uuid.UUID) error
	allocateFn          func(ctx context.Context, year int) (int64, error)
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if r.createFn == nil {
		order.ID = uuid.New()
		return order, nil
	}
	return r.createFn(ctx, order)
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if r.findByIDFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.findByIDFn(ctx, id)
}

func (r *stubRepo) FindBySubmissionID(ctx context.Context, submissionID string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return &OrderList{}, nil
}

func (r *stubRepo) ListOpenAgreements(ctx context.Context) ([]models.Order, error) {
	return nil, nil
}

func (r *stubRepo) UpdateWithVersion(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error {
	if r.updateWithVersionFn == nil {
		return nil
	}
	return r.updateWithVersionFn(ctx, orderID, expectedVersion, updates)
}

func (r *stubRepo) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if r.replaceItemsFn == nil {
		return nil
	}
	return r.replaceItemsFn(ctx, orderID, items)
}

func (r *stubRepo) AppendTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return nil
}

func (r *stubRepo) Delete(ctx context.Context, orderID uuid.UUID) error {
	if r.deleteFn == nil {
		return nil
	}
	return r.deleteFn(ctx, orderID)
}

func (r *stubRepo) AllocateOrderNumber(ctx context.Context, year int) (int64, error) {
	if r.allocateFn == nil {
		return 1, nil
	}
	return r.allocateFn(ctx, year)
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func newTestService(t *testing.T, repo Repository) (Service, *recordingOutbox) {
	t.Helper()

	sink := &recordingOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Tx:     stubTxRunner{},
		Outbox: sink,
		Authz:  access.NewRoleAuthorizer(),
		Config: config.OrdersConfig{
			DefaultDeliveryFeeCents: 2000,
			ProcessingFeeRate:       0.03,
			NumberPrefix:            "BB",
		},
		Logger: logger.New(logger.Options{ServiceName: "orders-test"}),
	})
	require.NoError(t, err)
	return svc, sink
}

func staffActor() access.Actor {
	return access.Actor{UserID: uuid.New(), Role: enums.RoleStaff}
}

func adminActor() access.Actor {
	return access.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func TestCreateOrderComputesTotalsAndEmits(t *testing.T) {
	svc, sink := newTestService(t, &stubRepo{})
	ctx := context.Background()

	email := "customer@example.com"
	order, err := svc.CreateOrder(ctx, staffActor(), CreateOrderInput{
		CustomerEmail: &email,
		Items: []ItemInput{
			{Name: "Castle Bouncer", Quantity: 2, UnitPriceCents: 7500},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, order.Version)
	assert.Equal(t, fmt.Sprintf("BB-%d-0001", time.Now().UTC().Year()), order.OrderNumber)
	assert.Equal(t, money.Cents(15000), order.SubtotalCents)
	assert.Equal(t, money.Cents(450), order.ProcessingFeeCents)
	assert.Equal(t, money.Cents(2000), order.DeliveryFeeCents)
	assert.Equal(t, money.Cents(17450), order.TotalCents)
	assert.Equal(t, enums.PaymentMethodCard, order.PaymentMethod)
	assert.True(t, order.DeliveryBlocked)
	assert.Equal(t, enums.AgreementStatusNotSent, order.AgreementStatus)

	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventOrderCreated, sink.events[0].EventType)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc, _ := newTestService(t, &stubRepo{})

	_, err := svc.CreateOrder(context.Background(), staffActor(), CreateOrderInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateOrderRequiresContactOrEmail(t *testing.T) {
	svc, sink := newTestService(t, &stubRepo{})

	_, err := svc.CreateOrder(context.Background(), staffActor(), CreateOrderInput{
		Items: []ItemInput{{Name: "Castle Bouncer", Quantity: 1, UnitPriceCents: 7500}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, sink.events)
}

func TestCreateOrderExplicitFeeWinsOverRate(t *testing.T) {
	svc, _ := newTestService(t, &stubRepo{})

	email := "customer@example.com"
	fee := int64(1200)
	order, err := svc.CreateOrder(context.Background(), staffActor(), CreateOrderInput{
		CustomerEmail:      &email,
		ProcessingFeeCents: &fee,
		Items: []ItemInput{
			{Name: "Castle Bouncer", Quantity: 2, UnitPriceCents: 7500},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, money.Cents(1200), order.ProcessingFeeCents)
	assert.Equal(t, money.Cents(15000+1200+2000), order.TotalCents)
}

func TestCreateOrderRejectsNegativeFee(t *testing.T) {
	svc, sink := newTestService(t, &stubRepo{})

	email := "customer@example.com"
	fee := int64(-1)
	_, err := svc.CreateOrder(context.Background(), staffActor(), CreateOrderInput{
		CustomerEmail:      &email,
		ProcessingFeeCents: &fee,
		Items:              []ItemInput{{Name: "Castle Bouncer", Quantity: 1, UnitPriceCents: 7500}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, sink.events)
}

func TestUpdateOrderExplicitFeeReplacesDerivedOne(t *testing.T) {
	orderID := uuid.New()
	var captured map[string]any
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:      orderID,
				Version: 1,
				Status:  enums.OrderStatusPending,
				Items: []models.OrderItem{
					{Name: "Castle Bouncer", Quantity: 2, UnitPriceCents: 7500, LineTotalCents: 15000},
				},
				SubtotalCents: 15000,
			}, nil
		},
		updateWithVersionFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	svc, _ := newTestService(t, repo)

	fee := int64(600)
	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:            orderID,
		ExpectedVersion:    1,
		ProcessingFeeCents: &fee,
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, money.Cents(600), captured["processing_fee_cents"])
	assert.Equal(t, money.Cents(15600), captured["total_cents"])
}

func TestUpdateOrderExplicitFeeBlockedAfterPayment(t *testing.T) {
	orderID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:      orderID,
				Version: 2,
				Status:  enums.OrderStatusProcessing,
				PaymentTransactions: []models.PaymentTransaction{
					{TransactionID: "txn_1", AmountCents: 5000, Status: enums.TransactionStatusCompleted},
				},
			}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	fee := int64(600)
	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:            orderID,
		ExpectedVersion:    2,
		ProcessingFeeCents: &fee,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateOrderForbiddenForCustomerRole(t *testing.T) {
	svc, sink := newTestService(t, &stubRepo{})

	actor := access.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	_, err := svc.CreateOrder(context.Background(), actor, CreateOrderInput{
		Items: []ItemInput{{Name: "Castle Bouncer", Quantity: 1, UnitPriceCents: 7500}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Empty(t, sink.events)
}

func TestUpdateOrderRejectsStaleVersion(t *testing.T) {
	orderID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: orderID, Version: 3, Status: enums.OrderStatusPending}, nil
		},
	}
	svc, sink := newTestService(t, repo)

	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:         orderID,
		ExpectedVersion: 2,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Empty(t, sink.events)
}

func TestUpdateOrderRejectsIllegalStatusTransition(t *testing.T) {
	orderID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: orderID, Version: 1, Status: enums.OrderStatusCancelled}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	status := enums.OrderStatusPaid
	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:         orderID,
		ExpectedVersion: 1,
		Status:          &status,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUpdateOrderBlocksRepricingAfterPayment(t *testing.T) {
	orderID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:      orderID,
				Version: 2,
				Status:  enums.OrderStatusProcessing,
				PaymentTransactions: []models.PaymentTransaction{
					{TransactionID: "txn_1", AmountCents: 5000, Status: enums.TransactionStatusCompleted},
				},
			}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	discount := int64(1000)
	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:         orderID,
		ExpectedVersion: 2,
		DiscountCents:   &discount,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUpdateOrderAllowsNotesAfterPayment(t *testing.T) {
	orderID := uuid.New()
	current := &models.Order{
		ID:      orderID,
		Version: 2,
		Status:  enums.OrderStatusProcessing,
		PaymentTransactions: []models.PaymentTransaction{
			{TransactionID: "txn_1", AmountCents: 5000, Status: enums.TransactionStatusCompleted},
		},
	}
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return current, nil
		},
	}
	svc, sink := newTestService(t, repo)

	notes := "call before delivery"
	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:         orderID,
		ExpectedVersion: 2,
		Notes:           &notes,
	})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventOrderUpdated, sink.events[0].EventType)
}

func TestUpdateOrderSurfacesRepositoryConflict(t *testing.T) {
	orderID := uuid.New()
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: orderID, Version: 1, Status: enums.OrderStatusPending}, nil
		},
		updateWithVersionFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		},
	}
	svc, _ := newTestService(t, repo)

	_, err := svc.UpdateOrder(context.Background(), staffActor(), UpdateOrderInput{
		OrderID:         orderID,
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestDeleteOrderRequiresAdmin(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, Version: 1}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	err := svc.DeleteOrder(context.Background(), staffActor(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestDeleteOrderBlockedByPayments(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:      id,
				Version: 1,
				PaymentTransactions: []models.PaymentTransaction{
					{TransactionID: "txn_1", AmountCents: 5000, Status: enums.TransactionStatusCompleted},
				},
			}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	err := svc.DeleteOrder(context.Background(), adminActor(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeleteOrderBlockedBySettledStatus(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusConfirmed} {
		repo := &stubRepo{
			findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
				return &models.Order{ID: id, Version: 1, Status: status}, nil
			},
		}
		svc, _ := newTestService(t, repo)

		err := svc.DeleteOrder(context.Background(), adminActor(), uuid.New())
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "status %s", status)
	}
}

func TestDeleteOrderBlockedBySignedAgreement(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, Version: 1, AgreementStatus: enums.AgreementStatusSigned}, nil
		},
	}
	svc, _ := newTestService(t, repo)

	err := svc.DeleteOrder(context.Background(), adminActor(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeleteOrderEmitsEvent(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, Version: 1, AgreementStatus: enums.AgreementStatusNotSent}, nil
		},
	}
	svc, sink := newTestService(t, repo)

	require.NoError(t, svc.DeleteOrder(context.Background(), adminActor(), uuid.New()))
	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventOrderDeleted, sink.events[0].EventType)
}

func TestGetOrderMapsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &stubRepo{})

	_, err := svc.GetOrder(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
