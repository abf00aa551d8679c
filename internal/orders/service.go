package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/pkg/config"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	CreateOrder(ctx context.Context, actor access.Actor, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	UpdateOrder(ctx context.Context, actor access.Actor, input UpdateOrderInput) (*models.Order, error)
	DeleteOrder(ctx context.Context, actor access.Actor, id uuid.UUID) error
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Authz  access.Authorizer
	Config config.OrdersConfig
	Logger *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	authz   access.Authorizer
	cfg     config.OrdersConfig
	logg    *logger.Logger
	feeRate decimal.Decimal
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		authz:   params.Authz,
		cfg:     params.Config,
		logg:    params.Logger,
		feeRate: money.RateFromFloat(params.Config.ProcessingFeeRate),
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, actor access.Actor, input CreateOrderInput) (*models.Order, error) {
	if !s.authz.Authorize(actor, access.ActionManageOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage orders")
	}
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}
	if input.ContactRef == nil && (input.CustomerEmail == nil || strings.TrimSpace(*input.CustomerEmail) == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a contact reference or customer email is required")
	}
	if input.TaxCents < 0 || input.DiscountCents < 0 || input.DepositCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "money fields must be non-negative")
	}

	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCard
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}

	deliveryFee := money.Cents(s.cfg.DefaultDeliveryFeeCents)
	if input.DeliveryFeeCents != nil {
		if *input.DeliveryFeeCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery fee must be non-negative")
		}
		deliveryFee = money.Cents(*input.DeliveryFeeCents)
	}
	if input.ProcessingFeeCents != nil && *input.ProcessingFeeCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "processing fee must be non-negative")
	}

	order := &models.Order{
		Version:          1,
		ContactRef:       input.ContactRef,
		CustomerName:     input.CustomerName,
		CustomerEmail:    input.CustomerEmail,
		CustomerPhone:    input.CustomerPhone,
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    method,
		TaxCents:         money.Cents(input.TaxCents),
		DiscountCents:    money.Cents(input.DiscountCents),
		DeliveryFeeCents: deliveryFee,
		DepositCents:     money.Cents(input.DepositCents),
		AgreementStatus:  enums.AgreementStatusNotSent,
		DeliveryBlocked:  true,
		Notes:            input.Notes,
		InternalNotes:    input.InternalNotes,
		Items:            buildItems(input.Items),
	}
	if input.ProcessingFeeCents != nil {
		RecomputeTotalsWithFee(order, money.Cents(*input.ProcessingFeeCents))
	} else {
		RecomputeTotals(order, s.feeRate)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		seq, err := repo.AllocateOrderNumber(ctx, time.Now().UTC().Year())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocating order number")
		}
		order.OrderNumber = s.formatOrderNumber(time.Now().UTC().Year(), seq)

		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Status:      order.Status,
				TotalCents:  order.TotalCents.Int64(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return s.repo.List(ctx, params, filters)
}

func (s *service) UpdateOrder(ctx context.Context, actor access.Actor, input UpdateOrderInput) (*models.Order, error) {
	if !s.authz.Authorize(actor, access.ActionManageOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to manage orders")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ExpectedVersion <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected version required")
	}

	current, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapFindErr(err)
	}

	// A stale client token is rejected outright; retrying on the client's
	// behalf would overwrite edits the client never saw.
	if input.ExpectedVersion != current.Version {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order version is stale")
	}

	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", *input.Status))
		}
		if !current.Status.CanTransitionTo(*input.Status) {
			return nil, pkgerrors.New(
				pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", current.Status, *input.Status),
			)
		}
	}

	touchesMoney := input.Items != nil || input.DeliveryFeeCents != nil ||
		input.TaxCents != nil || input.DiscountCents != nil || input.DepositCents != nil ||
		input.ProcessingFeeCents != nil
	if touchesMoney && current.CompletedPaymentCents() > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot reprice an order with recorded payments")
	}

	next := *current
	applyUpdate(&next, input)
	if input.Items != nil {
		if err := validateItems(*input.Items); err != nil {
			return nil, err
		}
		next.Items = buildItems(*input.Items)
	}
	if input.ProcessingFeeCents != nil {
		if *input.ProcessingFeeCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "processing fee must be non-negative")
		}
		RecomputeTotalsWithFee(&next, money.Cents(*input.ProcessingFeeCents))
	} else {
		RecomputeTotals(&next, s.feeRate)
	}

	updates := map[string]any{
		"customer_name":        next.CustomerName,
		"customer_email":       next.CustomerEmail,
		"customer_phone":       next.CustomerPhone,
		"status":               next.Status,
		"payment_status":       next.PaymentStatus,
		"payment_method":       next.PaymentMethod,
		"subtotal_cents":       next.SubtotalCents,
		"tax_cents":            next.TaxCents,
		"discount_cents":       next.DiscountCents,
		"delivery_fee_cents":   next.DeliveryFeeCents,
		"processing_fee_cents": next.ProcessingFeeCents,
		"total_cents":          next.TotalCents,
		"deposit_cents":        next.DepositCents,
		"balance_due_cents":    next.BalanceDueCents,
		"notes":                next.Notes,
		"internal_notes":       next.InternalNotes,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateWithVersion(ctx, current.ID, current.Version, updates); err != nil {
			return err
		}
		if input.Items != nil {
			if err := repo.ReplaceItems(ctx, current.ID, next.Items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replacing order items")
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.OrderUpdatedEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				Status:      next.Status,
				Version:     current.Version + 1,
				TotalCents:  next.TotalCents.Int64(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, current.ID)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return updated, nil
}

func (s *service) DeleteOrder(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	if !s.authz.Authorize(actor, access.ActionDeleteOrder) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to delete orders")
	}
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapFindErr(err)
	}
	if order.Status == enums.OrderStatusPaid || order.Status == enums.OrderStatusConfirmed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid or confirmed orders cannot be deleted")
	}
	if len(order.PaymentTransactions) > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "orders with recorded payments cannot be deleted")
	}
	if order.AgreementStatus == enums.AgreementStatusSigned {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "orders with a signed agreement cannot be deleted")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Delete(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Version:       1,
			Data: payloads.OrderDeletedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				DeletedAt:   time.Now().UTC(),
			},
		})
	})
}

func (s *service) formatOrderNumber(year int, seq int64) string {
	prefix := s.cfg.NumberPrefix
	if prefix == "" {
		prefix = "BB"
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order item is required")
	}
	for i, item := range items {
		if item.Name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: name required", i))
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unit price must be non-negative", i))
		}
		if item.Kind != "" && !item.Kind.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: invalid kind %q", i, item.Kind))
		}
	}
	return nil
}

func buildItems(inputs []ItemInput) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(inputs))
	for i, input := range inputs {
		kind := input.Kind
		if kind == "" {
			kind = enums.OrderItemKindRental
		}
		items = append(items, models.OrderItem{
			Kind:           kind,
			Name:           input.Name,
			ProductRef:     input.ProductRef,
			Quantity:       input.Quantity,
			UnitPriceCents: money.Cents(input.UnitPriceCents),
			Position:       i,
		})
	}
	return items
}

func applyUpdate(order *models.Order, input UpdateOrderInput) {
	if input.CustomerName != nil {
		order.CustomerName = input.CustomerName
	}
	if input.CustomerEmail != nil {
		order.CustomerEmail = input.CustomerEmail
	}
	if input.CustomerPhone != nil {
		order.CustomerPhone = input.CustomerPhone
	}
	if input.Status != nil {
		order.Status = *input.Status
	}
	if input.PaymentMethod != nil {
		order.PaymentMethod = *input.PaymentMethod
	}
	if input.DeliveryFeeCents != nil {
		order.DeliveryFeeCents = money.Cents(*input.DeliveryFeeCents)
	}
	if input.TaxCents != nil {
		order.TaxCents = money.Cents(*input.TaxCents)
	}
	if input.DiscountCents != nil {
		order.DiscountCents = money.Cents(*input.DiscountCents)
	}
	if input.DepositCents != nil {
		order.DepositCents = money.Cents(*input.DepositCents)
	}
	if input.Notes != nil {
		order.Notes = input.Notes
	}
	if input.InternalNotes != nil {
		order.InternalNotes = input.InternalNotes
	}
}

func actorRef(actor access.Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return err
}
