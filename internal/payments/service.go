// Package payments charges orders through the card gateway and folds the
// resulting transactions into the order's financial state.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/pkg/db"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
	"github.com/bouncebros/bouncebros-backend/pkg/square"
)

const (
	recordAttempts = 3
	recordBackoff  = 50 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gateway interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	LocationID() string
}

// InitiatePaymentInput charges a card source against an order.
type InitiatePaymentInput struct {
	OrderID  uuid.UUID
	SourceID string
	// AmountCents of zero charges the full balance due.
	AmountCents int64
	Note        string
}

// RecordPaymentInput applies an already-settled gateway transaction.
type RecordPaymentInput struct {
	OrderID       uuid.UUID
	TransactionID string
	AmountCents   int64
	Currency      string
	GatewayStatus string
	RecordedAt    time.Time
}

// Service records gateway payments against orders.
type Service interface {
	InitiatePayment(ctx context.Context, actor access.Actor, input InitiatePaymentInput) (*models.Order, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Order, error)
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo    orders.Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Gateway gateway
	Authz   access.Authorizer
	Logger  *logger.Logger
}

type service struct {
	repo    orders.Repository
	tx      txRunner
	outbox  outboxPublisher
	gateway gateway
	authz   access.Authorizer
	logg    *logger.Logger
}

// NewService builds the payment recorder.
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
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
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
		gateway: params.Gateway,
		authz:   params.Authz,
		logg:    params.Logger,
	}, nil
}

// InitiatePayment charges the gateway and records the resulting transaction.
// Square settles card charges synchronously, so initiation and recording
// collapse into one step rather than leaving the order untouched until a
// later confirmation arrives. The idempotency key is derived from the order
// and amount, so a network retry of the same charge cannot double-bill.
func (s *service) InitiatePayment(ctx context.Context, actor access.Actor, input InitiatePaymentInput) (*models.Order, error) {
	if !s.authz.Authorize(actor, access.ActionRecordPayment) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to record payments")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if order.BalanceDueCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no balance due")
	}

	amount := input.AmountCents
	if amount == 0 {
		amount = order.BalanceDueCents.Int64()
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if amount > order.BalanceDueCents.Int64() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds balance due")
	}

	payment, err := s.gateway.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    amount,
		Currency:       "USD",
		LocationID:     s.gateway.LocationID(),
		SourceID:       input.SourceID,
		IdempotencyKey: fmt.Sprintf("payment-%s-%d", order.ID, amount),
		Note:           input.Note,
		ReferenceID:    order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	transactionID := stringValue(payment.GetID())
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned a payment without an id")
	}

	return s.RecordPayment(ctx, RecordPaymentInput{
		OrderID:       order.ID,
		TransactionID: transactionID,
		AmountCents:   amount,
		Currency:      "USD",
		GatewayStatus: stringValue(payment.GetStatus()),
	})
}

// RecordPayment is the idempotent write path shared by direct charges and
// webhook-delivered gateway events. Replaying a transaction id returns the
// order as-is; a concurrent duplicate insert loses the unique-index race and
// is treated the same way.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	status, err := enums.ParseTransactionStatus(input.GatewayStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "normalizing gateway status")
	}

	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var result *models.Order
	backoff := retry.WithMaxRetries(recordAttempts-1, retry.NewConstant(recordBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		order, err := s.repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapFindErr(err)
		}

		if existing := order.FindTransaction(input.TransactionID); existing != nil {
			result = order
			return nil
		}

		applied, err := s.applyTransaction(ctx, order, input, status, recordedAt)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				return retry.RetryableError(err)
			}
			if db.IsUniqueViolation(err, "ux_payment_transactions_order_txn") {
				// Lost the race to a concurrent delivery of the same
				// transaction; the other writer's result stands.
				reloaded, findErr := s.repo.FindByID(ctx, input.OrderID)
				if findErr != nil {
					return mapFindErr(findErr)
				}
				result = reloaded
				return nil
			}
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) applyTransaction(ctx context.Context, order *models.Order, input RecordPaymentInput, status enums.TransactionStatus, recordedAt time.Time) (*models.Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	txn := models.PaymentTransaction{
		OrderID:       order.ID,
		TransactionID: input.TransactionID,
		AmountCents:   money.Cents(input.AmountCents),
		Currency:      currency,
		Status:        status,
		GatewayStatus: input.GatewayStatus,
		RecordedAt:    recordedAt,
	}

	projected := *order
	projected.PaymentTransactions = append(append([]models.PaymentTransaction{}, order.PaymentTransactions...), txn)
	// The stored processing fee is authoritative here; re-deriving it from
	// the rate would clobber an explicitly priced order.
	orders.RecomputeTotalsWithFee(&projected, projected.ProcessingFeeCents)

	updates := map[string]any{
		"payment_status":    projected.PaymentStatus,
		"balance_due_cents": projected.BalanceDueCents,
	}

	// A fully covered order moves forward on the business axis too, when
	// the lifecycle allows it.
	if projected.PaymentStatus == enums.PaymentStatusPaid &&
		order.Status != enums.OrderStatusPaid &&
		order.Status.CanTransitionTo(enums.OrderStatusPaid) {
		updates["status"] = enums.OrderStatusPaid
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AppendTransaction(ctx, &txn); err != nil {
			return err
		}
		if err := repo.UpdateWithVersion(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.PaymentRecordedEvent{
				OrderID:         order.ID,
				OrderNumber:     order.OrderNumber,
				TransactionID:   input.TransactionID,
				AmountCents:     input.AmountCents,
				BalanceDueCents: projected.BalanceDueCents.Int64(),
				PaymentStatus:   projected.PaymentStatus,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"transaction_id": input.TransactionID,
		"amount_cents":   input.AmountCents,
	})
	s.logg.Info(logCtx, "payment recorded")

	return s.repo.FindByID(ctx, order.ID)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return err
}
