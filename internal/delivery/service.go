package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes the manual delivery override.
type Service interface {
	Override(ctx context.Context, actor access.Actor, input OverrideInput) (*models.Order, error)
}

// OverrideInput names the order being released and why.
type OverrideInput struct {
	OrderID uuid.UUID
	Reason  string
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo   orders.Repository
	Tx     txRunner
	Outbox outboxPublisher
	Authz  access.Authorizer
	Logger *logger.Logger
}

type service struct {
	repo   orders.Repository
	tx     txRunner
	outbox outboxPublisher
	authz  access.Authorizer
	logg   *logger.Logger
}

// NewService builds the delivery override service.
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
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		authz:  params.Authz,
		logg:   params.Logger,
	}, nil
}

// Override releases the delivery gate for one order. The override is an
// audited, permanent action: once applied it survives later agreement events,
// and repeating it returns the existing record instead of rewriting it.
func (s *service) Override(ctx context.Context, actor access.Actor, input OverrideInput) (*models.Order, error) {
	if !s.authz.Authorize(actor, access.ActionOverrideDelivery) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can override the delivery gate")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "override reason required")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}

	if order.HasOverride() {
		return order, nil
	}

	now := time.Now().UTC()
	byUser := actor.UserID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{
			"delivery_blocked":    false,
			"override_reason":     reason,
			"override_by_user_id": byUser,
			"override_at":         now,
		}
		if err := repo.UpdateWithVersion(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryOverride,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Version:       1,
			Data: payloads.DeliveryOverrideEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Reason:      reason,
				ByUserID:    byUser,
				OverrideAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Warn(logCtx, "delivery gate overridden")

	updated, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
