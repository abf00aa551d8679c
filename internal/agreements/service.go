package agreements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/internal/delivery"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
)

const (
	applyAttempts = 3
	applyBackoff  = 50 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ExternalEvent is one provider notification about a submission, arriving
// via webhook or synthesized from a status poll.
type ExternalEvent struct {
	SubmissionID string
	Type         string
	OccurredAt   time.Time
}

// ApplyResult reports how an external event landed.
type ApplyResult string

const (
	// ResultApplied means the order's agreement state advanced.
	ResultApplied ApplyResult = "applied"
	// ResultIgnored means the event was a duplicate or superseded.
	ResultIgnored ApplyResult = "ignored"
	// ResultAnomaly means the event contradicted the recorded state.
	ResultAnomaly ApplyResult = "anomaly"
	// ResultUnmatched means no order references the submission.
	ResultUnmatched ApplyResult = "unmatched"
)

// SyncSummary tallies one reconciliation sweep.
type SyncSummary struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Service drives agreement sends, provider event application, and
// reconciliation polling.
type Service interface {
	SendAgreement(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*models.Order, error)
	ApplyExternalEvent(ctx context.Context, event ExternalEvent) (ApplyResult, error)
	SyncStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error)
	SyncAll(ctx context.Context) (SyncSummary, error)
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo     orders.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Provider esign.Provider
	Authz    access.Authorizer
	Logger   *logger.Logger
}

type service struct {
	repo     orders.Repository
	tx       txRunner
	outbox   outboxPublisher
	provider esign.Provider
	authz    access.Authorizer
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the agreement coordinator.
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
	if params.Provider == nil {
		return nil, fmt.Errorf("esign provider required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		provider: params.Provider,
		authz:    params.Authz,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SendAgreement creates a provider submission for the order and records it.
// The provider call happens before any database write, so a provider failure
// leaves the order untouched. Re-sending is allowed only from not_sent and
// declined; a declined re-send replaces the submission and restarts the
// lifecycle at pending.
func (s *service) SendAgreement(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*models.Order, error) {
	if !s.authz.Authorize(actor, access.ActionSendAgreement) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to send agreements")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}

	switch order.AgreementStatus {
	case enums.AgreementStatusSigned:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "agreement is already signed")
	case enums.AgreementStatusPending, enums.AgreementStatusViewed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "an agreement is already out for signature")
	}

	if order.CustomerEmail == nil || *order.CustomerEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no customer email to send the agreement to")
	}

	params := esign.SubmissionCreateParams{
		SignerEmail: *order.CustomerEmail,
		ReferenceID: order.OrderNumber,
		SendEmail:   true,
		Fields: map[string]string{
			"order_number": order.OrderNumber,
		},
		IdempotencyKey: fmt.Sprintf("agreement-%s-v%d", order.ID, order.Version),
	}
	if order.CustomerName != nil {
		params.SignerName = *order.CustomerName
	}

	submission, err := s.provider.CreateSubmission(ctx, params)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]any{
		"agreement_status":        enums.AgreementStatusPending,
		"agreement_submission_id": submission.ID,
		"agreement_viewed_at":     nil,
		"agreement_signed_at":     nil,
	}
	// sent_at marks the first send only; re-sends keep the original.
	if order.AgreementSentAt == nil {
		updates["agreement_sent_at"] = now
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateWithVersion(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}
		event := payloads.AgreementSentEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			SubmissionID: submission.ID,
			SentAt:       now,
		}
		if order.CustomerEmail != nil {
			event.CustomerEmail = *order.CustomerEmail
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAgreementSent,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Version:       1,
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithSubmissionID(logCtx, submission.ID)
	s.logg.Info(logCtx, "agreement sent for signature")

	return s.repo.FindByID(ctx, order.ID)
}

// ApplyExternalEvent folds one provider notification into the matching
// order. Concurrent staff edits surface as version conflicts; those retry
// against a fresh read, since the provider's event remains true regardless
// of what else changed on the order.
func (s *service) ApplyExternalEvent(ctx context.Context, event ExternalEvent) (ApplyResult, error) {
	if event.SubmissionID == "" {
		return ResultIgnored, pkgerrors.New(pkgerrors.CodeValidation, "submission id required")
	}

	result := ResultIgnored
	backoff := retry.WithMaxRetries(applyAttempts-1, retry.NewConstant(applyBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		order, err := s.repo.FindBySubmissionID(ctx, event.SubmissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = ResultUnmatched
				return nil
			}
			return err
		}

		next, outcome := Apply(order.AgreementStatus, event.Type)
		switch outcome {
		case OutcomeIgnored:
			result = ResultIgnored
			return nil
		case OutcomeAnomaly:
			result = ResultAnomaly
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			logCtx = s.logg.WithFields(logCtx, map[string]any{
				"event_type":       event.Type,
				"agreement_status": order.AgreementStatus.String(),
			})
			s.logg.Warn(logCtx, "agreement event contradicts recorded state")
			return nil
		}

		if err := s.persistTransition(ctx, order, next, event); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = ResultApplied
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *service) persistTransition(ctx context.Context, order *models.Order, next enums.AgreementStatus, event ExternalEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	updates := map[string]any{
		"agreement_status": next,
	}
	switch next {
	case enums.AgreementStatusViewed:
		if order.AgreementViewedAt == nil {
			updates["agreement_viewed_at"] = occurred
		}
	case enums.AgreementStatusSigned:
		// First signature timestamp wins; replays never move it.
		if order.AgreementSignedAt == nil {
			updates["agreement_signed_at"] = occurred
		}
	}

	projected := *order
	projected.AgreementStatus = next
	updates["delivery_blocked"] = delivery.ComputeBlocked(&projected)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateWithVersion(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, order, next, event.SubmissionID, occurred)
	})
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.AgreementStatus, submissionID string, occurred time.Time) error {
	switch next {
	case enums.AgreementStatusSigned:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAgreementSigned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.AgreementSignedEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				SubmissionID: submissionID,
				SignedAt:     occurred,
			},
		})
	case enums.AgreementStatusDeclined:
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAgreementDeclined,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.AgreementDeclinedEvent{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				SubmissionID: submissionID,
				DeclinedAt:   occurred,
			},
		})
	default:
		// Viewed only stamps a timestamp; nothing downstream consumes it.
		return nil
	}
}

// SyncStatus polls the provider for one order's submission and reconciles
// missed webhooks. The bool reports whether the poll advanced the recorded
// agreement state.
func (s *service) SyncStatus(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, false, err
	}
	if order.AgreementSubmissionID == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no agreement submission")
	}
	if order.AgreementStatus.IsTerminalForSync() {
		return order, false, nil
	}

	submission, err := s.provider.GetSubmission(ctx, *order.AgreementSubmissionID)
	if err != nil {
		return nil, false, err
	}

	eventType, ok := eventForStatus(submission.Status)
	if !ok {
		return order, false, nil
	}

	result, err := s.ApplyExternalEvent(ctx, ExternalEvent{
		SubmissionID: submission.ID,
		Type:         eventType,
		OccurredAt:   submissionTimestamp(submission, eventType),
	})
	if err != nil {
		return nil, false, err
	}

	refreshed, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, false, err
	}
	return refreshed, result == ResultApplied, nil
}

// SyncAll reconciles every order with an agreement still out for signature.
// One failing order does not stop the sweep; the summary tallies the whole
// pass and per-order errors are combined for the caller.
func (s *service) SyncAll(ctx context.Context) (SyncSummary, error) {
	open, err := s.repo.ListOpenAgreements(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	var summary SyncSummary
	var errs []error
	for i := range open {
		_, changed, err := s.SyncStatus(ctx, open[i].ID)
		if err != nil {
			logCtx := s.logg.WithOrderID(ctx, open[i].ID.String())
			s.logg.Error(logCtx, "agreement sync failed", err)
			errs = append(errs, fmt.Errorf("order %s: %w", open[i].ID, err))
			summary.Failed++
			continue
		}
		if changed {
			summary.Updated++
		} else {
			summary.Unchanged++
		}
	}
	return summary, multierr.Combine(errs...)
}

func submissionTimestamp(submission *esign.Submission, eventType string) time.Time {
	var raw string
	switch eventType {
	case esign.EventSubmissionViewed:
		raw = submission.ViewedAt
	case esign.EventSubmissionCompleted:
		raw = submission.SignedAt
	case esign.EventSubmissionDeclined:
		raw = submission.DeclinedAt
	}
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
