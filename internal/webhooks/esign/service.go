// Package esign turns signed provider webhook deliveries into agreement
// state changes.
package esign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bouncebros/bouncebros-backend/internal/agreements"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/metrics"
)

const (
	providerName = "esign"
	consumerName = "esign-webhook"
)

// Event is the decoded webhook body from the e-signature provider. The
// provider sends the event kind under "event"; not every provider sends a
// delivery id, so ID may be derived.
type Event struct {
	ID           string    `json:"id,omitempty"`
	Type         string    `json:"event"`
	SubmissionID string    `json:"submission_id"`
	OccurredAt   time.Time `json:"timestamp"`
}

// Disposition tells the HTTP layer how the delivery was handled. Every
// disposition except rejected acknowledges the delivery; the provider must
// not retry events we have already absorbed.
type Disposition string

const (
	DispositionProcessed Disposition = "processed"
	DispositionDuplicate Disposition = "duplicate"
	DispositionIgnored   Disposition = "ignored"
	DispositionUnmatched Disposition = "unmatched"
	DispositionAnomaly   Disposition = "anomaly"
)

type idempotencyManager interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error)
	Delete(ctx context.Context, consumer string, eventID string) error
}

type agreementApplier interface {
	ApplyExternalEvent(ctx context.Context, event agreements.ExternalEvent) (agreements.ApplyResult, error)
}

// Service processes provider webhook events exactly once.
type Service struct {
	agreements  agreementApplier
	idempotency idempotencyManager
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Agreements  agreementApplier
	Idempotency idempotencyManager
	Metrics     *metrics.WebhookMetrics
	Logger      *logger.Logger
}

// NewService builds the webhook processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Agreements == nil {
		return nil, fmt.Errorf("agreements service required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		agreements:  params.Agreements,
		idempotency: params.Idempotency,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// ParseEvent decodes and validates a webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook body")
	}
	if strings.TrimSpace(event.SubmissionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook submission id required")
	}
	if strings.TrimSpace(event.Type) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type required")
	}
	if strings.TrimSpace(event.ID) == "" {
		// Deliveries without their own id dedupe on submission+kind.
		event.ID = event.SubmissionID + ":" + event.Type
	}
	return &event, nil
}

// HandleEvent applies one delivery. Duplicate deliveries short-circuit on the
// idempotency marker; if the handler fails after marking, the marker is
// removed so the provider's retry is not swallowed.
func (s *Service) HandleEvent(ctx context.Context, event Event) (Disposition, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":      event.ID,
		"event_type":    event.Type,
		"submission_id": event.SubmissionID,
	})

	duplicate, err := s.idempotency.CheckAndMarkProcessed(ctx, consumerName, event.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking webhook idempotency")
	}
	if duplicate {
		s.metrics.IncDuplicate(providerName)
		s.logg.Info(logCtx, "duplicate webhook delivery dropped")
		return DispositionDuplicate, nil
	}

	result, err := s.agreements.ApplyExternalEvent(ctx, agreements.ExternalEvent{
		SubmissionID: event.SubmissionID,
		Type:         event.Type,
		OccurredAt:   event.OccurredAt,
	})
	if err != nil {
		if delErr := s.idempotency.Delete(ctx, consumerName, event.ID); delErr != nil {
			s.logg.Error(logCtx, "releasing webhook idempotency marker", delErr)
		}
		return "", err
	}

	switch result {
	case agreements.ResultApplied:
		s.metrics.IncProcessed(providerName, event.Type)
		s.logg.Info(logCtx, "webhook event applied")
		return DispositionProcessed, nil
	case agreements.ResultUnmatched:
		// Acknowledged so the provider stops retrying; nothing here will
		// ever match.
		s.metrics.IncRejected(providerName, "unmatched_submission")
		s.logg.Warn(logCtx, "webhook submission matches no order")
		return DispositionUnmatched, nil
	case agreements.ResultAnomaly:
		s.metrics.IncAnomaly(providerName, event.Type)
		return DispositionAnomaly, nil
	default:
		s.metrics.IncProcessed(providerName, event.Type)
		return DispositionIgnored, nil
	}
}
