package agreements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

type stubRepo struct {
	findByIDFn           func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	findBySubmissionFn   func(ctx context.Context, submissionID string) (*models.Order, error)
	listOpenAgreementsFn func(ctx context.Context) ([]models.Order, error)
	updateFn             func(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error
}

func (r *stubRepo) WithTx(tx *gorm.DB) orders.Repository { return r }

func (r *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if r.findByIDFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.findByIDFn(ctx, id)
}

func (r *stubRepo) FindBySubmissionID(ctx context.Context, submissionID string) (*models.Order, error) {
	if r.findBySubmissionFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.findBySubmissionFn(ctx, submissionID)
}

func (r *stubRepo) List(ctx context.Context, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (r *stubRepo) ListOpenAgreements(ctx context.Context) ([]models.Order, error) {
	if r.listOpenAgreementsFn == nil {
		return nil, nil
	}
	return r.listOpenAgreementsFn(ctx)
}

func (r *stubRepo) UpdateWithVersion(ctx context.Context, orderID uuid.UUID, expectedVersion int, updates map[string]any) error {
	if r.updateFn == nil {
		return nil
	}
	return r.updateFn(ctx, orderID, expectedVersion, updates)
}

func (r *stubRepo) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	return nil
}

func (r *stubRepo) AppendTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return nil
}

func (r *stubRepo) Delete(ctx context.Context, orderID uuid.UUID) error { return nil }

func (r *stubRepo) AllocateOrderNumber(ctx context.Context, year int) (int64, error) {
	return 1, nil
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

type fakeProvider struct {
	createFn func(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error)
	getFn    func(ctx context.Context, submissionID string) (*esign.Submission, error)
}

func (p *fakeProvider) CreateSubmission(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error) {
	return p.createFn(ctx, params)
}

func (p *fakeProvider) GetSubmission(ctx context.Context, submissionID string) (*esign.Submission, error) {
	return p.getFn(ctx, submissionID)
}

func (p *fakeProvider) SigningSecret() string { return "secret" }

func newTestService(t *testing.T, repo orders.Repository, provider esign.Provider) (Service, *recordingOutbox) {
	t.Helper()

	sink := &recordingOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Tx:       stubTxRunner{},
		Outbox:   sink,
		Provider: provider,
		Authz:    access.NewRoleAuthorizer(),
		Logger:   logger.New(logger.Options{ServiceName: "agreements-test"}),
	})
	require.NoError(t, err)
	return svc, sink
}

func staffActor() access.Actor {
	return access.Actor{UserID: uuid.New(), Role: enums.RoleStaff}
}

func email(v string) *string { return &v }

func TestSendAgreementCreatesSubmission(t *testing.T) {
	orderID := uuid.New()
	var captured map[string]any
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:              orderID,
				OrderNumber:     "BB-2026-0008",
				Version:         1,
				AgreementStatus: enums.AgreementStatusNotSent,
				CustomerEmail:   email("renter@example.com"),
			}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	provider := &fakeProvider{
		createFn: func(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error) {
			assert.Equal(t, "renter@example.com", params.SignerEmail)
			assert.Equal(t, "BB-2026-0008", params.ReferenceID)
			return &esign.Submission{ID: "sub_123", Status: esign.StatusPending}, nil
		},
	}
	svc, sink := newTestService(t, repo, provider)

	_, err := svc.SendAgreement(context.Background(), staffActor(), orderID)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, enums.AgreementStatusPending, captured["agreement_status"])
	assert.Equal(t, "sub_123", captured["agreement_submission_id"])
	assert.Contains(t, captured, "agreement_sent_at")

	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventAgreementSent, sink.events[0].EventType)
}

func TestSendAgreementProviderFailureLeavesOrderUntouched(t *testing.T) {
	orderID := uuid.New()
	updated := false
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:              orderID,
				Version:         1,
				AgreementStatus: enums.AgreementStatusNotSent,
				CustomerEmail:   email("renter@example.com"),
			}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			updated = true
			return nil
		},
	}
	provider := &fakeProvider{
		createFn: func(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider unavailable")
		},
	}
	svc, sink := newTestService(t, repo, provider)

	_, err := svc.SendAgreement(context.Background(), staffActor(), orderID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, updated)
	assert.Empty(t, sink.events)
}

func TestSendAgreementRejectsOutstandingSubmission(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:              id,
				Version:         1,
				AgreementStatus: enums.AgreementStatusViewed,
				CustomerEmail:   email("renter@example.com"),
			}, nil
		},
	}
	provider := &fakeProvider{
		createFn: func(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error) {
			t.Fatal("provider must not be called")
			return nil, nil
		},
	}
	svc, _ := newTestService(t, repo, provider)

	_, err := svc.SendAgreement(context.Background(), staffActor(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestSendAgreementRejectsSignedOrder(t *testing.T) {
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, Version: 1, AgreementStatus: enums.AgreementStatusSigned}, nil
		},
	}
	svc, _ := newTestService(t, repo, &fakeProvider{})

	_, err := svc.SendAgreement(context.Background(), staffActor(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestSendAgreementAfterDeclineReplacesSubmission(t *testing.T) {
	orderID := uuid.New()
	sent := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	oldSubmission := "sub_old"
	var captured map[string]any
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:                    orderID,
				Version:               4,
				AgreementStatus:       enums.AgreementStatusDeclined,
				AgreementSubmissionID: &oldSubmission,
				AgreementSentAt:       &sent,
				CustomerEmail:         email("renter@example.com"),
			}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			assert.Equal(t, 4, expectedVersion)
			captured = updates
			return nil
		},
	}
	provider := &fakeProvider{
		createFn: func(ctx context.Context, params esign.SubmissionCreateParams) (*esign.Submission, error) {
			return &esign.Submission{ID: "sub_new", Status: esign.StatusPending}, nil
		},
	}
	svc, _ := newTestService(t, repo, provider)

	_, err := svc.SendAgreement(context.Background(), staffActor(), orderID)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "sub_new", captured["agreement_submission_id"])
	assert.Equal(t, enums.AgreementStatusPending, captured["agreement_status"])
	// The original sent_at is kept on a re-send.
	assert.NotContains(t, captured, "agreement_sent_at")
}

func TestApplyExternalEventSignsAndReleasesDelivery(t *testing.T) {
	orderID := uuid.New()
	submission := "sub_123"
	var captured map[string]any
	repo := &stubRepo{
		findBySubmissionFn: func(ctx context.Context, id string) (*models.Order, error) {
			return &models.Order{
				ID:                    orderID,
				OrderNumber:           "BB-2026-0008",
				Version:               2,
				AgreementStatus:       enums.AgreementStatusViewed,
				AgreementSubmissionID: &submission,
				DeliveryBlocked:       true,
			}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	svc, sink := newTestService(t, repo, &fakeProvider{})

	signedAt := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	result, err := svc.ApplyExternalEvent(context.Background(), ExternalEvent{
		SubmissionID: submission,
		Type:         esign.EventSubmissionCompleted,
		OccurredAt:   signedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	require.NotNil(t, captured)
	assert.Equal(t, enums.AgreementStatusSigned, captured["agreement_status"])
	assert.Equal(t, signedAt, captured["agreement_signed_at"])
	assert.Equal(t, false, captured["delivery_blocked"])

	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventAgreementSigned, sink.events[0].EventType)
}

func TestApplyExternalEventReplayIsIgnored(t *testing.T) {
	submission := "sub_123"
	signedAt := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		findBySubmissionFn: func(ctx context.Context, id string) (*models.Order, error) {
			return &models.Order{
				ID:                    uuid.New(),
				Version:               3,
				AgreementStatus:       enums.AgreementStatusSigned,
				AgreementSubmissionID: &submission,
				AgreementSignedAt:     &signedAt,
			}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
			t.Fatal("replay must not write")
			return nil
		},
	}
	svc, sink := newTestService(t, repo, &fakeProvider{})

	result, err := svc.ApplyExternalEvent(context.Background(), ExternalEvent{
		SubmissionID: submission,
		Type:         esign.EventSubmissionCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
	assert.Empty(t, sink.events)
}

func TestApplyExternalEventDeclineAfterSignIsAnomaly(t *testing.T) {
	submission := "sub_123"
	repo := &stubRepo{
		findBySubmissionFn: func(ctx context.Context, id string) (*models.Order, error) {
			return &models.Order{
				ID:                    uuid.New(),
				Version:               3,
				AgreementStatus:       enums.AgreementStatusSigned,
				AgreementSubmissionID: &submission,
			}, nil
		},
	}
	svc, sink := newTestService(t, repo, &fakeProvider{})

	result, err := svc.ApplyExternalEvent(context.Background(), ExternalEvent{
		SubmissionID: submission,
		Type:         esign.EventSubmissionDeclined,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultAnomaly, result)
	assert.Empty(t, sink.events)
}

func TestApplyExternalEventUnmatchedSubmission(t *testing.T) {
	svc, sink := newTestService(t, &stubRepo{}, &fakeProvider{})

	result, err := svc.ApplyExternalEvent(context.Background(), ExternalEvent{
		SubmissionID: "sub_unknown",
		Type:         esign.EventSubmissionCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultUnmatched, result)
	assert.Empty(t, sink.events)
}

func TestApplyExternalEventRetriesVersionConflict(t *testing.T) {
	orderID := uuid.New()
	submission := "sub_123"
	version := 2
	attempts := 0
	repo := &stubRepo{}
	repo.findBySubmissionFn = func(ctx context.Context, id string) (*models.Order, error) {
		return &models.Order{
			ID:                    orderID,
			Version:               version,
			AgreementStatus:       enums.AgreementStatusPending,
			AgreementSubmissionID: &submission,
			DeliveryBlocked:       true,
		}, nil
	}
	repo.updateFn = func(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]any) error {
		attempts++
		if attempts == 1 {
			// Simulate a staff edit landing between read and write.
			version = 3
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}
		assert.Equal(t, 3, expectedVersion)
		return nil
	}
	svc, _ := newTestService(t, repo, &fakeProvider{})

	result, err := svc.ApplyExternalEvent(context.Background(), ExternalEvent{
		SubmissionID: submission,
		Type:         esign.EventSubmissionViewed,
	})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	assert.Equal(t, 2, attempts)
}

func TestSyncStatusAppliesPolledCompletion(t *testing.T) {
	orderID := uuid.New()
	submission := "sub_123"
	state := &models.Order{
		ID:                    orderID,
		OrderNumber:           "BB-2026-0008",
		Version:               2,
		AgreementStatus:       enums.AgreementStatusPending,
		AgreementSubmissionID: &submission,
		DeliveryBlocked:       true,
	}
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return state, nil
		},
		findBySubmissionFn: func(ctx context.Context, id string) (*models.Order, error) {
			return state, nil
		},
	}
	provider := &fakeProvider{
		getFn: func(ctx context.Context, submissionID string) (*esign.Submission, error) {
			return &esign.Submission{
				ID:       submission,
				Status:   esign.StatusCompleted,
				SignedAt: "2026-02-03T15:00:00Z",
			}, nil
		},
	}
	svc, sink := newTestService(t, repo, provider)

	_, changed, err := svc.SyncStatus(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, sink.events, 1)
	assert.Equal(t, enums.EventAgreementSigned, sink.events[0].EventType)
}

func TestSyncStatusSkipsTerminalAgreements(t *testing.T) {
	submission := "sub_123"
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{
				ID:                    id,
				Version:               2,
				AgreementStatus:       enums.AgreementStatusSigned,
				AgreementSubmissionID: &submission,
			}, nil
		},
	}
	provider := &fakeProvider{
		getFn: func(ctx context.Context, submissionID string) (*esign.Submission, error) {
			t.Fatal("provider must not be polled for terminal agreements")
			return nil, nil
		},
	}
	svc, _ := newTestService(t, repo, provider)

	_, changed, err := svc.SyncStatus(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSyncAllCombinesFailures(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	submission := "sub_ok"
	repo := &stubRepo{
		listOpenAgreementsFn: func(ctx context.Context) ([]models.Order, error) {
			return []models.Order{{ID: bad}, {ID: good}}, nil
		},
	}
	repo.findByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		if id == bad {
			return nil, gorm.ErrRecordNotFound
		}
		return &models.Order{
			ID:                    good,
			Version:               1,
			AgreementStatus:       enums.AgreementStatusPending,
			AgreementSubmissionID: &submission,
		}, nil
	}
	provider := &fakeProvider{
		getFn: func(ctx context.Context, submissionID string) (*esign.Submission, error) {
			return &esign.Submission{ID: submission, Status: esign.StatusPending}, nil
		},
	}
	svc, _ := newTestService(t, repo, provider)

	summary, err := svc.SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.String())
	assert.Equal(t, SyncSummary{Unchanged: 1, Failed: 1}, summary)
}

func TestSyncAllCountsUpdatedOrders(t *testing.T) {
	signed := uuid.New()
	still := uuid.New()
	subSigned := "sub_signed"
	subStill := "sub_pending"
	states := map[uuid.UUID]*models.Order{
		signed: {
			ID:                    signed,
			OrderNumber:           "BB-2026-0030",
			Version:               1,
			AgreementStatus:       enums.AgreementStatusPending,
			AgreementSubmissionID: &subSigned,
			DeliveryBlocked:       true,
		},
		still: {
			ID:                    still,
			OrderNumber:           "BB-2026-0031",
			Version:               1,
			AgreementStatus:       enums.AgreementStatusPending,
			AgreementSubmissionID: &subStill,
			DeliveryBlocked:       true,
		},
	}
	repo := &stubRepo{
		listOpenAgreementsFn: func(ctx context.Context) ([]models.Order, error) {
			return []models.Order{{ID: signed}, {ID: still}}, nil
		},
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
			return states[id], nil
		},
		findBySubmissionFn: func(ctx context.Context, id string) (*models.Order, error) {
			if id == subSigned {
				return states[signed], nil
			}
			return states[still], nil
		},
	}
	provider := &fakeProvider{
		getFn: func(ctx context.Context, submissionID string) (*esign.Submission, error) {
			if submissionID == subSigned {
				return &esign.Submission{
					ID:       subSigned,
					Status:   esign.StatusCompleted,
					SignedAt: "2026-02-03T15:00:00Z",
				}, nil
			}
			return &esign.Submission{ID: subStill, Status: esign.StatusPending}, nil
		},
	}
	svc, _ := newTestService(t, repo, provider)

	summary, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Updated: 1, Unchanged: 1}, summary)
}
