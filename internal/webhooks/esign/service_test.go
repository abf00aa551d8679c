package esign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouncebros/bouncebros-backend/internal/agreements"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/metrics"
)

type fakeIdempotency struct {
	processed map[string]bool
	deleted   []string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{processed: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key := consumer + ":" + eventID
	if f.processed[key] {
		return true, nil
	}
	f.processed[key] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(f.processed, key)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeApplier struct {
	result agreements.ApplyResult
	err    error
	calls  []agreements.ExternalEvent
}

func (f *fakeApplier) ApplyExternalEvent(ctx context.Context, event agreements.ExternalEvent) (agreements.ApplyResult, error) {
	f.calls = append(f.calls, event)
	return f.result, f.err
}

func newTestService(t *testing.T, applier *fakeApplier, idem *fakeIdempotency) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Agreements:  applier,
		Idempotency: idem,
		Metrics:     metrics.NewWebhookMetrics(nil),
		Logger:      logger.New(logger.Options{ServiceName: "esign-webhook-test"}),
	})
	require.NoError(t, err)
	return svc
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id":"evt_1","event":"submission.completed","submission_id":"sub_1","timestamp":"2026-08-30T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "submission.completed", event.Type)
	assert.Equal(t, "sub_1", event.SubmissionID)
	assert.False(t, event.OccurredAt.IsZero())

	// Providers that omit a delivery id still get a stable dedupe key.
	event, err = ParseEvent([]byte(`{"event":"submission.completed","submission_id":"sub_42","timestamp":"2026-08-30T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "sub_42:submission.completed", event.ID)

	_, err = ParseEvent([]byte(`{"event":"submission.completed"}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseEvent([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleEventApplies(t *testing.T) {
	applier := &fakeApplier{result: agreements.ResultApplied}
	svc := newTestService(t, applier, newFakeIdempotency())

	disposition, err := svc.HandleEvent(context.Background(), Event{
		ID:           "evt_1",
		Type:         "submission.completed",
		SubmissionID: "sub_1",
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionProcessed, disposition)
	require.Len(t, applier.calls, 1)
	assert.Equal(t, "sub_1", applier.calls[0].SubmissionID)
}

func TestHandleEventDuplicateDeliveryShortCircuits(t *testing.T) {
	applier := &fakeApplier{result: agreements.ResultApplied}
	idem := newFakeIdempotency()
	svc := newTestService(t, applier, idem)

	event := Event{ID: "evt_1", Type: "submission.completed", SubmissionID: "sub_1"}

	_, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)

	disposition, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, disposition)
	assert.Len(t, applier.calls, 1)
}

func TestHandleEventFailureReleasesMarker(t *testing.T) {
	applier := &fakeApplier{err: pkgerrors.New(pkgerrors.CodeInternal, "boom")}
	idem := newFakeIdempotency()
	svc := newTestService(t, applier, idem)

	event := Event{ID: "evt_1", Type: "submission.completed", SubmissionID: "sub_1"}

	_, err := svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, idem.deleted, "evt_1")

	// A retry is not treated as a duplicate.
	applier.err = nil
	applier.result = agreements.ResultApplied
	disposition, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, DispositionProcessed, disposition)
}

func TestHandleEventUnmatchedIsAcknowledged(t *testing.T) {
	applier := &fakeApplier{result: agreements.ResultUnmatched}
	svc := newTestService(t, applier, newFakeIdempotency())

	disposition, err := svc.HandleEvent(context.Background(), Event{
		ID:           "evt_1",
		Type:         "submission.completed",
		SubmissionID: "sub_unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionUnmatched, disposition)
}

func TestHandleEventAnomalyIsAcknowledged(t *testing.T) {
	applier := &fakeApplier{result: agreements.ResultAnomaly}
	svc := newTestService(t, applier, newFakeIdempotency())

	disposition, err := svc.HandleEvent(context.Background(), Event{
		ID:           "evt_1",
		Type:         "submission.declined",
		SubmissionID: "sub_1",
	})
	require.NoError(t, err)
	assert.Equal(t, DispositionAnomaly, disposition)
}
