package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/payloads"
)

type fakeNotifier struct {
	sent []Notification
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeIdempotency struct {
	processed map[string]bool
	deleted   []string
	checkErr  error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{processed: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	key := consumer + ":" + eventID
	if f.processed[key] {
		return true, nil
	}
	f.processed[key] = true
	return false, nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, consumer, eventID string) error {
	delete(f.processed, consumer+":"+eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

func testConsumer(notifier Notifier, idem idempotencyManager) *Consumer {
	return &Consumer{
		notifier:    notifier,
		idempotency: idem,
		decoders:    newDecoders(),
		logg: logger.New(logger.Options{
			ServiceName: "notifications-test",
			Output:      io.Discard,
		}),
	}
}

func buildEnvelope(t *testing.T, payload any) outbox.PayloadEnvelope {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func TestProcessAgreementSigned(t *testing.T) {
	notifier := &fakeNotifier{}
	consumer := testConsumer(notifier, newFakeIdempotency())

	orderID := uuid.New()
	envelope := buildEnvelope(t, payloads.AgreementSignedEvent{
		OrderID:      orderID,
		OrderNumber:  "BB-2026-0030",
		SubmissionID: "sub_1",
		SignedAt:     time.Now().UTC(),
	})

	require.NoError(t, consumer.Process(context.Background(), enums.EventAgreementSigned, envelope))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, orderID, notifier.sent[0].OrderID)
	assert.False(t, notifier.sent[0].Internal)
}

func TestProcessDeclineIsInternalOnly(t *testing.T) {
	notifier := &fakeNotifier{}
	consumer := testConsumer(notifier, newFakeIdempotency())

	envelope := buildEnvelope(t, payloads.AgreementDeclinedEvent{
		OrderID:      uuid.New(),
		OrderNumber:  "BB-2026-0031",
		SubmissionID: "sub_1",
		DeclinedAt:   time.Now().UTC(),
	})

	require.NoError(t, consumer.Process(context.Background(), enums.EventAgreementDeclined, envelope))
	require.Len(t, notifier.sent, 1)
	assert.True(t, notifier.sent[0].Internal)
}

func TestProcessSkipsUninterestingEvents(t *testing.T) {
	notifier := &fakeNotifier{}
	consumer := testConsumer(notifier, newFakeIdempotency())

	envelope := buildEnvelope(t, payloads.OrderCreatedEvent{OrderID: uuid.New()})
	require.NoError(t, consumer.Process(context.Background(), enums.EventOrderCreated, envelope))
	assert.Empty(t, notifier.sent)
}

func TestProcessDuplicateEventIsDropped(t *testing.T) {
	notifier := &fakeNotifier{}
	consumer := testConsumer(notifier, newFakeIdempotency())

	envelope := buildEnvelope(t, payloads.PaymentRecordedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "BB-2026-0032",
	})

	require.NoError(t, consumer.Process(context.Background(), enums.EventPaymentRecorded, envelope))
	require.NoError(t, consumer.Process(context.Background(), enums.EventPaymentRecorded, envelope))
	assert.Len(t, notifier.sent, 1)
}

func TestProcessReleasesMarkerOnDeliveryFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	idem := newFakeIdempotency()
	consumer := testConsumer(notifier, idem)

	envelope := buildEnvelope(t, payloads.PaymentRecordedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "BB-2026-0033",
	})

	err := consumer.Process(context.Background(), enums.EventPaymentRecorded, envelope)
	require.Error(t, err)
	assert.Contains(t, idem.deleted, envelope.EventID)
}

func TestProcessBadPayloadReleasesMarker(t *testing.T) {
	notifier := &fakeNotifier{}
	idem := newFakeIdempotency()
	consumer := testConsumer(notifier, idem)

	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       []byte("{invalid json"),
	}
	err := consumer.Process(context.Background(), enums.EventAgreementSigned, envelope)
	require.Error(t, err)
	assert.Contains(t, idem.deleted, envelope.EventID)
}
