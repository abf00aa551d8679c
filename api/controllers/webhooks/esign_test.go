package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	esignwebhook "github.com/bouncebros/bouncebros-backend/internal/webhooks/esign"
	pkgesign "github.com/bouncebros/bouncebros-backend/pkg/esign"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
)

type fakeEsignWebhookService struct {
	calls       int
	disposition esignwebhook.Disposition
	err         error
}

func (f *fakeEsignWebhookService) HandleEvent(ctx context.Context, event esignwebhook.Event) (esignwebhook.Disposition, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.disposition == "" {
		return esignwebhook.DispositionProcessed, nil
	}
	return f.disposition, nil
}

type fakeSigner struct {
	secret string
}

func (f *fakeSigner) SigningSecret() string { return f.secret }

func buildEsignEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"event":         eventType,
		"submission_id": "sub_1",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestEsignWebhook_Success(t *testing.T) {
	payload := buildEsignEvent(t, "submission.completed")
	service := &fakeEsignWebhookService{}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	req.Header.Set("X-Esign-Signature", pkgesign.SignPayload(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data["disposition"] != "processed" {
		t.Fatalf("expected processed disposition, got %q", body.Data["disposition"])
	}
}

func TestEsignWebhook_InvalidSignature(t *testing.T) {
	payload := buildEsignEvent(t, "submission.completed")
	service := &fakeEsignWebhookService{}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	req.Header.Set("X-Esign-Signature", "bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestEsignWebhook_MissingSignature(t *testing.T) {
	payload := buildEsignEvent(t, "submission.viewed")
	service := &fakeEsignWebhookService{}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
}

func TestEsignWebhook_MalformedBody(t *testing.T) {
	payload := []byte(`{"event":"submission.completed"}`)
	service := &fakeEsignWebhookService{}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	req.Header.Set("X-Esign-Signature", pkgesign.SignPayload(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on malformed body")
	}
}

func TestEsignWebhook_HandlerFailure(t *testing.T) {
	payload := buildEsignEvent(t, "submission.completed")
	service := &fakeEsignWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "idempotency store unavailable")}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	req.Header.Set("X-Esign-Signature", pkgesign.SignPayload(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when handler fails, got %d", rec.Code)
	}
}

func TestEsignWebhook_AnomalyStillAcknowledged(t *testing.T) {
	payload := buildEsignEvent(t, "submission.declined")
	service := &fakeEsignWebhookService{disposition: esignwebhook.DispositionAnomaly}
	handler := EsignWebhook(service, &fakeSigner{secret: "secret"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esign", bytes.NewReader(payload))
	req.Header.Set("X-Esign-Signature", pkgesign.SignPayload(payload, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for anomaly disposition, got %d", rec.Code)
	}
}
