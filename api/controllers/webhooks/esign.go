package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bouncebros/bouncebros-backend/api/responses"
	esignwebhook "github.com/bouncebros/bouncebros-backend/internal/webhooks/esign"
	pkgesign "github.com/bouncebros/bouncebros-backend/pkg/esign"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

const esignSignatureHeader = "X-Esign-Signature"

type EsignWebhookService interface {
	HandleEvent(ctx context.Context, event esignwebhook.Event) (esignwebhook.Disposition, error)
}

type esignSigner interface {
	SigningSecret() string
}

// EsignWebhook ingests signature lifecycle deliveries from the e-signature
// provider. Unmatched and out-of-order deliveries are acknowledged so the
// provider stops retrying them.
func EsignWebhook(svc EsignWebhookService, signer esignSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if signer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "esign client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(esignSignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !pkgesign.VerifySignature(payload, signer.SigningSecret(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		event, err := esignwebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		disposition, err := svc.HandleEvent(ctx, *event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("esign event %s %s", event.ID, disposition))
		}
		responses.WriteSuccess(w, map[string]string{"disposition": string(disposition)})
	}
}
