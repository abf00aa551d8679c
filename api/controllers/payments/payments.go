package payments

import (
	"net/http"
	"time"

	"github.com/bouncebros/bouncebros-backend/api/middleware"
	"github.com/bouncebros/bouncebros-backend/api/responses"
	"github.com/bouncebros/bouncebros-backend/api/validators"
	internalorders "github.com/bouncebros/bouncebros-backend/internal/orders"
	internalpayments "github.com/bouncebros/bouncebros-backend/internal/payments"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	// Zero charges the full outstanding balance.
	AmountCents int64  `json:"amount_cents" validate:"min=0"`
	Note        string `json:"note"`
}

type recordPaymentRequest struct {
	TransactionID string     `json:"transaction_id" validate:"required"`
	AmountCents   int64      `json:"amount_cents" validate:"required,min=1"`
	Currency      string     `json:"currency"`
	GatewayStatus string     `json:"gateway_status" validate:"required"`
	RecordedAt    *time.Time `json:"recorded_at"`
}

// Initiate charges a card source through the gateway and records the result.
func Initiate(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.InitiatePayment(r.Context(), actor, internalpayments.InitiatePaymentInput{
			OrderID:     orderID,
			SourceID:    req.SourceID,
			AmountCents: req.AmountCents,
			Note:        req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// Record applies an already-settled gateway transaction to an order. Replays
// of a transaction id return the current order unchanged.
func Record(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		if _, ok := middleware.ActorFromContext(r.Context()); !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recordedAt := time.Now().UTC()
		if req.RecordedAt != nil {
			recordedAt = req.RecordedAt.UTC()
		}

		order, err := svc.RecordPayment(r.Context(), internalpayments.RecordPaymentInput{
			OrderID:       orderID,
			TransactionID: req.TransactionID,
			AmountCents:   req.AmountCents,
			Currency:      req.Currency,
			GatewayStatus: req.GatewayStatus,
			RecordedAt:    recordedAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}
