package agreements

import (
	"net/http"

	"github.com/bouncebros/bouncebros-backend/api/middleware"
	"github.com/bouncebros/bouncebros-backend/api/responses"
	"github.com/bouncebros/bouncebros-backend/api/validators"
	internalagreements "github.com/bouncebros/bouncebros-backend/internal/agreements"
	internalorders "github.com/bouncebros/bouncebros-backend/internal/orders"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

// Send creates a signature submission for the order and returns the updated order.
func Send(svc internalagreements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "agreements service unavailable"))
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

		order, err := svc.SendAgreement(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// Status reports the agreement axis of an order without touching the provider.
func Status(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, internalorders.NewAgreementStatusView(order))
	}
}

// Sync polls the provider for the order's current submission status.
func Sync(svc internalagreements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "agreements service unavailable"))
			return
		}

		orderID, err := validators.ParseURLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, _, err := svc.SyncStatus(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// SyncAll reconciles every pending agreement against the provider. Individual
// order failures are aggregated and surfaced without aborting the sweep.
func SyncAll(svc internalagreements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "agreements service unavailable"))
			return
		}

		summary, err := svc.SyncAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, summary)
	}
}
