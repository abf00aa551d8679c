package delivery

import (
	"net/http"

	"github.com/bouncebros/bouncebros-backend/api/middleware"
	"github.com/bouncebros/bouncebros-backend/api/responses"
	"github.com/bouncebros/bouncebros-backend/api/validators"
	internaldelivery "github.com/bouncebros/bouncebros-backend/internal/delivery"
	internalorders "github.com/bouncebros/bouncebros-backend/internal/orders"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
)

type overrideRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Override releases the delivery gate for an order without a signed agreement.
func Override(svc internaldelivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
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

		var req overrideRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Override(r.Context(), actor, internaldelivery.OverrideInput{
			OrderID: orderID,
			Reason:  req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}
