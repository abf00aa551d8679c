package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/api/middleware"
	"github.com/bouncebros/bouncebros-backend/api/responses"
	"github.com/bouncebros/bouncebros-backend/api/validators"
	internalorders "github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	pkgerrors "github.com/bouncebros/bouncebros-backend/pkg/errors"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/pagination"
)

type itemPayload struct {
	Kind           string  `json:"kind" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	ProductRef     *string `json:"product_ref"`
	Quantity       int     `json:"quantity" validate:"required,min=1"`
	UnitPriceCents int64   `json:"unit_price_cents" validate:"min=0"`
}

type createOrderRequest struct {
	ContactRef    *string `json:"contact_ref"`
	CustomerName  *string `json:"customer_name"`
	CustomerEmail *string `json:"customer_email"`
	CustomerPhone *string `json:"customer_phone"`

	Items []itemPayload `json:"items" validate:"required,min=1,dive"`

	PaymentMethod string `json:"payment_method" validate:"required"`

	DeliveryFeeCents   *int64 `json:"delivery_fee_cents"`
	ProcessingFeeCents *int64 `json:"processing_fee_cents" validate:"omitempty,min=0"`
	TaxCents           int64  `json:"tax_cents" validate:"min=0"`
	DiscountCents      int64  `json:"discount_cents" validate:"min=0"`
	DepositCents       int64  `json:"deposit_cents" validate:"min=0"`

	Notes         *string `json:"notes"`
	InternalNotes *string `json:"internal_notes"`
}

type updateOrderRequest struct {
	// Fallback for clients that cannot set If-Match.
	ExpectedVersion int `json:"expected_version" validate:"omitempty,min=1"`

	CustomerName  *string `json:"customer_name"`
	CustomerEmail *string `json:"customer_email"`
	CustomerPhone *string `json:"customer_phone"`

	Items *[]itemPayload `json:"items" validate:"omitempty,min=1,dive"`

	Status        *string `json:"status"`
	PaymentMethod *string `json:"payment_method"`

	DeliveryFeeCents   *int64 `json:"delivery_fee_cents"`
	ProcessingFeeCents *int64 `json:"processing_fee_cents" validate:"omitempty,min=0"`
	TaxCents           *int64 `json:"tax_cents"`
	DiscountCents      *int64 `json:"discount_cents"`
	DepositCents       *int64 `json:"deposit_cents"`

	Notes         *string `json:"notes"`
	InternalNotes *string `json:"internal_notes"`
}

func parseItems(payloads []itemPayload) ([]internalorders.ItemInput, error) {
	items := make([]internalorders.ItemInput, 0, len(payloads))
	for _, p := range payloads {
		kind, err := enums.ParseOrderItemKind(p.Kind)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item kind")
		}
		var productRef *uuid.UUID
		if p.ProductRef != nil {
			id, err := uuid.Parse(*p.ProductRef)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product reference")
			}
			productRef = &id
		}
		items = append(items, internalorders.ItemInput{
			Kind:           kind,
			Name:           p.Name,
			ProductRef:     productRef,
			Quantity:       p.Quantity,
			UnitPriceCents: p.UnitPriceCents,
		})
	}
	return items, nil
}

// Create opens a new order and returns its full serialized form.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		items, err := parseItems(req.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var contactRef *uuid.UUID
		if req.ContactRef != nil {
			id, err := uuid.Parse(*req.ContactRef)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contact reference"))
				return
			}
			contactRef = &id
		}

		order, err := svc.CreateOrder(r.Context(), actor, internalorders.CreateOrderInput{
			ContactRef:         contactRef,
			CustomerName:       req.CustomerName,
			CustomerEmail:      req.CustomerEmail,
			CustomerPhone:      req.CustomerPhone,
			Items:              items,
			PaymentMethod:      method,
			DeliveryFeeCents:   req.DeliveryFeeCents,
			ProcessingFeeCents: req.ProcessingFeeCents,
			TaxCents:           req.TaxCents,
			DiscountCents:      req.DiscountCents,
			DepositCents:       req.DepositCents,
			Notes:              req.Notes,
			InternalNotes:      req.InternalNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderView(order))
	}
}

// List returns one page of orders with optional status filters.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), pagination.Params{Limit: limit, Cursor: cursor}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, internalorders.NewOrderListView(list))
	}
}

func buildListFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("agreement_status")); raw != "" {
		status, err := enums.ParseAgreementStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid agreement status filter")
		}
		filters.AgreementStatus = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status filter")
		}
		filters.PaymentStatus = &status
	}
	return filters, nil
}

// Detail returns one order by id.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// Update applies a versioned patch to an order.
func Update(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		var req updateOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		expectedVersion := req.ExpectedVersion
		headerVersion, err := validators.ParseIfMatchVersion(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if headerVersion != nil {
			expectedVersion = *headerVersion
		}
		if expectedVersion < 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "expected version is required via If-Match or expected_version"))
			return
		}

		input := internalorders.UpdateOrderInput{
			OrderID:            orderID,
			ExpectedVersion:    expectedVersion,
			CustomerName:       req.CustomerName,
			CustomerEmail:      req.CustomerEmail,
			CustomerPhone:      req.CustomerPhone,
			DeliveryFeeCents:   req.DeliveryFeeCents,
			ProcessingFeeCents: req.ProcessingFeeCents,
			TaxCents:           req.TaxCents,
			DiscountCents:      req.DiscountCents,
			DepositCents:       req.DepositCents,
			Notes:              req.Notes,
			InternalNotes:      req.InternalNotes,
		}

		if req.Status != nil {
			status, err := enums.ParseOrderStatus(*req.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if req.PaymentMethod != nil {
			method, err := enums.ParsePaymentMethod(*req.PaymentMethod)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
				return
			}
			input.PaymentMethod = &method
		}
		if req.Items != nil {
			items, err := parseItems(*req.Items)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Items = &items
		}

		order, err := svc.UpdateOrder(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.SetEntityVersion(w, order.Version)
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// Delete removes an order that never reached a signed agreement or a payment.
func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		if err := svc.DeleteOrder(r.Context(), actor, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
