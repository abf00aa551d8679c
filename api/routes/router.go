package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bouncebros/bouncebros-backend/api/controllers"
	agreementcontrollers "github.com/bouncebros/bouncebros-backend/api/controllers/agreements"
	deliverycontrollers "github.com/bouncebros/bouncebros-backend/api/controllers/delivery"
	ordercontrollers "github.com/bouncebros/bouncebros-backend/api/controllers/orders"
	paymentcontrollers "github.com/bouncebros/bouncebros-backend/api/controllers/payments"
	webhookcontrollers "github.com/bouncebros/bouncebros-backend/api/controllers/webhooks"
	"github.com/bouncebros/bouncebros-backend/api/middleware"
	"github.com/bouncebros/bouncebros-backend/internal/agreements"
	"github.com/bouncebros/bouncebros-backend/internal/delivery"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/internal/payments"
	esignwebhook "github.com/bouncebros/bouncebros-backend/internal/webhooks/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/config"
	"github.com/bouncebros/bouncebros-backend/pkg/db"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/redis"
)

// NewRouter wires every HTTP surface of the API.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	ordersSvc orders.Service,
	agreementsSvc agreements.Service,
	paymentsSvc payments.Service,
	deliverySvc delivery.Service,
	webhookSvc *esignwebhook.Service,
	esignClient esign.Provider,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/esign", webhookcontrollers.EsignWebhook(webhookSvc, esignClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))

			r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
				Post("/sync-all-agreements", agreementcontrollers.SyncAll(agreementsSvc, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(ordersSvc, logg))
				r.Patch("/", ordercontrollers.Update(ordersSvc, logg))
				r.Delete("/", ordercontrollers.Delete(ordersSvc, logg))

				r.Post("/send-agreement", agreementcontrollers.Send(agreementsSvc, logg))
				r.Get("/send-agreement", agreementcontrollers.Status(ordersSvc, logg))
				r.Post("/sync-agreement", agreementcontrollers.Sync(agreementsSvc, logg))

				r.Post("/payment", paymentcontrollers.Initiate(paymentsSvc, logg))
				r.Patch("/payment", paymentcontrollers.Record(paymentsSvc, logg))

				r.With(middleware.RequireRole(string(enums.RoleAdmin), logg)).
					Post("/override-delivery-block", deliverycontrollers.Override(deliverySvc, logg))
			})
		})
	})

	return r
}
