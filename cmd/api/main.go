package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bouncebros/bouncebros-backend/api/routes"
	"github.com/bouncebros/bouncebros-backend/internal/access"
	"github.com/bouncebros/bouncebros-backend/internal/agreements"
	"github.com/bouncebros/bouncebros-backend/internal/delivery"
	"github.com/bouncebros/bouncebros-backend/internal/orders"
	"github.com/bouncebros/bouncebros-backend/internal/payments"
	esignwebhook "github.com/bouncebros/bouncebros-backend/internal/webhooks/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/config"
	"github.com/bouncebros/bouncebros-backend/pkg/db"
	"github.com/bouncebros/bouncebros-backend/pkg/esign"
	"github.com/bouncebros/bouncebros-backend/pkg/logger"
	"github.com/bouncebros/bouncebros-backend/pkg/metrics"
	"github.com/bouncebros/bouncebros-backend/pkg/migrate"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox"
	"github.com/bouncebros/bouncebros-backend/pkg/outbox/idempotency"
	"github.com/bouncebros/bouncebros-backend/pkg/redis"
	"github.com/bouncebros/bouncebros-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	esignClient, err := esign.NewClient(context.Background(), cfg.Esign, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap esign client", err)
		os.Exit(1)
	}

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	authorizer := access.NewRoleAuthorizer()

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Authz:  authorizer,
		Config: cfg.Orders,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	agreementsSvc, err := agreements.NewService(agreements.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Provider: esignClient,
		Authz:    authorizer,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create agreements service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    ordersRepo,
		Tx:      dbClient,
		Outbox:  outboxService,
		Gateway: squareClient,
		Authz:   authorizer,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	deliverySvc, err := delivery.NewService(delivery.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Authz:  authorizer,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	webhookSvc, err := esignwebhook.NewService(esignwebhook.ServiceParams{
		Agreements:  agreementsSvc,
		Idempotency: idempotencyManager,
		Metrics:     metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ordersSvc,
			agreementsSvc,
			paymentsSvc,
			deliverySvc,
			webhookSvc,
			esignClient,
		),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
