package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/chatpesa/backend/internal/auth"
	"github.com/chatpesa/backend/internal/billing"
	"github.com/chatpesa/backend/internal/clock"
	"github.com/chatpesa/backend/internal/config"
	"github.com/chatpesa/backend/internal/escrow"
	"github.com/chatpesa/backend/internal/handlers"
	"github.com/chatpesa/backend/internal/ledger"
	"github.com/chatpesa/backend/internal/notify"
	"github.com/chatpesa/backend/internal/payments"
	"github.com/chatpesa/backend/internal/pricing"
	"github.com/chatpesa/backend/internal/repository"
	"github.com/chatpesa/backend/internal/router"
	"github.com/chatpesa/backend/internal/session"
	"github.com/chatpesa/backend/internal/store"
	"github.com/chatpesa/backend/internal/sweeper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := store.RunMigrations(ctx, cfg.DSN(), "up"); err != nil {
		slog.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		slog.Error("cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	// River migrations (job queue tables)
	migrator, err := rivermigrate.New(riverpgxv5.New(db.Pool), nil)
	if err != nil {
		slog.Error("failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Optional collaborators
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, webhook dedup fast path disabled", "error", err)
			rdb = nil
		}
	}

	var notifier notify.Publisher = notify.LogPublisher{Logger: logger}
	if cfg.NatsURL != "" {
		np, err := notify.NewNATSPublisher(cfg.NatsURL)
		if err != nil {
			slog.Warn("NATS unreachable, notifications fall back to logging", "error", err)
		} else {
			defer np.Close()
			notifier = np
		}
	}

	clk := clock.System

	// Repositories
	balanceRepo := repository.NewBalanceRepo(db.Pool)
	holdRepo := repository.NewHoldRepo(db.Pool)
	entryRepo := repository.NewEntryRepo(db.Pool)
	sessionRepo := repository.NewSessionRepo(db.Pool)
	requestRepo := repository.NewRequestRepo(db.Pool)
	svcSessionRepo := repository.NewServiceSessionRepo(db.Pool)
	chargeRepo := repository.NewChargeRepo(db.Pool)
	pricingRepo := repository.NewPricingRepo(db.Pool)
	depositRepo := repository.NewDepositRepo(db.Pool)

	// Services
	ledgerSvc := ledger.NewService(balanceRepo, holdRepo, entryRepo)
	pricingSvc := pricing.NewService(pricingRepo)
	sessionSvc := session.NewService(db, sessionRepo, ledgerSvc, pricingSvc, notifier, clk, logger)
	escrowSvc := escrow.NewService(db, requestRepo, svcSessionRepo, ledgerSvc, pricingSvc, notifier, clk, logger)
	billingSvc := billing.NewService(db, chargeRepo, sessionRepo, balanceRepo, ledgerSvc, pricingSvc, clk)
	paymentsSvc := payments.NewService(db, depositRepo, ledgerSvc, rdb, notifier, logger)

	authRepo := auth.NewRepository(db.Pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	// Background sweeps
	workers := river.NewWorkers()
	river.AddWorker(workers, sweeper.NewExpireStaleRequestsWorker(escrowSvc, logger))
	river.AddWorker(workers, sweeper.NewAutoPauseSessionsWorker(sessionSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(db.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Hour),
				func() (river.JobArgs, *river.InsertOpts) {
					return sweeper.ExpireStaleRequestsArgs{ThresholdDays: 7}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Minute),
				func() (river.JobArgs, *river.InsertOpts) {
					return sweeper.AutoPauseSessionsArgs{IdleMinutes: 15}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("failed to create River client", "error", err)
		os.Exit(1)
	}

	// Handlers
	authHandler := auth.NewHandler(authSvc, logger)
	walletHandler := &handlers.WalletHandler{Balances: balanceRepo, Entries: entryRepo, Payments: paymentsSvc, Logger: logger}
	pricingHandler := &handlers.PricingHandler{Pricing: pricingSvc, Logger: logger}
	sessionHandler := &handlers.SessionHandler{Sessions: sessionSvc, Logger: logger}
	requestHandler := &handlers.RequestHandler{Requests: escrowSvc, Logger: logger}
	billingHandler := &handlers.BillingHandler{Billing: billingSvc, Logger: logger}

	apiRouter := router.New(authSvc, authHandler, walletHandler, pricingHandler, sessionHandler, requestHandler, billingHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("starting HTTP server", "addr", cfg.APIAddr())
	if err := http.ListenAndServe(cfg.APIAddr(), corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
