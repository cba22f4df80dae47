package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/app"
	"github.com/odyssey-erp/voucher-ledger/internal/audit"
	audithttp "github.com/odyssey-erp/voucher-ledger/internal/audit/http"
	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/observability"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/cache"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
	"github.com/odyssey-erp/voucher-ledger/internal/reconciliation"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
	"github.com/odyssey-erp/voucher-ledger/internal/vouchers"
	"github.com/odyssey-erp/voucher-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGStatementTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, account cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	auditSink := jobs.NewAuditEnqueuer(queue, shared.NewAuditLogger(dbpool), logger)

	metrics := observability.NewMetrics()
	services := app.BuildServices(app.ServicesParams{
		Config:   cfg,
		Logger:   logger,
		Pool:     dbpool,
		Redis:    redisClient,
		Audit:    auditSink,
		Observer: metrics,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		AccountingHandler:     accounting.NewHandler(logger, services.Accounts),
		VoucherHandler:        vouchers.NewHandler(logger, services.Vouchers),
		InventoryHandler:      inventory.NewHandler(logger, services.Inventory),
		ReconciliationHandler: reconciliation.NewHandler(logger, services.Reconciliation),
		JobHandler:            jobs.NewHandler(inspector, logger),
		AuditHandler:          audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		Metrics:               metrics,
		Readiness: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    app.RedisPinger{Client: redisClient},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("base_currency", cfg.BaseCurrency))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
