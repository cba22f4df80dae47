package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	audithttp "github.com/odyssey-erp/voucher-ledger/internal/audit/http"
	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/observability"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/reconciliation"
	"github.com/odyssey-erp/voucher-ledger/internal/vouchers"
	"github.com/odyssey-erp/voucher-ledger/jobs"
)

// Pinger reports dependency health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	AccountingHandler     *accounting.Handler
	VoucherHandler        *vouchers.Handler
	InventoryHandler      *inventory.Handler
	ReconciliationHandler *reconciliation.Handler
	JobHandler            *jobs.Handler
	AuditHandler          *audithttp.Handler
	Metrics               *observability.Metrics
	Readiness             map[string]Pinger
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AccountingHandler != nil {
			r.Route("/accounts", params.AccountingHandler.MountRoutes)
		}
		if params.VoucherHandler != nil {
			r.Route("/vouchers", params.VoucherHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountItemRoutes)
			r.Route("/stock-transfers", params.InventoryHandler.MountTransferRoutes)
		}
		if params.ReconciliationHandler != nil {
			r.Route("/bank-reconciliation", params.ReconciliationHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	return r
}

func readinessHandler(logger *slog.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(deps))
		ready := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				status[name] = "down"
				ready = false
				continue
			}
			status[name] = "up"
		}
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		httpx.JSON(w, code, status)
	}
}
