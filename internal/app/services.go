package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/cache"
	"github.com/odyssey-erp/voucher-ledger/internal/reconciliation"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
	"github.com/odyssey-erp/voucher-ledger/internal/vouchers"
)

// AuditSink receives audit records emitted after commits.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Services holds the domain services shared by the server and the worker.
type Services struct {
	Accounts       *accounting.Directory
	Inventory      *inventory.Service
	Vouchers       *vouchers.Service
	Reconciliation *reconciliation.Service
	Idempotency    *shared.IdempotencyStore
}

// ServicesParams collects what BuildServices needs. Redis may be nil, in
// which case account lookups go straight to Postgres.
type ServicesParams struct {
	Config   *Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Audit    AuditSink
	Observer vouchers.Observer
}

// BuildServices wires repositories and services.
func BuildServices(p ServicesParams) *Services {
	accountCache := cache.NewJSON(p.Redis, "accounts", p.Config.AccountCacheTTL)
	directory := accounting.NewDirectory(accounting.NewRepository(p.Pool), accountCache, p.Audit, p.Logger)

	processor := inventory.NewProcessor(inventory.LastCost{}, p.Config.InventoryAllowNegative)
	inventoryService := inventory.NewService(inventory.NewRepository(p.Pool), processor, p.Audit, p.Logger)

	idempotency := shared.NewIdempotencyStore(p.Pool)
	engine := vouchers.NewEngine(directory, p.Config.Currency())
	voucherService := vouchers.NewService(vouchers.NewRepository(p.Pool), engine, processor, p.Audit, p.Logger)
	voucherService.WithIdempotency(idempotency)
	if p.Observer != nil {
		voucherService.WithObserver(p.Observer)
	}

	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(p.Pool), directory, p.Audit, p.Logger)

	return &Services{
		Accounts:       directory,
		Inventory:      inventoryService,
		Vouchers:       voucherService,
		Reconciliation: reconciliationService,
		Idempotency:    idempotency,
	}
}

// RedisPinger adapts a redis client to Pinger.
type RedisPinger struct {
	Client *redis.Client
}

// Ping checks the redis connection.
func (p RedisPinger) Ping(ctx context.Context) error {
	if p.Client == nil {
		return redis.ErrClosed
	}
	return p.Client.Ping(ctx).Err()
}
