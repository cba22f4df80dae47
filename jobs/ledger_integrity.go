package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/voucher-ledger/internal/jobs"
)

const defaultIntegrityLimit = 50

// Integrity check names used in logs and metrics.
const (
	CheckUnbalancedVouchers = "unbalanced_vouchers"
	CheckHeaderMismatch     = "header_mismatch"
	CheckStockDrift         = "stock_drift"
)

// VoucherFinding describes a voucher whose entries violate double entry.
type VoucherFinding struct {
	VoucherID   uuid.UUID
	Number      string
	EntryDebit  int64
	EntryCredit int64
	HeaderDebit int64
}

// StockFinding describes an item whose stock disagrees with its movements.
type StockFinding struct {
	ItemID       int64
	SKU          string
	CurrentStock decimal.Decimal
	Movements    decimal.Decimal
}

// IntegrityStore runs the read-only integrity queries.
type IntegrityStore interface {
	UnbalancedVouchers(ctx context.Context, limit int) ([]VoucherFinding, error)
	HeaderMismatches(ctx context.Context, limit int) ([]VoucherFinding, error)
	StockDrift(ctx context.Context, limit int) ([]StockFinding, error)
}

// IntegrityReport aggregates one scan.
type IntegrityReport struct {
	Unbalanced     []VoucherFinding
	HeaderMismatch []VoucherFinding
	StockDrift     []StockFinding
	Duration       time.Duration
}

// Findings counts all violations.
func (r IntegrityReport) Findings() int {
	return len(r.Unbalanced) + len(r.HeaderMismatch) + len(r.StockDrift)
}

// LedgerIntegrityJob checks that posted vouchers balance and that item
// stock equals the sum of its movements.
type LedgerIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes integrity scan tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run executes the three checks concurrently and logs every finding.
func (j *LedgerIntegrityJob) Run(ctx context.Context, limit int) (report IntegrityReport, resultErr error) {
	if j.Store == nil {
		return IntegrityReport{}, errors.New("ledger integrity: store not configured")
	}
	if limit <= 0 {
		limit = defaultIntegrityLimit
	}
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report.Unbalanced, err = j.Store.UnbalancedVouchers(gctx, limit)
		return err
	})
	g.Go(func() error {
		var err error
		report.HeaderMismatch, err = j.Store.HeaderMismatches(gctx, limit)
		return err
	})
	g.Go(func() error {
		var err error
		report.StockDrift, err = j.Store.StockDrift(gctx, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return IntegrityReport{}, err
	}
	report.Duration = time.Since(start)

	for _, f := range report.Unbalanced {
		logger.Warn("unbalanced voucher",
			slog.String("voucher_id", f.VoucherID.String()),
			slog.String("number", f.Number),
			slog.Int64("debit_minor", f.EntryDebit),
			slog.Int64("credit_minor", f.EntryCredit),
		)
	}
	for _, f := range report.HeaderMismatch {
		logger.Warn("voucher totals disagree with entries",
			slog.String("voucher_id", f.VoucherID.String()),
			slog.String("number", f.Number),
			slog.Int64("header_debit_minor", f.HeaderDebit),
			slog.Int64("entry_debit_minor", f.EntryDebit),
		)
	}
	for _, f := range report.StockDrift {
		logger.Warn("stock drift",
			slog.Int64("item_id", f.ItemID),
			slog.String("sku", f.SKU),
			slog.String("current_stock", f.CurrentStock.String()),
			slog.String("movement_stock", f.Movements.String()),
		)
	}
	j.metrics().AddFindings(CheckUnbalancedVouchers, len(report.Unbalanced))
	j.metrics().AddFindings(CheckHeaderMismatch, len(report.HeaderMismatch))
	j.metrics().AddFindings(CheckStockDrift, len(report.StockDrift))

	logger.Info("completed integrity scan",
		slog.Int("findings", report.Findings()),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// PGIntegrityStore implements IntegrityStore on PostgreSQL.
type PGIntegrityStore struct {
	pool *pgxpool.Pool
}

// NewPGIntegrityStore constructs the store.
func NewPGIntegrityStore(pool *pgxpool.Pool) *PGIntegrityStore {
	return &PGIntegrityStore{pool: pool}
}

// UnbalancedVouchers lists posted vouchers whose entry debits differ from credits.
func (s *PGIntegrityStore) UnbalancedVouchers(ctx context.Context, limit int) ([]VoucherFinding, error) {
	return s.vouchers(ctx, `SELECT v.id, v.number, COALESCE(SUM(e.debit_minor), 0)::BIGINT, COALESCE(SUM(e.credit_minor), 0)::BIGINT, v.total_debit_minor
FROM vouchers v
LEFT JOIN voucher_entries e ON e.voucher_id = v.id
WHERE v.is_posted
GROUP BY v.id
HAVING COALESCE(SUM(e.debit_minor), 0) <> COALESCE(SUM(e.credit_minor), 0)
ORDER BY v.date, v.number
LIMIT $1`, limit)
}

// HeaderMismatches lists vouchers whose stored totals disagree with their entries.
func (s *PGIntegrityStore) HeaderMismatches(ctx context.Context, limit int) ([]VoucherFinding, error) {
	return s.vouchers(ctx, `SELECT v.id, v.number, COALESCE(SUM(e.debit_minor), 0)::BIGINT, COALESCE(SUM(e.credit_minor), 0)::BIGINT, v.total_debit_minor
FROM vouchers v
LEFT JOIN voucher_entries e ON e.voucher_id = v.id
GROUP BY v.id
HAVING COALESCE(SUM(e.debit_minor), 0) <> v.total_debit_minor
    OR COALESCE(SUM(e.credit_minor), 0) <> v.total_credit_minor
ORDER BY v.date, v.number
LIMIT $1`, limit)
}

// StockDrift lists items whose current stock differs from IN minus OUT movements.
func (s *PGIntegrityStore) StockDrift(ctx context.Context, limit int) ([]StockFinding, error) {
	rows, err := s.pool.Query(ctx, `SELECT i.id, i.sku, i.current_stock,
       COALESCE(SUM(CASE m.type WHEN 'IN' THEN m.quantity ELSE -m.quantity END), 0)
FROM inventory_items i
LEFT JOIN stock_movements m ON m.item_id = i.id
GROUP BY i.id
HAVING i.current_stock <> COALESCE(SUM(CASE m.type WHEN 'IN' THEN m.quantity ELSE -m.quantity END), 0)
ORDER BY i.id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockFinding
	for rows.Next() {
		var f StockFinding
		if err := rows.Scan(&f.ItemID, &f.SKU, &f.CurrentStock, &f.Movements); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGIntegrityStore) vouchers(ctx context.Context, query string, limit int) ([]VoucherFinding, error) {
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VoucherFinding
	for rows.Next() {
		var f VoucherFinding
		if err := rows.Scan(&f.VoucherID, &f.Number, &f.EntryDebit, &f.EntryCredit, &f.HeaderDebit); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
