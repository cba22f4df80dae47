package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// TxRepository exposes transactional operations used by the processor and
// the transfer service.
type TxRepository interface {
	AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal) (StockLevel, error)
	AdjustGodownStock(ctx context.Context, godownID, itemID int64, delta decimal.Decimal) (decimal.Decimal, error)
	SetPurchaseRate(ctx context.Context, itemID int64, rate money.Amount) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	TransferNumberExists(ctx context.Context, number string) (bool, error)
	InsertTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error)
	MarkTransferCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetItem loads an item outside of a transaction.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return getItem(ctx, r.pool, itemID)
}

// GetTransfer loads a transfer with its items and movements.
func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	t, err := getTransfer(ctx, r.pool, id, false)
	if err != nil {
		return Transfer{}, err
	}
	movements, err := listMovements(ctx, r.pool, `WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	t.Movements = movements
	return t, nil
}

// ListMovements returns movements of an item ordered by date.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	return listMovements(ctx, r.pool, `WHERE item_id = $1
  AND ($2::date IS NULL OR date >= $2::date)
  AND ($3::date IS NULL OR date <= $3::date)
ORDER BY date, id
LIMIT $4`, filter.ItemID, from, to, limit)
}

type txRepo struct {
	q Querier
}

// NewTxRepository wraps a pgx transaction so other modules can apply stock
// effects within their own transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{q: tx}
}

func (r *txRepo) AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal) (StockLevel, error) {
	level := StockLevel{ItemID: itemID}
	var rate int64
	err := r.q.QueryRow(ctx, `UPDATE inventory_items
SET current_stock = current_stock + $2, updated_at = NOW()
WHERE id = $1
RETURNING current_stock, purchase_rate_minor`, itemID, delta).Scan(&level.After, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, fmt.Errorf("%w: item %d", ErrUnknownItem, itemID)
		}
		return StockLevel{}, err
	}
	level.Before = level.After.Sub(delta)
	level.PurchaseRate = money.Amount(rate)
	return level, nil
}

func (r *txRepo) AdjustGodownStock(ctx context.Context, godownID, itemID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.q.QueryRow(ctx, `INSERT INTO godown_stock (godown_id, item_id, qty, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (godown_id, item_id) DO UPDATE
SET qty = godown_stock.qty + EXCLUDED.qty, updated_at = NOW()
RETURNING qty`, godownID, itemID, delta).Scan(&qty)
	if err != nil {
		if _, ok := db.ForeignKeyViolation(err); ok {
			return decimal.Decimal{}, fmt.Errorf("%w: godown %d item %d", ErrUnknownItem, godownID, itemID)
		}
		return decimal.Decimal{}, err
	}
	return qty, nil
}

func (r *txRepo) SetPurchaseRate(ctx context.Context, itemID int64, rate money.Amount) error {
	_, err := r.q.Exec(ctx, `UPDATE inventory_items SET purchase_rate_minor = $2, updated_at = NOW() WHERE id = $1`, itemID, int64(rate))
	return err
}

func (r *txRepo) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return getItem(ctx, r.q, itemID)
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO stock_movements
    (item_id, type, quantity, rate_minor, amount_minor, voucher_id, transfer_id, godown_id, date, reference_no, narration, batch_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
		m.ItemID, string(m.Type), m.Quantity, int64(m.Rate), int64(m.Amount),
		m.VoucherID, m.TransferID, m.GodownID, m.Date, m.ReferenceNo, m.Narration, m.BatchNumber,
	).Scan(&id)
	if err != nil {
		if _, ok := db.ForeignKeyViolation(err); ok {
			return 0, fmt.Errorf("%w: item %d", ErrUnknownItem, m.ItemID)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) TransferNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_transfers WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *txRepo) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_transfers
    (id, number, date, from_godown_id, to_godown_id, status, narration, created_by, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Number, t.Date, t.FromGodownID, t.ToGodownID, string(t.Status), t.Narration, t.CreatedBy, t.CreatedAt, t.CompletedAt)
	if err != nil {
		return mapTransferError(err)
	}
	for _, item := range t.Items {
		_, err := r.q.Exec(ctx, `INSERT INTO stock_transfer_items (transfer_id, line_no, item_id, quantity, batch_number)
VALUES ($1, $2, $3, $4, $5)`, t.ID, item.LineNo, item.ItemID, item.Quantity, item.BatchNumber)
		if err != nil {
			return mapTransferError(err)
		}
	}
	return nil
}

func (r *txRepo) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return getTransfer(ctx, r.q, id, true)
}

func (r *txRepo) MarkTransferCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `UPDATE stock_transfers SET status = 'COMPLETED', completed_at = $2
WHERE id = $1 AND status = 'PENDING'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func mapTransferError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		if constraint == "uq_stock_transfers_number" {
			return ErrDuplicateTransferNumber
		}
		return fmt.Errorf("%w: %s", shared.ErrConflict, constraint)
	}
	if _, ok := db.ForeignKeyViolation(err); ok {
		return fmt.Errorf("%w: %v", ErrUnknownItem, err)
	}
	if constraint, ok := db.CheckViolation(err); ok && constraint == "ck_stock_transfers_godowns" {
		return ErrSameGodown
	}
	return err
}

func getItem(ctx context.Context, q Querier, itemID int64) (Item, error) {
	var (
		item Item
		rate int64
	)
	err := q.QueryRow(ctx, `SELECT id, sku, name, current_stock, purchase_rate_minor, updated_at
FROM inventory_items WHERE id = $1`, itemID).Scan(&item.ID, &item.SKU, &item.Name, &item.CurrentStock, &rate, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	item.PurchaseRate = money.Amount(rate)
	return item, nil
}

func getTransfer(ctx context.Context, q Querier, id uuid.UUID, forUpdate bool) (Transfer, error) {
	query := `SELECT id, number, date, from_godown_id, to_godown_id, status, narration, created_by, created_at, completed_at
FROM stock_transfers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		t      Transfer
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Number, &t.Date, &t.FromGodownID, &t.ToGodownID, &status,
		&t.Narration, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	t.Status = TransferStatus(status)
	rows, err := q.Query(ctx, `SELECT line_no, item_id, quantity, batch_number
FROM stock_transfer_items WHERE transfer_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.LineNo, &item.ItemID, &item.Quantity, &item.BatchNumber); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

func listMovements(ctx context.Context, q Querier, where string, args ...any) ([]Movement, error) {
	rows, err := q.Query(ctx, `SELECT id, item_id, type, quantity, rate_minor, amount_minor, voucher_id, transfer_id,
       godown_id, date, reference_no, narration, batch_number, created_at
FROM stock_movements `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var (
			m            Movement
			kind         string
			rate, amount int64
		)
		if err := rows.Scan(&m.ID, &m.ItemID, &kind, &m.Quantity, &rate, &amount, &m.VoucherID, &m.TransferID,
			&m.GodownID, &m.Date, &m.ReferenceNo, &m.Narration, &m.BatchNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(kind)
		m.Rate = money.Amount(rate)
		m.Amount = money.Amount(amount)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
