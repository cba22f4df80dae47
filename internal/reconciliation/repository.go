package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
)

// Repository reads and writes clearing dates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BookBalance sums debit minus credit over posted vouchers dated on or before asOf.
func (r *Repository) BookBalance(ctx context.Context, accountID int64, asOf time.Time) (money.Amount, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(e.debit_minor - e.credit_minor), 0)::BIGINT
FROM voucher_entries e
JOIN vouchers v ON v.id = e.voucher_id
WHERE e.account_id = $1 AND v.is_posted AND v.date <= $2`, accountID, asOf).Scan(&balance)
	return money.Amount(balance), err
}

// UnclearedEntries lists entries not cleared on or before asOf.
func (r *Repository) UnclearedEntries(ctx context.Context, accountID int64, asOf time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, entrySelect+`
WHERE e.account_id = $1 AND v.is_posted AND v.date <= $2
  AND (e.bank_clearing_date IS NULL OR e.bank_clearing_date > $2)
ORDER BY v.date, v.number, e.line_no`, accountID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) GetEntryForUpdate(ctx context.Context, entryID int64) (Entry, error) {
	e, err := scanEntry(s.tx.QueryRow(ctx, entrySelect+` WHERE e.id = $1 FOR UPDATE OF e`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (s *txStore) SetClearingDate(ctx context.Context, entryID int64, date *time.Time) error {
	tag, err := s.tx.Exec(ctx, `UPDATE voucher_entries SET bank_clearing_date = $2 WHERE id = $1`, entryID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

const entrySelect = `SELECT e.id, e.account_id, v.id, v.number, v.type, v.date, v.narration,
       e.debit_minor, e.credit_minor, e.bank_clearing_date, v.is_posted
FROM voucher_entries e
JOIN vouchers v ON v.id = e.voucher_id`

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e             Entry
		debit, credit int64
	)
	if err := row.Scan(&e.EntryID, &e.AccountID, &e.VoucherID, &e.VoucherNumber, &e.VoucherType, &e.VoucherDate, &e.Narration,
		&debit, &credit, &e.ClearingDate, &e.IsPosted); err != nil {
		return Entry{}, err
	}
	e.Debit = money.Amount(debit)
	e.Credit = money.Amount(credit)
	return e, nil
}
