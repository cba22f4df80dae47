package vouchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Repository persists vouchers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside one transaction shared with inventory writes.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, inventory: inventory.NewTxRepository(tx)})
	})
}

// GetVoucher loads a voucher with entries, allocations and items.
func (r *Repository) GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error) {
	return loadVoucher(ctx, r.pool, id, false)
}

// ListDuePDCs lists pending post-dated vouchers due on or before AsOf.
func (r *Repository) ListDuePDCs(ctx context.Context, filter DueFilter) ([]Voucher, error) {
	rows, err := r.pool.Query(ctx, headerSelect+`
WHERE pdc_status = 'PENDING' AND pdc_date <= $1
ORDER BY pdc_date, number
LIMIT $2`, filter.AsOf, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx        pgx.Tx
	inventory inventory.TxRepository
}

func (r *txRepo) Inventory() inventory.TxRepository {
	return r.inventory
}

func (r *txRepo) NextNumber(ctx context.Context, t VoucherType) (string, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_number_counters (voucher_type, last_value)
VALUES ($1, 1)
ON CONFLICT (voucher_type) DO UPDATE SET last_value = voucher_number_counters.last_value + 1
RETURNING last_value`, string(t)).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", t.Prefix(), next), nil
}

func (r *txRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *txRepo) InsertVoucher(ctx context.Context, v Voucher) error {
	var pdcStatus any
	if v.IsPostDated {
		pdcStatus = string(v.PDCStatus)
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO vouchers
    (id, number, type, date, narration, total_debit_minor, total_credit_minor, currency, exchange_rate,
     is_posted, is_post_dated, pdc_date, pdc_status, is_optional, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.Number, string(v.Type), v.Date, v.Narration, int64(v.TotalDebit), int64(v.TotalCredit), v.Currency, v.ExchangeRate,
		v.IsPosted, v.IsPostDated, v.PDCDate, pdcStatus, v.IsOptional, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *txRepo) InsertEntries(ctx context.Context, voucherID uuid.UUID, entries []Entry) ([]Entry, error) {
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		var foreign *int64
		if entry.ForeignAmount != nil {
			f := int64(*entry.ForeignAmount)
			foreign = &f
		}
		err := r.tx.QueryRow(ctx, `INSERT INTO voucher_entries
    (voucher_id, line_no, account_id, account_name, debit_minor, credit_minor, foreign_amount_minor)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, voucherID, entry.LineNo, entry.AccountID, entry.AccountName, int64(entry.Debit), int64(entry.Credit), foreign).Scan(&entry.ID)
		if err != nil {
			return nil, mapWriteError(err)
		}
		for _, alloc := range entry.Allocations {
			_, err := r.tx.Exec(ctx, `INSERT INTO cost_center_allocations (entry_id, cost_center_id, amount_minor)
VALUES ($1, $2, $3)`, entry.ID, alloc.CostCenterID, int64(alloc.Amount))
			if err != nil {
				return nil, mapWriteError(err)
			}
		}
		out[i] = entry
	}
	return out, nil
}

func (r *txRepo) InsertItems(ctx context.Context, voucherID uuid.UUID, items []Item) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO voucher_items
    (voucher_id, line_no, product_name, description, hsn_sac, inventory_item_id, godown_id, qty, rate_minor, taxable_minor,
     cgst_rate, cgst_minor, sgst_rate, sgst_minor, igst_rate, igst_minor, total_minor, batch_number)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			voucherID, item.LineNo, item.ProductName, item.Description, item.HSNSAC, item.InventoryItemID, item.GodownID,
			item.Quantity, int64(item.Rate), int64(item.Taxable), item.CGSTRate, int64(item.CGST), item.SGSTRate, int64(item.SGST),
			item.IGSTRate, int64(item.IGST), int64(item.Total), item.BatchNumber)
		if err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

func (r *txRepo) GetVoucherForUpdate(ctx context.Context, id uuid.UUID) (Voucher, error) {
	return loadVoucher(ctx, r.tx, id, true)
}

func (r *txRepo) MarkRegularized(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE vouchers SET pdc_status = 'REGULARIZED', regularized_at = $2
WHERE id = $1 AND pdc_status = 'PENDING'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func mapWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "uq_vouchers_number":
			return ErrDuplicateNumber
		case "uq_cost_center_allocations":
			return ErrDuplicateCostCenter
		}
		return fmt.Errorf("%w: %s", shared.ErrConflict, constraint)
	}
	if constraint, ok := db.ForeignKeyViolation(err); ok {
		return shared.Validationf("vouchers: referenced record does not exist (%s)", constraint)
	}
	if constraint, ok := db.CheckViolation(err); ok {
		if constraint == "ck_vouchers_balanced" {
			return ErrUnbalanced
		}
		return shared.Validationf("vouchers: constraint %s violated", constraint)
	}
	return err
}

const headerSelect = `SELECT id, number, type, date, narration, total_debit_minor, total_credit_minor, currency, exchange_rate,
       is_posted, is_post_dated, pdc_date, COALESCE(pdc_status, ''), regularized_at, is_optional, created_by, created_at
FROM vouchers`

func scanHeader(row pgx.Row) (Voucher, error) {
	var (
		v                       Voucher
		kind, status            string
		totalDebit, totalCredit int64
	)
	err := row.Scan(&v.ID, &v.Number, &kind, &v.Date, &v.Narration, &totalDebit, &totalCredit, &v.Currency, &v.ExchangeRate,
		&v.IsPosted, &v.IsPostDated, &v.PDCDate, &status, &v.RegularizedAt, &v.IsOptional, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return Voucher{}, err
	}
	v.Type = VoucherType(kind)
	v.PDCStatus = PDCStatus(status)
	v.TotalDebit = money.Amount(totalDebit)
	v.TotalCredit = money.Amount(totalCredit)
	return v, nil
}

func loadVoucher(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (Voucher, error) {
	query := headerSelect + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	v, err := scanHeader(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	if v.Entries, err = loadEntries(ctx, q, id); err != nil {
		return Voucher{}, err
	}
	if v.Items, err = loadItems(ctx, q, id); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func loadEntries(ctx context.Context, q queryer, voucherID uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT e.id, e.line_no, e.account_id, e.account_name, e.debit_minor, e.credit_minor,
       e.foreign_amount_minor, e.bank_clearing_date, a.cost_center_id, a.amount_minor
FROM voucher_entries e
LEFT JOIN cost_center_allocations a ON a.entry_id = e.id
WHERE e.voucher_id = $1
ORDER BY e.line_no, a.id`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			entry         Entry
			debit, credit int64
			foreign       *int64
			costCenter    *int64
			allocAmount   *int64
		)
		if err := rows.Scan(&entry.ID, &entry.LineNo, &entry.AccountID, &entry.AccountName, &debit, &credit,
			&foreign, &entry.BankClearingDate, &costCenter, &allocAmount); err != nil {
			return nil, err
		}
		if n := len(entries); n == 0 || entries[n-1].ID != entry.ID {
			entry.Debit = money.Amount(debit)
			entry.Credit = money.Amount(credit)
			if foreign != nil {
				f := money.Amount(*foreign)
				entry.ForeignAmount = &f
			}
			entries = append(entries, entry)
		}
		if costCenter != nil && allocAmount != nil {
			last := &entries[len(entries)-1]
			last.Allocations = append(last.Allocations, Allocation{CostCenterID: *costCenter, Amount: money.Amount(*allocAmount)})
		}
	}
	return entries, rows.Err()
}

func loadItems(ctx context.Context, q queryer, voucherID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT line_no, product_name, description, hsn_sac, inventory_item_id, godown_id, qty, rate_minor,
       taxable_minor, cgst_rate, cgst_minor, sgst_rate, sgst_minor, igst_rate, igst_minor, total_minor, batch_number
FROM voucher_items WHERE voucher_id = $1 ORDER BY line_no`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			item                                   Item
			rate, taxable, cgst, sgst, igst, total int64
			cgstRate, sgstRate, igstRate, quantity decimal.Decimal
		)
		if err := rows.Scan(&item.LineNo, &item.ProductName, &item.Description, &item.HSNSAC, &item.InventoryItemID, &item.GodownID,
			&quantity, &rate, &taxable, &cgstRate, &cgst, &sgstRate, &sgst, &igstRate, &igst, &total, &item.BatchNumber); err != nil {
			return nil, err
		}
		item.Quantity = quantity
		item.Rate, item.Taxable, item.Total = money.Amount(rate), money.Amount(taxable), money.Amount(total)
		item.CGSTRate, item.SGSTRate, item.IGSTRate = cgstRate, sgstRate, igstRate
		item.CGST, item.SGST, item.IGST = money.Amount(cgst), money.Amount(sgst), money.Amount(igst)
		items = append(items, item)
	}
	return items, rows.Err()
}
