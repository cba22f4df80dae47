package accounting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/db"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, code, name, type, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// List returns the chart of accounts ordered by code.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetByID loads one account.
func (r *Repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

// GetByCode loads one account by its stable code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

// Create inserts a new account.
func (r *Repository) Create(ctx context.Context, in CreateInput) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `INSERT INTO accounts (code, name, type) VALUES ($1,$2,$3) RETURNING `+accountColumns,
		NormalizeCode(in.Code), in.Name, in.Type))
	if err != nil {
		if name, ok := db.UniqueViolation(err); ok && name == "uq_accounts_code" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return a, nil
}
