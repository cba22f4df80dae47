package vouchers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

func TestMapWriteError(t *testing.T) {
	pgErr := func(code, constraint string) error {
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
	}
	cases := []struct {
		name string
		err  error
		want error
		kind error
	}{
		{"number taken concurrently", pgErr("23505", "uq_vouchers_number"), ErrDuplicateNumber, shared.ErrConflict},
		{"cost center twice", pgErr("23505", "uq_cost_center_allocations"), ErrDuplicateCostCenter, shared.ErrValidation},
		{"other unique", pgErr("23505", "uq_voucher_entries_line"), shared.ErrConflict, shared.ErrConflict},
		{"missing reference", pgErr("23503", "voucher_entries_account_id_fkey"), shared.ErrValidation, shared.ErrValidation},
		{"unbalanced header", pgErr("23514", "ck_vouchers_balanced"), ErrUnbalanced, shared.ErrValidation},
		{"other check", pgErr("23514", "ck_voucher_entries_side"), shared.ErrValidation, shared.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapWriteError(tc.err)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, tc.kind)
		})
	}

	plain := errors.New("connection reset")
	require.Same(t, plain, mapWriteError(plain))
}
