package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Store reads bank entries and balances.
type Store interface {
	BookBalance(ctx context.Context, accountID int64, asOf time.Time) (money.Amount, error)
	UnclearedEntries(ctx context.Context, accountID int64, asOf time.Time) ([]Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes clearing-date writes.
type TxStore interface {
	GetEntryForUpdate(ctx context.Context, entryID int64) (Entry, error)
	SetClearingDate(ctx context.Context, entryID int64, date *time.Time) error
}

// AccountLookup checks that an account exists.
type AccountLookup interface {
	ByID(ctx context.Context, id int64) (accounting.Account, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service computes statements and records clearing dates.
type Service struct {
	store    Store
	accounts AccountLookup
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. audit may be nil.
func NewService(store Store, accounts AccountLookup, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, accounts: accounts, audit: audit, logger: logger, now: time.Now}
}

// Statement returns book and bank balances of accountID as of asOf. Book
// balance covers posted vouchers dated on or before asOf; entries without a
// clearing date on or before asOf are uncleared.
func (s *Service) Statement(ctx context.Context, accountID int64, asOf time.Time) (Statement, error) {
	if err := s.requireBankAccount(ctx, accountID); err != nil {
		return Statement{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = dateOnly(asOf)
	book, err := s.store.BookBalance(ctx, accountID, asOf)
	if err != nil {
		return Statement{}, err
	}
	uncleared, err := s.store.UnclearedEntries(ctx, accountID, asOf)
	if err != nil {
		return Statement{}, err
	}
	st := Statement{AccountID: accountID, AsOf: asOf, BookBalance: book, Uncleared: uncleared}
	for _, e := range uncleared {
		st.UnclearedDebits += e.Debit
		st.UnclearedCredits += e.Credit
	}
	st.BankBalance = st.BookBalance - st.UnclearedDebits + st.UnclearedCredits
	if st.Uncleared == nil {
		st.Uncleared = []Entry{}
	}
	return st, nil
}

// Reconcile sets the clearing date of an entry. The same date again is a
// no-op; a different date overwrites the previous one.
func (s *Service) Reconcile(ctx context.Context, entryID int64, date time.Time, actorID int64) (Result, error) {
	if actorID <= 0 {
		return Result{}, shared.ErrUnauthenticated
	}
	if date.IsZero() {
		return Result{}, shared.Validation("reconciliation: clearing date is required")
	}
	cleared := dateOnly(date)
	var res Result
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !entry.IsPosted {
			return ErrVoucherNotPosted
		}
		if err := s.requireBankAccount(ctx, entry.AccountID); err != nil {
			return err
		}
		if cleared.Before(dateOnly(entry.VoucherDate)) {
			return ErrClearingBeforeVoucher
		}
		res.Previous = entry.ClearingDate
		if entry.ClearingDate != nil && dateOnly(*entry.ClearingDate).Equal(cleared) {
			res.Entry = entry
			return nil
		}
		if err := tx.SetClearingDate(ctx, entryID, &cleared); err != nil {
			return err
		}
		entry.ClearingDate = &cleared
		res.Entry = entry
		res.Changed = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Changed {
		s.record(ctx, actorID, "bank_reconciliation.reconcile", res)
	}
	return res, nil
}

// Unreconcile clears the clearing date of an entry.
func (s *Service) Unreconcile(ctx context.Context, entryID int64, actorID int64) (Result, error) {
	if actorID <= 0 {
		return Result{}, shared.ErrUnauthenticated
	}
	var res Result
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		res.Previous = entry.ClearingDate
		if entry.ClearingDate == nil {
			res.Entry = entry
			return nil
		}
		if err := tx.SetClearingDate(ctx, entryID, nil); err != nil {
			return err
		}
		entry.ClearingDate = nil
		res.Entry = entry
		res.Changed = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Changed {
		s.record(ctx, actorID, "bank_reconciliation.unreconcile", res)
	}
	return res, nil
}

func (s *Service) requireBankAccount(ctx context.Context, accountID int64) error {
	acct, err := s.accounts.ByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Type != accounting.AccountTypeAsset {
		return fmt.Errorf("%w: %s is %s", ErrNotBankAccount, acct.Code, acct.Type)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, res Result) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "voucher_entry",
		EntityID: strconv.FormatInt(res.Entry.EntryID, 10),
		OldValue: map[string]any{"bank_clearing_date": formatDate(res.Previous)},
		NewValue: map[string]any{"bank_clearing_date": formatDate(res.Entry.ClearingDate)},
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit emission failed", slog.String("action", action), slog.Any("error", err))
	}
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
