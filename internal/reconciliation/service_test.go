package reconciliation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const (
	bankID    int64 = 13
	revenueID int64 = 21
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[int64]Entry
	failSet error
}

func newMemoryStore(entries ...Entry) *memoryStore {
	s := &memoryStore{entries: make(map[int64]Entry)}
	for _, e := range entries {
		s.entries[e.EntryID] = e
	}
	return s
}

func (s *memoryStore) visible(e Entry, accountID int64, asOf time.Time) bool {
	return e.AccountID == accountID && e.IsPosted && !e.VoucherDate.After(asOf)
}

func (s *memoryStore) BookBalance(_ context.Context, accountID int64, asOf time.Time) (money.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total money.Amount
	for _, e := range s.entries {
		if s.visible(e, accountID, asOf) {
			total += e.Debit - e.Credit
		}
	}
	return total, nil
}

func (s *memoryStore) UnclearedEntries(_ context.Context, accountID int64, asOf time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if !s.visible(e, accountID, asOf) {
			continue
		}
		if e.ClearingDate == nil || e.ClearingDate.After(asOf) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[int64]Entry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	if err := fn(ctx, memoryTx{s}); err != nil {
		s.entries = snapshot
		return err
	}
	return nil
}

type memoryTx struct{ s *memoryStore }

func (t memoryTx) GetEntryForUpdate(_ context.Context, entryID int64) (Entry, error) {
	e, ok := t.s.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (t memoryTx) SetClearingDate(_ context.Context, entryID int64, date *time.Time) error {
	if t.s.failSet != nil {
		return t.s.failSet
	}
	e, ok := t.s.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.ClearingDate = date
	t.s.entries[entryID] = e
	return nil
}

type accountsFake map[int64]accounting.Account

func (a accountsFake) ByID(_ context.Context, id int64) (accounting.Account, error) {
	acct, ok := a[id]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return acct, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(t time.Time) *time.Time { return &t }

func bankEntry(id int64, date time.Time, debit, credit money.Amount) Entry {
	return Entry{
		EntryID:       id,
		AccountID:     bankID,
		VoucherID:     uuid.New(),
		VoucherNumber: fmt.Sprintf("RCT-%06d", id),
		VoucherType:   "RECEIPT",
		VoucherDate:   date,
		Debit:         debit,
		Credit:        credit,
		IsPosted:      true,
	}
}

func newTestService(store *memoryStore, audit AuditPort) *Service {
	accounts := accountsFake{
		bankID:    {ID: bankID, Code: "HDFC", Name: "HDFC Bank", Type: accounting.AccountTypeAsset},
		revenueID: {ID: revenueID, Code: "SALES", Name: "Sales", Type: accounting.AccountTypeRevenue},
	}
	svc := NewService(store, accounts, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return day(time.April, 30) }
	return svc
}

func TestStatementBankBalance(t *testing.T) {
	receipt := bankEntry(1, day(time.April, 2), 50000, 0)
	payment := bankEntry(2, day(time.April, 3), 0, 20000)
	cleared := bankEntry(3, day(time.April, 1), 10000, 0)
	cleared.ClearingDate = datePtr(day(time.April, 4))
	clearedLater := bankEntry(4, day(time.April, 5), 0, 5000)
	clearedLater.ClearingDate = datePtr(day(time.May, 2))
	optional := bankEntry(5, day(time.April, 5), 99999, 0)
	optional.IsPosted = false
	future := bankEntry(6, day(time.May, 10), 70000, 0)

	svc := newTestService(newMemoryStore(receipt, payment, cleared, clearedLater, optional, future), nil)

	st, err := svc.Statement(context.Background(), bankID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, day(time.April, 30), st.AsOf)
	require.Equal(t, money.Amount(35000), st.BookBalance)
	require.Equal(t, money.Amount(50000), st.UnclearedDebits)
	require.Equal(t, money.Amount(25000), st.UnclearedCredits)
	require.Equal(t, money.Amount(10000), st.BankBalance)
	require.Len(t, st.Uncleared, 3)

	st, err = svc.Statement(context.Background(), bankID, day(time.May, 31))
	require.NoError(t, err)
	require.Equal(t, money.Amount(105000), st.BookBalance)
	require.Len(t, st.Uncleared, 3)
}

func TestStatementEmptyAndUnknownAccount(t *testing.T) {
	svc := newTestService(newMemoryStore(), nil)

	st, err := svc.Statement(context.Background(), bankID, day(time.April, 1))
	require.NoError(t, err)
	require.NotNil(t, st.Uncleared)
	require.Zero(t, st.BankBalance)

	_, err = svc.Statement(context.Background(), 99, day(time.April, 1))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcileSetsAndOverwritesDate(t *testing.T) {
	store := newMemoryStore(bankEntry(1, day(time.April, 2), 50000, 0))
	audit := &recordingAudit{}
	svc := newTestService(store, audit)
	ctx := context.Background()

	res, err := svc.Reconcile(ctx, 1, day(time.April, 4), 7)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Nil(t, res.Previous)
	require.Equal(t, day(time.April, 4), *res.Entry.ClearingDate)

	res, err = svc.Reconcile(ctx, 1, day(time.April, 4), 7)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Len(t, audit.logs, 1)

	res, err = svc.Reconcile(ctx, 1, day(time.April, 6), 7)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, day(time.April, 4), *res.Previous)
	require.Equal(t, day(time.April, 6), *store.entries[1].ClearingDate)

	require.Len(t, audit.logs, 2)
	last := audit.logs[1]
	require.Equal(t, "bank_reconciliation.reconcile", last.Action)
	require.Equal(t, "2024-04-04", last.OldValue["bank_clearing_date"])
	require.Equal(t, "2024-04-06", last.NewValue["bank_clearing_date"])
}

func TestReconcileRejections(t *testing.T) {
	optional := bankEntry(2, day(time.April, 2), 100, 0)
	optional.IsPosted = false
	store := newMemoryStore(bankEntry(1, day(time.April, 2), 100, 0), optional)
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, 1, day(time.April, 1), 7)
	require.ErrorIs(t, err, ErrClearingBeforeVoucher)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Reconcile(ctx, 2, day(time.April, 3), 7)
	require.ErrorIs(t, err, ErrVoucherNotPosted)

	_, err = svc.Reconcile(ctx, 42, day(time.April, 3), 7)
	require.ErrorIs(t, err, ErrEntryNotFound)

	_, err = svc.Reconcile(ctx, 1, time.Time{}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Reconcile(ctx, 1, day(time.April, 3), 0)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	require.Nil(t, store.entries[1].ClearingDate)
}

func TestReconcileOnlyBankAccounts(t *testing.T) {
	sale := bankEntry(3, day(time.April, 2), 0, 100)
	sale.AccountID = revenueID
	store := newMemoryStore(sale)
	svc := newTestService(store, nil)

	_, err := svc.Reconcile(context.Background(), 3, day(time.April, 3), 7)
	require.ErrorIs(t, err, ErrNotBankAccount)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Nil(t, store.entries[3].ClearingDate)

	_, err = svc.Statement(context.Background(), revenueID, day(time.April, 3))
	require.ErrorIs(t, err, ErrNotBankAccount)
}

func TestUnreconcile(t *testing.T) {
	entry := bankEntry(1, day(time.April, 2), 100, 0)
	entry.ClearingDate = datePtr(day(time.April, 3))
	store := newMemoryStore(entry)
	audit := &recordingAudit{}
	svc := newTestService(store, audit)

	res, err := svc.Unreconcile(context.Background(), 1, 7)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, day(time.April, 3), *res.Previous)
	require.Nil(t, store.entries[1].ClearingDate)

	res, err = svc.Unreconcile(context.Background(), 1, 7)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Len(t, audit.logs, 1)
	require.Nil(t, audit.logs[0].NewValue["bank_clearing_date"])
}
