package vouchers

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
)

type accountStore struct {
	byID map[int64]accounting.Account
}

func (s *accountStore) List(context.Context) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out, nil
}

func (s *accountStore) GetByID(_ context.Context, id int64) (accounting.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, nil
}

func (s *accountStore) GetByCode(_ context.Context, code string) (accounting.Account, error) {
	for _, a := range s.byID {
		if a.Code == code {
			return a, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

func (s *accountStore) Create(_ context.Context, in accounting.CreateInput) (accounting.Account, error) {
	a := accounting.Account{ID: int64(len(s.byID) + 1), Code: in.Code, Name: in.Name, Type: in.Type, IsActive: true}
	s.byID[a.ID] = a
	return a, nil
}

const (
	idPurchase int64 = iota + 1
	idSales
	idCash
	idSalesReturn
	idPurchaseReturn
	idOutputCGST
	idOutputSGST
	idOutputIGST
	idInputCGST
	idInputSGST
	idInputIGST
	idParty
	idBank
	idRent
)

func defaultAccounts(skip ...string) *accountStore {
	all := []accounting.Account{
		{ID: idPurchase, Code: accounting.CodePurchase, Name: "Purchase", Type: accounting.AccountTypeExpense},
		{ID: idSales, Code: accounting.CodeSales, Name: "Sales", Type: accounting.AccountTypeRevenue},
		{ID: idCash, Code: accounting.CodeCash, Name: "Cash", Type: accounting.AccountTypeAsset},
		{ID: idSalesReturn, Code: accounting.CodeSalesReturn, Name: "Sales Return", Type: accounting.AccountTypeRevenue},
		{ID: idPurchaseReturn, Code: accounting.CodePurchaseReturn, Name: "Purchase Return", Type: accounting.AccountTypeExpense},
		{ID: idOutputCGST, Code: accounting.CodeOutputCGST, Name: "Output CGST", Type: accounting.AccountTypeLiability},
		{ID: idOutputSGST, Code: accounting.CodeOutputSGST, Name: "Output SGST", Type: accounting.AccountTypeLiability},
		{ID: idOutputIGST, Code: accounting.CodeOutputIGST, Name: "Output IGST", Type: accounting.AccountTypeLiability},
		{ID: idInputCGST, Code: accounting.CodeInputCGST, Name: "Input CGST", Type: accounting.AccountTypeAsset},
		{ID: idInputSGST, Code: accounting.CodeInputSGST, Name: "Input SGST", Type: accounting.AccountTypeAsset},
		{ID: idInputIGST, Code: accounting.CodeInputIGST, Name: "Input IGST", Type: accounting.AccountTypeAsset},
		{ID: idParty, Code: "ACME", Name: "Acme Traders", Type: accounting.AccountTypeLiability},
		{ID: idBank, Code: "HDFC", Name: "HDFC Bank", Type: accounting.AccountTypeAsset},
		{ID: idRent, Code: "RENT", Name: "Rent", Type: accounting.AccountTypeExpense},
	}
	store := &accountStore{byID: make(map[int64]accounting.Account)}
	for _, a := range all {
		skipped := false
		for _, code := range skip {
			if strings.EqualFold(code, a.Code) {
				skipped = true
			}
		}
		if !skipped {
			a.IsActive = true
			store.byID[a.ID] = a
		}
	}
	return store
}

var (
	inr = money.MustCurrency("INR")
	usd = money.MustCurrency("USD")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, skip ...string) *Engine {
	t.Helper()
	dir := accounting.NewDirectory(defaultAccounts(skip...), nil, nil, discardLogger())
	return NewEngine(dir, inr)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func party() accounting.Ref {
	return accounting.Ref{ID: idParty}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func entryFor(v Voucher, accountID int64) (Entry, bool) {
	for _, e := range v.Entries {
		if e.AccountID == accountID {
			return e, true
		}
	}
	return Entry{}, false
}
