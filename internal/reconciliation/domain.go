// Package reconciliation compares book balances of bank ledgers with the
// balance the bank reports, using per-entry clearing dates.
package reconciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Entry is a bank-account voucher entry as seen by reconciliation.
type Entry struct {
	EntryID       int64        `json:"entry_id"`
	AccountID     int64        `json:"account_id"`
	VoucherID     uuid.UUID    `json:"voucher_id"`
	VoucherNumber string       `json:"voucher_number"`
	VoucherType   string       `json:"voucher_type"`
	VoucherDate   time.Time    `json:"voucher_date"`
	Narration     string       `json:"narration"`
	Debit         money.Amount `json:"debit_minor"`
	Credit        money.Amount `json:"credit_minor"`
	ClearingDate  *time.Time   `json:"bank_clearing_date,omitempty"`
	IsPosted      bool         `json:"is_posted"`
}

// Statement is the bank reconciliation view of one account.
type Statement struct {
	AccountID        int64        `json:"account_id"`
	AsOf             time.Time    `json:"as_of"`
	BookBalance      money.Amount `json:"book_balance_minor"`
	UnclearedDebits  money.Amount `json:"uncleared_debits_minor"`
	UnclearedCredits money.Amount `json:"uncleared_credits_minor"`
	BankBalance      money.Amount `json:"bank_balance_minor"`
	Uncleared        []Entry      `json:"uncleared"`
}

// Result reports the outcome of a clearing-date write.
type Result struct {
	Entry    Entry      `json:"entry"`
	Previous *time.Time `json:"previous_clearing_date,omitempty"`
	Changed  bool       `json:"changed"`
}

var (
	// ErrEntryNotFound indicates a missing voucher entry.
	ErrEntryNotFound = shared.NotFound("reconciliation: voucher entry not found")
	// ErrVoucherNotPosted indicates the entry belongs to an optional voucher.
	ErrVoucherNotPosted = shared.Conflict("reconciliation: voucher is not posted")
	// ErrClearingBeforeVoucher indicates a clearing date before the voucher date.
	ErrClearingBeforeVoucher = shared.Validation("reconciliation: clearing date precedes the voucher date")
	// ErrNotBankAccount indicates an account outside the cash and bank (ASSET) ledgers.
	ErrNotBankAccount = shared.Validation("reconciliation: only cash and bank accounts can be reconciled")
)
