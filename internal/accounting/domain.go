package accounting

import (
	"strings"
	"time"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Stable codes of the default ledgers the posting engine looks up.
const (
	CodePurchase       = "PURCHASE"
	CodeSales          = "SALES"
	CodeCash           = "CASH"
	CodeSalesReturn    = "SALES_RETURN"
	CodePurchaseReturn = "PURCHASE_RETURN"
	CodeOutputCGST     = "OUTPUT_CGST"
	CodeOutputSGST     = "OUTPUT_SGST"
	CodeOutputIGST     = "OUTPUT_IGST"
	CodeInputCGST      = "INPUT_CGST"
	CodeInputSGST      = "INPUT_SGST"
	CodeInputIGST      = "INPUT_IGST"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Ref points at an account either by id or by code.
type Ref struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
}

// IsZero reports whether the reference names nothing.
func (r Ref) IsZero() bool {
	return r.ID == 0 && strings.TrimSpace(r.Code) == ""
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Code    string
	Name    string
	Type    AccountType
	ActorID int64
}

// Validate checks the input before touching storage.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return shared.Validation("accounting: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("accounting: name required")
	}
	if !in.Type.Valid() {
		return shared.Validationf("accounting: invalid account type %q", in.Type)
	}
	return nil
}

var (
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = shared.NotFound("accounting: account not found")
	// ErrUnknownAccount indicates a request referenced a missing or inactive account.
	ErrUnknownAccount = shared.Validation("accounting: referenced account does not exist or is inactive")
	// ErrDefaultAccountMissing indicates a required default ledger is not configured.
	ErrDefaultAccountMissing = shared.Configuration("accounting: default account not configured")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = shared.Conflict("accounting: account code already exists")
)

// NormalizeCode upper-cases and trims an account code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
