package vouchers

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// VoucherType enumerates the business transactions the engine posts.
type VoucherType string

const (
	TypeSales      VoucherType = "SALES"
	TypePurchase   VoucherType = "PURCHASE"
	TypePayment    VoucherType = "PAYMENT"
	TypeReceipt    VoucherType = "RECEIPT"
	TypeContra     VoucherType = "CONTRA"
	TypeJournal    VoucherType = "JOURNAL"
	TypeCreditNote VoucherType = "CREDIT_NOTE"
	TypeDebitNote  VoucherType = "DEBIT_NOTE"
)

var typePrefixes = map[VoucherType]string{
	TypeSales:      "SAL",
	TypePurchase:   "PUR",
	TypePayment:    "PAY",
	TypeReceipt:    "RCT",
	TypeContra:     "CTR",
	TypeJournal:    "JRN",
	TypeCreditNote: "CRN",
	TypeDebitNote:  "DBN",
}

// Valid reports whether t is a known voucher type.
func (t VoucherType) Valid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// Prefix returns the number prefix for generated voucher numbers.
func (t VoucherType) Prefix() string {
	return typePrefixes[t]
}

// IsLineBased reports whether the caller supplies the entry lines.
func (t VoucherType) IsLineBased() bool {
	return t == TypeContra || t == TypeJournal
}

// MovementType returns the stock direction of the voucher type, if any.
func (t VoucherType) MovementType() (inventory.MovementType, bool) {
	switch t {
	case TypePurchase:
		return inventory.MovementIn, true
	case TypeSales:
		return inventory.MovementOut, true
	}
	return "", false
}

// PDCStatus enumerates post-dated cheque states.
type PDCStatus string

const (
	PDCPending     PDCStatus = "PENDING"
	PDCRegularized PDCStatus = "REGULARIZED"
)

// Side is the ledger side of an entry.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Voucher is the persisted header with its entries and items.
type Voucher struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	Type          VoucherType     `json:"type"`
	Date          time.Time       `json:"date"`
	Narration     string          `json:"narration"`
	TotalDebit    money.Amount    `json:"total_debit_minor"`
	TotalCredit   money.Amount    `json:"total_credit_minor"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	IsPosted      bool            `json:"is_posted"`
	IsPostDated   bool            `json:"is_post_dated"`
	PDCDate       *time.Time      `json:"pdc_date,omitempty"`
	PDCStatus     PDCStatus       `json:"pdc_status,omitempty"`
	RegularizedAt *time.Time      `json:"regularized_at,omitempty"`
	IsOptional    bool            `json:"is_optional"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	Entries       []Entry         `json:"entries"`
	Items         []Item          `json:"items,omitempty"`
}

// Entry is one ledger line. Debit and Credit are base-currency minor units;
// exactly one of them is positive.
type Entry struct {
	ID               int64         `json:"id"`
	LineNo           int           `json:"line_no"`
	AccountID        int64         `json:"account_id"`
	AccountName      string        `json:"account_name"`
	Debit            money.Amount  `json:"debit_minor"`
	Credit           money.Amount  `json:"credit_minor"`
	ForeignAmount    *money.Amount `json:"foreign_amount_minor,omitempty"`
	BankClearingDate *time.Time    `json:"bank_clearing_date,omitempty"`
	Allocations      []Allocation  `json:"allocations,omitempty"`
	Primary          bool          `json:"-"`
}

// Amount returns the non-zero side of the entry.
func (e Entry) Amount() money.Amount {
	if e.Debit > 0 {
		return e.Debit
	}
	return e.Credit
}

// Side returns the ledger side the entry posts to.
func (e Entry) Side() Side {
	if e.Debit > 0 {
		return Debit
	}
	return Credit
}

// Allocation splits an entry amount across a cost center.
type Allocation struct {
	CostCenterID int64        `json:"cost_center_id"`
	Amount       money.Amount `json:"amount_minor"`
}

// Item is a priced voucher line. Money fields are document-currency minor
// units.
type Item struct {
	LineNo          int             `json:"line_no"`
	ProductName     string          `json:"product_name"`
	Description     string          `json:"description,omitempty"`
	HSNSAC          string          `json:"hsn_sac,omitempty"`
	InventoryItemID *int64          `json:"inventory_item_id,omitempty"`
	GodownID        *int64          `json:"godown_id,omitempty"`
	Quantity        decimal.Decimal `json:"qty"`
	Rate            money.Amount    `json:"rate_minor"`
	Taxable         money.Amount    `json:"taxable_minor"`
	CGSTRate        decimal.Decimal `json:"cgst_rate"`
	CGST            money.Amount    `json:"cgst_minor"`
	SGSTRate        decimal.Decimal `json:"sgst_rate"`
	SGST            money.Amount    `json:"sgst_minor"`
	IGSTRate        decimal.Decimal `json:"igst_rate"`
	IGST            money.Amount    `json:"igst_minor"`
	Total           money.Amount    `json:"total_minor"`
	BatchNumber     string          `json:"batch_number,omitempty"`
}

// PostingRequest is the caller's description of one business transaction.
// Decimal amounts are in the document currency.
type PostingRequest struct {
	Type         VoucherType
	Number       string
	Date         time.Time
	Amount       decimal.Decimal
	Currency     string
	ExchangeRate decimal.Decimal
	Counterparty accounting.Ref
	CashAccount  accounting.Ref
	Narration    string
	Items        []ItemInput
	Allocations  []AllocationInput
	Lines        []LineInput
	IsPostDated  bool
	PDCDate      *time.Time
	IsOptional   bool
	ActorID      int64
}

// ItemInput is a priced line as entered.
type ItemInput struct {
	ProductName     string
	Description     string
	HSNSAC          string
	InventoryItemID *int64
	GodownID        *int64
	Quantity        decimal.Decimal
	Rate            decimal.Decimal
	CGSTRate        decimal.Decimal
	SGSTRate        decimal.Decimal
	IGSTRate        decimal.Decimal
	BatchNumber     string
}

// AllocationInput is a cost-center share as entered.
type AllocationInput struct {
	CostCenterID int64
	Amount       decimal.Decimal
}

// LineInput is a caller-supplied entry for CONTRA and JOURNAL vouchers.
type LineInput struct {
	Account     accounting.Ref
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Allocations []AllocationInput
}

// Draft is a fully generated, not yet persisted voucher.
type Draft struct {
	Voucher      Voucher
	StockEffects *inventory.VoucherEffect
}

// DueFilter narrows post-dated cheque listings.
type DueFilter struct {
	AsOf  time.Time
	Limit int
}

const maxNumberLength = 64

// maxLines caps items, lines and allocations per voucher so totals of
// in-range amounts stay inside int64.
const maxLines = 1000

var (
	// ErrUnbalanced indicates debits and credits differ.
	ErrUnbalanced = shared.Validation("vouchers: total debit must equal total credit")
	// ErrInvalidType indicates an unknown voucher type.
	ErrInvalidType = shared.Validation("vouchers: unknown voucher type")
	// ErrInvalidAmount indicates a missing or non-positive amount.
	ErrInvalidAmount = shared.Validation("vouchers: amount must be greater than zero")
	// ErrDuplicateNumber indicates the voucher number already exists.
	ErrDuplicateNumber = shared.Conflict("vouchers: voucher number already exists")
	// ErrVoucherNotFound indicates a missing voucher.
	ErrVoucherNotFound = shared.NotFound("vouchers: voucher not found")
	// ErrSameAccount indicates both legs resolve to the same account.
	ErrSameAccount = shared.Validation("vouchers: counterparty must differ from the offsetting account")
)

// NormalizeNumber trims a caller-supplied voucher number.
func NormalizeNumber(number string) string {
	return strings.TrimSpace(number)
}
