package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// MovementType enumerates stock movement directions.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "OUT"
)

// Sign returns +1 for IN and -1 for OUT.
func (t MovementType) Sign() int64 {
	if t == MovementOut {
		return -1
	}
	return 1
}

// Movement is an append-only record of a quantity change. Rate and Amount
// are base-currency minor units.
type Movement struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"item_id"`
	Type        MovementType    `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        money.Amount    `json:"rate_minor"`
	Amount      money.Amount    `json:"amount_minor"`
	VoucherID   *uuid.UUID      `json:"voucher_id,omitempty"`
	TransferID  *uuid.UUID      `json:"transfer_id,omitempty"`
	GodownID    *int64          `json:"godown_id,omitempty"`
	Date        time.Time       `json:"date"`
	ReferenceNo string          `json:"reference_no"`
	Narration   string          `json:"narration"`
	BatchNumber string          `json:"batch_number,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Delta is the signed quantity change applied to stock.
func (m Movement) Delta() decimal.Decimal {
	if m.Type == MovementOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Item is the quantity-on-hand and valuation record of a stock item.
type Item struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	PurchaseRate money.Amount    `json:"purchase_rate_minor"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StockLevel reports an item's quantity around one atomic adjustment.
type StockLevel struct {
	ItemID       int64
	Before       decimal.Decimal
	After        decimal.Decimal
	PurchaseRate money.Amount
}

// TransferStatus enumerates stock transfer states.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
)

// Transfer moves quantity between two godowns without touching the ledger.
type Transfer struct {
	ID           uuid.UUID      `json:"id"`
	Number       string         `json:"number"`
	Date         time.Time      `json:"date"`
	FromGodownID int64          `json:"from_godown_id"`
	ToGodownID   int64          `json:"to_godown_id"`
	Status       TransferStatus `json:"status"`
	Narration    string         `json:"narration"`
	CreatedBy    int64          `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Items        []TransferItem `json:"items"`
	Movements    []Movement     `json:"movements,omitempty"`
}

// TransferItem is one line of a transfer.
type TransferItem struct {
	LineNo      int             `json:"line_no"`
	ItemID      int64           `json:"item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	BatchNumber string          `json:"batch_number,omitempty"`
}

// TransferInput carries a stock transfer request.
type TransferInput struct {
	Number       string
	Date         time.Time
	FromGodownID int64
	ToGodownID   int64
	Status       TransferStatus
	Narration    string
	Items        []TransferItem
	ActorID      int64
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = shared.Validation("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = shared.Validation("inventory: quantity must be greater than zero")
	// ErrItemNotFound indicates a referenced inventory item does not exist.
	ErrItemNotFound = shared.NotFound("inventory: item not found")
	// ErrUnknownItem indicates a request referenced a missing inventory item.
	ErrUnknownItem = shared.Validation("inventory: referenced item or godown does not exist")
	// ErrSameGodown indicates a transfer with identical source and destination.
	ErrSameGodown = shared.Validation("inventory: source and destination godown must differ")
	// ErrDuplicateTransferNumber indicates the transfer number is taken.
	ErrDuplicateTransferNumber = shared.Conflict("inventory: transfer number already exists")
	// ErrTransferNotFound indicates a missing transfer.
	ErrTransferNotFound = shared.NotFound("inventory: stock transfer not found")
	// ErrTransferAlreadyCompleted indicates a repeated completion.
	ErrTransferAlreadyCompleted = shared.Conflict("inventory: stock transfer already completed")
	// ErrQuantityOutOfRange indicates a quantity NUMERIC(18,4) cannot hold.
	ErrQuantityOutOfRange = shared.Validation("inventory: quantity out of range")
)

const quantityScale = 4

var maxQuantity = decimal.New(1, 18-quantityScale)

// ValidateQuantity checks q is positive and storable without rounding.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return ErrInvalidQuantity
	}
	if !q.LessThan(maxQuantity) || !q.Equal(q.Truncate(quantityScale)) {
		return fmt.Errorf("%w: %s", ErrQuantityOutOfRange, q.String())
	}
	return nil
}
