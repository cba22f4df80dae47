package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
)

// VoucherEffect describes the stock side of one posted voucher. Line rates
// and amounts are in the document currency.
type VoucherEffect struct {
	VoucherID    uuid.UUID
	Number       string
	Date         time.Time
	Type         MovementType
	Narration    string
	Currency     money.Currency
	Base         money.Currency
	ExchangeRate decimal.Decimal
	Lines        []EffectLine
}

// EffectLine is one stock-bearing voucher item.
type EffectLine struct {
	ItemID      int64
	GodownID    *int64
	Quantity    decimal.Decimal
	Rate        money.Amount
	Amount      money.Amount
	BatchNumber string
}

// DeriveMovements converts voucher lines into base-currency movements.
func DeriveMovements(e VoucherEffect) ([]Movement, error) {
	if e.Type != MovementIn && e.Type != MovementOut {
		return nil, fmt.Errorf("inventory: unsupported movement type %q", e.Type)
	}
	rate := e.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	voucherID := e.VoucherID
	movements := make([]Movement, 0, len(e.Lines))
	for _, line := range e.Lines {
		if line.ItemID <= 0 {
			continue
		}
		if err := ValidateQuantity(line.Quantity); err != nil {
			return nil, err
		}
		baseRate, err := money.Convert(line.Rate, e.Currency, rate, e.Base)
		if err != nil {
			return nil, err
		}
		baseAmount, err := money.Convert(line.Amount, e.Currency, rate, e.Base)
		if err != nil {
			return nil, err
		}
		movements = append(movements, Movement{
			ItemID:      line.ItemID,
			Type:        e.Type,
			Quantity:    line.Quantity,
			Rate:        baseRate,
			Amount:      baseAmount,
			VoucherID:   &voucherID,
			GodownID:    line.GodownID,
			Date:        e.Date,
			ReferenceNo: e.Number,
			Narration:   e.Narration,
			BatchNumber: line.BatchNumber,
		})
	}
	return movements, nil
}

// Processor applies movements to stock balances inside a transaction.
type Processor struct {
	costing       CostingPolicy
	allowNegative bool
}

// NewProcessor builds a Processor. A nil costing policy means LastCost.
func NewProcessor(costing CostingPolicy, allowNegative bool) *Processor {
	if costing == nil {
		costing = LastCost{}
	}
	return &Processor{costing: costing, allowNegative: allowNegative}
}

// Apply records voucher movements and increments item and godown stock. The
// returned slice carries the persisted movement ids.
func (p *Processor) Apply(ctx context.Context, tx TxRepository, movements []Movement) ([]Movement, error) {
	applied := make([]Movement, 0, len(movements))
	for _, m := range movements {
		level, err := tx.AdjustStock(ctx, m.ItemID, m.Delta())
		if err != nil {
			return nil, err
		}
		if !p.allowNegative && level.After.IsNegative() {
			return nil, fmt.Errorf("%w: item %d would drop to %s", ErrNegativeStock, m.ItemID, level.After.String())
		}
		if m.GodownID != nil {
			if err := p.adjustGodown(ctx, tx, *m.GodownID, m.ItemID, m.Delta()); err != nil {
				return nil, err
			}
		}
		if m.Type == MovementIn {
			next := p.costing.NextPurchaseRate(level, m)
			if next != level.PurchaseRate {
				if err := tx.SetPurchaseRate(ctx, m.ItemID, next); err != nil {
					return nil, err
				}
			}
		}
		id, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return nil, err
		}
		m.ID = id
		applied = append(applied, m)
	}
	return applied, nil
}

// applyTransfer moves godown stock only; company-wide stock is unchanged.
func (p *Processor) applyTransfer(ctx context.Context, tx TxRepository, movements []Movement) ([]Movement, error) {
	applied := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if m.GodownID == nil {
			return nil, fmt.Errorf("inventory: transfer movement for item %d without godown", m.ItemID)
		}
		if err := p.adjustGodown(ctx, tx, *m.GodownID, m.ItemID, m.Delta()); err != nil {
			return nil, err
		}
		id, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return nil, err
		}
		m.ID = id
		applied = append(applied, m)
	}
	return applied, nil
}

func (p *Processor) adjustGodown(ctx context.Context, tx TxRepository, godownID, itemID int64, delta decimal.Decimal) error {
	qty, err := tx.AdjustGodownStock(ctx, godownID, itemID, delta)
	if err != nil {
		return err
	}
	if !p.allowNegative && qty.IsNegative() {
		return fmt.Errorf("%w: item %d in godown %d would drop to %s", ErrNegativeStock, itemID, godownID, qty.String())
	}
	return nil
}
