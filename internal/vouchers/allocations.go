package vouchers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

var (
	// ErrAllocationMismatch indicates allocations do not sum to the entry amount.
	ErrAllocationMismatch = shared.Validation("vouchers: cost-center allocations must sum exactly to the entry amount")
	// ErrAllocationNotPrimary indicates allocations on a non-primary entry.
	ErrAllocationNotPrimary = shared.Validation("vouchers: cost-center allocations attach only to the primary entry")
	// ErrInvalidAllocation indicates a missing cost center or non-positive share.
	ErrInvalidAllocation = shared.Validation("vouchers: allocation requires a cost center and a positive amount")
	// ErrDuplicateCostCenter indicates the same cost center twice on one entry.
	ErrDuplicateCostCenter = shared.Validation("vouchers: cost center allocated twice on the same entry")
)

// ValidateAllocations checks the allocations of every entry against the
// entry's base-currency amount.
func ValidateAllocations(entries []Entry) error {
	for _, entry := range entries {
		if len(entry.Allocations) == 0 {
			continue
		}
		if !entry.Primary {
			return fmt.Errorf("%w: line %d", ErrAllocationNotPrimary, entry.LineNo)
		}
		seen := make(map[int64]struct{}, len(entry.Allocations))
		var sum money.Amount
		for _, alloc := range entry.Allocations {
			if alloc.CostCenterID <= 0 || alloc.Amount <= 0 {
				return fmt.Errorf("%w: line %d", ErrInvalidAllocation, entry.LineNo)
			}
			if _, dup := seen[alloc.CostCenterID]; dup {
				return fmt.Errorf("%w: cost center %d on line %d", ErrDuplicateCostCenter, alloc.CostCenterID, entry.LineNo)
			}
			seen[alloc.CostCenterID] = struct{}{}
			sum += alloc.Amount
		}
		if sum != entry.Amount() {
			return fmt.Errorf("%w: line %d allocates %d of %d", ErrAllocationMismatch, entry.LineNo, sum, entry.Amount())
		}
	}
	return nil
}

// convertAllocations turns document-currency shares into base-currency
// allocations for an entry worth docTarget (document) and baseTarget (base).
// The last share absorbs conversion rounding.
func convertAllocations(inputs []AllocationInput, doc money.Currency, rate decimal.Decimal, base money.Currency, docTarget, baseTarget money.Amount) ([]Allocation, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	shares := make([]money.Amount, len(inputs))
	var docSum money.Amount
	for i, in := range inputs {
		if in.CostCenterID <= 0 || !in.Amount.IsPositive() {
			return nil, ErrInvalidAllocation
		}
		amount, err := money.ExactFromDecimal(in.Amount, doc)
		if err != nil {
			return nil, err
		}
		shares[i] = amount
		docSum += amount
	}
	if docSum != docTarget {
		return nil, fmt.Errorf("%w: allocated %s of %s %s", ErrAllocationMismatch, docSum.Format(doc), docTarget.Format(doc), doc.Code)
	}
	out := make([]Allocation, len(inputs))
	var baseSum money.Amount
	for i, in := range inputs {
		amount, err := money.Convert(shares[i], doc, rate, base)
		if err != nil {
			return nil, err
		}
		if i == len(inputs)-1 {
			amount = baseTarget - baseSum
		}
		out[i] = Allocation{CostCenterID: in.CostCenterID, Amount: amount}
		baseSum += amount
	}
	return out, nil
}
