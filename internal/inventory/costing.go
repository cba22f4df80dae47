package inventory

import "github.com/odyssey-erp/voucher-ledger/internal/money"

// CostingPolicy decides an item's purchase rate after an inbound movement.
type CostingPolicy interface {
	NextPurchaseRate(level StockLevel, in Movement) money.Amount
}

// LastCost overwrites the purchase rate with the most recent inbound rate.
type LastCost struct{}

// NextPurchaseRate implements CostingPolicy.
func (LastCost) NextPurchaseRate(_ StockLevel, in Movement) money.Amount {
	return in.Rate
}
