package accounting

import (
	"context"
	"errors"
)

// DefaultChart lists the ledgers the posting engine resolves by code, plus
// a cash-in-bank ledger for reconciliation.
var DefaultChart = []CreateInput{
	{Code: CodeCash, Name: "Cash", Type: AccountTypeAsset},
	{Code: "BANK", Name: "Bank", Type: AccountTypeAsset},
	{Code: CodeSales, Name: "Sales", Type: AccountTypeRevenue},
	{Code: CodeSalesReturn, Name: "Sales Returns", Type: AccountTypeRevenue},
	{Code: CodePurchase, Name: "Purchases", Type: AccountTypeExpense},
	{Code: CodePurchaseReturn, Name: "Purchase Returns", Type: AccountTypeExpense},
	{Code: CodeOutputCGST, Name: "Output CGST", Type: AccountTypeLiability},
	{Code: CodeOutputSGST, Name: "Output SGST", Type: AccountTypeLiability},
	{Code: CodeOutputIGST, Name: "Output IGST", Type: AccountTypeLiability},
	{Code: CodeInputCGST, Name: "Input CGST", Type: AccountTypeAsset},
	{Code: CodeInputSGST, Name: "Input SGST", Type: AccountTypeAsset},
	{Code: CodeInputIGST, Name: "Input IGST", Type: AccountTypeAsset},
}

// Creator creates accounts.
type Creator interface {
	Create(ctx context.Context, in CreateInput) (Account, error)
}

// SeedChart creates every account in chart that does not exist yet and
// returns the codes it created. Existing codes are left untouched.
func SeedChart(ctx context.Context, c Creator, chart []CreateInput, actorID int64) ([]string, error) {
	var created []string
	for _, in := range chart {
		in.ActorID = actorID
		acct, err := c.Create(ctx, in)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, acct.Code)
	}
	return created, nil
}
