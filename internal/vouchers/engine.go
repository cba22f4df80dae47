package vouchers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/inventory"
	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// AccountDirectory resolves the accounts a voucher posts to.
type AccountDirectory interface {
	Default(ctx context.Context, code string) (accounting.Account, error)
	Resolve(ctx context.Context, ref accounting.Ref) (accounting.Account, error)
}

// Engine turns a PostingRequest into a balanced Draft. It reads accounts
// through the directory and never writes.
type Engine struct {
	accounts AccountDirectory
	base     money.Currency
	newID    func() uuid.UUID
}

// NewEngine constructs an Engine for the given base currency.
func NewEngine(accounts AccountDirectory, base money.Currency) *Engine {
	return &Engine{accounts: accounts, base: base, newID: uuid.New}
}

// Base returns the engine's base currency.
func (e *Engine) Base() money.Currency {
	return e.base
}

var hundred = decimal.NewFromInt(100)

type taxCodes struct {
	cgst, sgst, igst string
}

var (
	outputTax = taxCodes{cgst: accounting.CodeOutputCGST, sgst: accounting.CodeOutputSGST, igst: accounting.CodeOutputIGST}
	inputTax  = taxCodes{cgst: accounting.CodeInputCGST, sgst: accounting.CodeInputSGST, igst: accounting.CodeInputIGST}
)

// legPlan describes the two main legs of a non-journal voucher.
type legPlan struct {
	primary        accounting.Account
	primarySide    Side
	counter        accounting.Account
	partyIsPrimary bool
	tax            *taxCodes
}

// itemTotals sums priced lines in document currency.
type itemTotals struct {
	taxable, cgst, sgst, igst, total money.Amount
}

// Generate builds the complete voucher for req without persisting it.
func (e *Engine) Generate(ctx context.Context, req PostingRequest) (Draft, error) {
	if err := validateHeader(req); err != nil {
		return Draft{}, err
	}
	doc, rate, err := e.documentCurrency(req)
	if err != nil {
		return Draft{}, err
	}

	v := Voucher{
		ID:           e.newID(),
		Number:       NormalizeNumber(req.Number),
		Type:         req.Type,
		Date:         dateOnly(req.Date),
		Narration:    strings.TrimSpace(req.Narration),
		Currency:     doc.Code,
		ExchangeRate: rate,
		IsPosted:     !req.IsOptional,
		IsOptional:   req.IsOptional,
		IsPostDated:  req.IsPostDated,
		CreatedBy:    req.ActorID,
	}
	if req.IsPostDated {
		pdc := dateOnly(*req.PDCDate)
		v.PDCDate = &pdc
		v.PDCStatus = PDCPending
	}

	var gross money.Amount
	if req.Type.IsLineBased() {
		v.Entries, gross, err = e.journalEntries(ctx, req, doc, rate)
	} else {
		v.Items, v.Entries, gross, err = e.partyEntries(ctx, req, doc, rate)
	}
	if err != nil {
		return Draft{}, err
	}

	for i := range v.Entries {
		v.Entries[i].LineNo = i + 1
	}
	if v.TotalDebit, v.TotalCredit, err = CheckBalanced(v.Entries); err != nil {
		return Draft{}, err
	}
	if err := ValidateAllocations(v.Entries); err != nil {
		return Draft{}, err
	}
	if doc != e.base {
		v.Narration = strings.TrimSpace(fmt.Sprintf("%s [%s %s @ %s]", v.Narration, doc.Code, gross.Format(doc), rate.String()))
	}

	draft := Draft{Voucher: v}
	if kind, ok := req.Type.MovementType(); ok && v.IsPosted {
		draft.StockEffects = stockEffects(v, kind, doc, e.base)
	}
	return draft, nil
}

// CheckBalanced verifies every entry posts to exactly one side and that the
// debit and credit totals agree.
func CheckBalanced(entries []Entry) (money.Amount, money.Amount, error) {
	if len(entries) < 2 {
		return 0, 0, fmt.Errorf("%w: at least two entries required", ErrUnbalanced)
	}
	var debit, credit money.Amount
	for _, entry := range entries {
		if entry.Debit < 0 || entry.Credit < 0 || (entry.Debit > 0) == (entry.Credit > 0) {
			return 0, 0, shared.Validationf("vouchers: line %d must carry exactly one positive side", entry.LineNo)
		}
		debit += entry.Debit
		credit += entry.Credit
	}
	if debit != credit {
		return debit, credit, fmt.Errorf("%w: debit %d credit %d", ErrUnbalanced, debit, credit)
	}
	return debit, credit, nil
}

func validateHeader(req PostingRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if req.Date.IsZero() {
		return shared.Validation("vouchers: date is required")
	}
	if len(NormalizeNumber(req.Number)) > maxNumberLength {
		return shared.Validationf("vouchers: number exceeds %d characters", maxNumberLength)
	}
	if req.ActorID <= 0 {
		return shared.ErrUnauthenticated
	}
	if len(req.Items) > maxLines || len(req.Lines) > maxLines || len(req.Allocations) > maxLines {
		return shared.Validationf("vouchers: at most %d items, lines or allocations", maxLines)
	}
	for i, line := range req.Lines {
		if len(line.Allocations) > maxLines {
			return shared.Validationf("vouchers: line %d exceeds %d allocations", i+1, maxLines)
		}
	}
	if err := validatePDC(req); err != nil {
		return err
	}
	if req.Type.IsLineBased() {
		if len(req.Items) > 0 || len(req.Allocations) > 0 {
			return shared.Validationf("vouchers: %s takes allocations per line and no items", req.Type)
		}
		if !req.Counterparty.IsZero() {
			return shared.Validationf("vouchers: %s takes accounts per line", req.Type)
		}
		return nil
	}
	if len(req.Lines) > 0 {
		return shared.Validationf("vouchers: %s does not take explicit lines", req.Type)
	}
	if req.Counterparty.IsZero() {
		return shared.Validation("vouchers: counterparty account is required")
	}
	if len(req.Items) > 0 && req.Type != TypeSales && req.Type != TypePurchase {
		return shared.Validationf("vouchers: %s does not take items", req.Type)
	}
	if !req.CashAccount.IsZero() && req.Type != TypePayment && req.Type != TypeReceipt {
		return shared.Validationf("vouchers: %s does not take a cash account", req.Type)
	}
	return nil
}

func (e *Engine) documentCurrency(req PostingRequest) (money.Currency, decimal.Decimal, error) {
	doc := e.base
	if code := strings.TrimSpace(req.Currency); code != "" {
		var err error
		if doc, err = money.LookupCurrency(code); err != nil {
			return money.Currency{}, decimal.Decimal{}, err
		}
	}
	rate := req.ExchangeRate
	if doc == e.base {
		if rate.IsZero() {
			return doc, decimal.NewFromInt(1), nil
		}
		if !rate.Equal(decimal.NewFromInt(1)) {
			return money.Currency{}, decimal.Decimal{}, shared.Validationf("vouchers: exchange rate must be 1 for base currency %s", e.base.Code)
		}
		return doc, decimal.NewFromInt(1), nil
	}
	if err := money.ValidateRate(rate); err != nil {
		return money.Currency{}, decimal.Decimal{}, err
	}
	return doc, rate, nil
}

func (e *Engine) plan(ctx context.Context, req PostingRequest) (legPlan, error) {
	party, err := e.accounts.Resolve(ctx, req.Counterparty)
	if err != nil {
		return legPlan{}, err
	}
	var p legPlan
	switch req.Type {
	case TypePurchase:
		p = legPlan{primarySide: Debit, counter: party, tax: &inputTax}
		p.primary, err = e.accounts.Default(ctx, accounting.CodePurchase)
	case TypeSales:
		p = legPlan{primarySide: Credit, counter: party, tax: &outputTax}
		p.primary, err = e.accounts.Default(ctx, accounting.CodeSales)
	case TypePayment, TypeReceipt:
		p = legPlan{primary: party, primarySide: Debit, partyIsPrimary: true}
		if req.Type == TypeReceipt {
			p.primarySide = Credit
		}
		if req.CashAccount.IsZero() {
			p.counter, err = e.accounts.Default(ctx, accounting.CodeCash)
		} else {
			p.counter, err = e.accounts.Resolve(ctx, req.CashAccount)
		}
	case TypeCreditNote:
		p = legPlan{primarySide: Debit, counter: party}
		p.primary, err = e.accounts.Default(ctx, accounting.CodeSalesReturn)
	case TypeDebitNote:
		p = legPlan{primarySide: Credit, counter: party}
		p.primary, err = e.accounts.Default(ctx, accounting.CodePurchaseReturn)
	default:
		return legPlan{}, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if err != nil {
		return legPlan{}, err
	}
	if p.primary.ID == p.counter.ID {
		return legPlan{}, fmt.Errorf("%w: %s", ErrSameAccount, p.primary.Code)
	}
	return p, nil
}

func (e *Engine) partyEntries(ctx context.Context, req PostingRequest, doc money.Currency, rate decimal.Decimal) ([]Item, []Entry, money.Amount, error) {
	items, totals, err := buildItems(req.Items, doc)
	if err != nil {
		return nil, nil, 0, err
	}
	gross, err := grossAmount(req.Amount, items, totals, doc)
	if err != nil {
		return nil, nil, 0, err
	}
	p, err := e.plan(ctx, req)
	if err != nil {
		return nil, nil, 0, err
	}

	grossBase, err := money.Convert(gross, doc, rate, e.base)
	if err != nil {
		return nil, nil, 0, err
	}
	if grossBase <= 0 {
		return nil, nil, 0, fmt.Errorf("%w: %s %s converts to zero", ErrInvalidAmount, gross.Format(doc), doc.Code)
	}

	var taxes []Entry
	primaryDoc := gross
	if p.tax != nil && len(items) > 0 {
		taxes, err = e.taxEntries(ctx, *p.tax, p.primarySide, totals, doc, rate)
		if err != nil {
			return nil, nil, 0, err
		}
		primaryDoc = gross - totals.cgst - totals.sgst - totals.igst
	}
	// the primary leg takes the residual so rounding never unbalances
	primaryBase := grossBase
	for _, t := range taxes {
		primaryBase -= t.Amount()
	}
	if primaryBase <= 0 || primaryDoc <= 0 {
		return nil, nil, 0, shared.Validation("vouchers: taxes exceed the voucher amount")
	}
	primary := newEntry(p.primary, p.primarySide, primaryBase)
	primary.Primary = true
	counter := newEntry(p.counter, opposite(p.primarySide), grossBase)

	if doc != e.base {
		foreign := gross
		if p.partyIsPrimary {
			primary.ForeignAmount = &foreign
		} else {
			counter.ForeignAmount = &foreign
		}
	}
	if primary.Allocations, err = convertAllocations(req.Allocations, doc, rate, e.base, primaryDoc, primaryBase); err != nil {
		return nil, nil, 0, err
	}

	var entries []Entry
	if p.primarySide == Debit {
		entries = append(entries, primary)
		entries = append(entries, taxes...)
		entries = append(entries, counter)
	} else {
		entries = append(entries, counter, primary)
		entries = append(entries, taxes...)
	}
	return items, entries, gross, nil
}

func (e *Engine) taxEntries(ctx context.Context, codes taxCodes, side Side, totals itemTotals, doc money.Currency, rate decimal.Decimal) ([]Entry, error) {
	legs := []struct {
		code   string
		amount money.Amount
	}{
		{codes.cgst, totals.cgst},
		{codes.sgst, totals.sgst},
		{codes.igst, totals.igst},
	}
	var entries []Entry
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		acct, err := e.accounts.Default(ctx, leg.code)
		if err != nil {
			return nil, err
		}
		base, err := money.Convert(leg.amount, doc, rate, e.base)
		if err != nil {
			return nil, err
		}
		if base == 0 {
			continue
		}
		entries = append(entries, newEntry(acct, side, base))
	}
	return entries, nil
}

func (e *Engine) journalEntries(ctx context.Context, req PostingRequest, doc money.Currency, rate decimal.Decimal) ([]Entry, money.Amount, error) {
	if len(req.Lines) < 2 {
		return nil, 0, shared.Validationf("vouchers: %s requires at least two lines", req.Type)
	}
	type docLine struct {
		acct   accounting.Account
		side   Side
		amount money.Amount
	}
	lines := make([]docLine, len(req.Lines))
	var docDebit, docCredit money.Amount
	lastCredit := -1
	for i, in := range req.Lines {
		if in.Debit.IsNegative() || in.Credit.IsNegative() || in.Debit.IsPositive() == in.Credit.IsPositive() {
			return nil, 0, shared.Validationf("vouchers: line %d must carry exactly one positive side", i+1)
		}
		acct, err := e.accounts.Resolve(ctx, in.Account)
		if err != nil {
			return nil, 0, err
		}
		if req.Type == TypeContra && acct.Type != accounting.AccountTypeAsset {
			return nil, 0, shared.Validationf("vouchers: contra line %d must use a cash or bank account", i+1)
		}
		line := docLine{acct: acct, side: Debit}
		value := in.Debit
		if in.Credit.IsPositive() {
			line.side, value = Credit, in.Credit
		}
		if line.amount, err = money.ExactFromDecimal(value, doc); err != nil {
			return nil, 0, err
		}
		if line.side == Debit {
			docDebit += line.amount
		} else {
			docCredit += line.amount
			lastCredit = i
		}
		lines[i] = line
	}
	if docDebit != docCredit {
		return nil, 0, fmt.Errorf("%w: debit %s credit %s %s", ErrUnbalanced, docDebit.Format(doc), docCredit.Format(doc), doc.Code)
	}

	entries := make([]Entry, len(lines))
	var baseDebit, baseCredit money.Amount
	for i, line := range lines {
		base, err := money.Convert(line.amount, doc, rate, e.base)
		if err != nil {
			return nil, 0, err
		}
		if line.side == Debit {
			baseDebit += base
		} else if i != lastCredit {
			baseCredit += base
		}
		entries[i] = newEntry(line.acct, line.side, base)
		entries[i].Primary = true
		if doc != e.base {
			foreign := line.amount
			entries[i].ForeignAmount = &foreign
		}
	}
	// conversion rounding lands on the last credit line
	entries[lastCredit].Credit = baseDebit - baseCredit
	for i, line := range lines {
		if entries[i].Amount() <= 0 {
			return nil, 0, fmt.Errorf("%w: line %d converts to zero", ErrInvalidAmount, i+1)
		}
		allocs, err := convertAllocations(req.Lines[i].Allocations, doc, rate, e.base, line.amount, entries[i].Amount())
		if err != nil {
			return nil, 0, err
		}
		entries[i].Allocations = allocs
	}
	return entries, docDebit, nil
}

func buildItems(inputs []ItemInput, doc money.Currency) ([]Item, itemTotals, error) {
	var totals itemTotals
	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.ProductName) == "" {
			return nil, itemTotals{}, shared.Validationf("vouchers: item %d requires a product name", i+1)
		}
		if err := inventory.ValidateQuantity(in.Quantity); err != nil {
			return nil, itemTotals{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		if in.Rate.IsNegative() {
			return nil, itemTotals{}, shared.Validationf("vouchers: item %d rate must not be negative", i+1)
		}
		for _, r := range []decimal.Decimal{in.CGSTRate, in.SGSTRate, in.IGSTRate} {
			if r.IsNegative() || r.GreaterThan(hundred) {
				return nil, itemTotals{}, shared.Validationf("vouchers: item %d tax rate must be between 0 and 100", i+1)
			}
		}
		if in.IGSTRate.IsPositive() && (in.CGSTRate.IsPositive() || in.SGSTRate.IsPositive()) {
			return nil, itemTotals{}, shared.Validationf("vouchers: item %d cannot carry IGST together with CGST/SGST", i+1)
		}
		unitRate, err := money.FromDecimal(in.Rate, doc)
		if err != nil {
			return nil, itemTotals{}, fmt.Errorf("item %d rate: %w", i+1, err)
		}
		taxable, err := money.FromDecimal(in.Quantity.Mul(in.Rate), doc)
		if err != nil {
			return nil, itemTotals{}, fmt.Errorf("item %d value: %w", i+1, err)
		}
		item := Item{
			LineNo:          i + 1,
			ProductName:     strings.TrimSpace(in.ProductName),
			Description:     in.Description,
			HSNSAC:          in.HSNSAC,
			InventoryItemID: in.InventoryItemID,
			GodownID:        in.GodownID,
			Quantity:        in.Quantity,
			Rate:            unitRate,
			Taxable:         taxable,
			CGSTRate:        in.CGSTRate,
			SGSTRate:        in.SGSTRate,
			IGSTRate:        in.IGSTRate,
			BatchNumber:     in.BatchNumber,
		}
		if item.CGST, err = taxOn(item.Taxable, in.CGSTRate, doc); err != nil {
			return nil, itemTotals{}, err
		}
		if item.SGST, err = taxOn(item.Taxable, in.SGSTRate, doc); err != nil {
			return nil, itemTotals{}, err
		}
		if item.IGST, err = taxOn(item.Taxable, in.IGSTRate, doc); err != nil {
			return nil, itemTotals{}, err
		}
		item.Total = item.Taxable + item.CGST + item.SGST + item.IGST
		if item.Total > money.MaxAmount {
			return nil, itemTotals{}, fmt.Errorf("%w: item %d total", money.ErrAmountOutOfRange, i+1)
		}

		totals.taxable += item.Taxable
		totals.cgst += item.CGST
		totals.sgst += item.SGST
		totals.igst += item.IGST
		totals.total += item.Total
		items = append(items, item)
	}
	return items, totals, nil
}

func taxOn(taxable money.Amount, rate decimal.Decimal, c money.Currency) (money.Amount, error) {
	if rate.IsZero() {
		return 0, nil
	}
	return money.FromDecimal(taxable.Decimal(c).Mul(rate).Div(hundred), c)
}

// grossAmount returns the entered amount in document minor units. With items
// it must equal their grand total; a zero amount takes the total.
func grossAmount(entered decimal.Decimal, items []Item, totals itemTotals, doc money.Currency) (money.Amount, error) {
	if entered.IsNegative() {
		return 0, ErrInvalidAmount
	}
	if len(items) > 0 && entered.IsZero() {
		entered = totals.total.Decimal(doc)
	}
	gross, err := money.ExactFromDecimal(entered, doc)
	if err != nil {
		return 0, err
	}
	if gross <= 0 {
		return 0, ErrInvalidAmount
	}
	if len(items) > 0 && gross != totals.total {
		return 0, shared.Validationf("vouchers: amount %s does not match item total %s", gross.Format(doc), totals.total.Format(doc))
	}
	return gross, nil
}

func stockEffects(v Voucher, kind inventory.MovementType, doc, base money.Currency) *inventory.VoucherEffect {
	var lines []inventory.EffectLine
	for _, item := range v.Items {
		if item.InventoryItemID == nil {
			continue
		}
		lines = append(lines, inventory.EffectLine{
			ItemID:      *item.InventoryItemID,
			GodownID:    item.GodownID,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Amount:      item.Taxable,
			BatchNumber: item.BatchNumber,
		})
	}
	if len(lines) == 0 {
		return nil
	}
	return &inventory.VoucherEffect{
		VoucherID:    v.ID,
		Number:       v.Number,
		Date:         v.Date,
		Type:         kind,
		Narration:    v.Narration,
		Currency:     doc,
		Base:         base,
		ExchangeRate: v.ExchangeRate,
		Lines:        lines,
	}
}

func newEntry(acct accounting.Account, side Side, amount money.Amount) Entry {
	entry := Entry{AccountID: acct.ID, AccountName: acct.Name}
	if side == Debit {
		entry.Debit = amount
	} else {
		entry.Credit = amount
	}
	return entry
}

func opposite(side Side) Side {
	if side == Debit {
		return Credit
	}
	return Debit
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
