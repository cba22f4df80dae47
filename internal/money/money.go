// Package money holds fixed-point monetary amounts. Amounts are integer minor
// units of a currency; decimals appear only at the request/response boundary
// and in exchange-rate arithmetic.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// RateScale is the number of fractional digits stored for exchange rates.
const RateScale = 6

// Amount is a monetary value in minor units (paise, cents).
type Amount int64

// MaxAmount bounds the magnitude of a single amount. It is the largest
// integer a float64 holds exactly.
const MaxAmount Amount = 1<<53 - 1

// Currency describes an ISO-4217 currency and its minor-unit scale.
type Currency struct {
	Code  string
	Scale int32
}

// ErrUnknownCurrency indicates an unsupported ISO-4217 code.
var ErrUnknownCurrency = shared.Validation("money: unknown currency")

// ErrPrecision indicates a value carries more fractional digits than allowed.
var ErrPrecision = shared.Validation("money: too many fractional digits")

// ErrAmountOutOfRange indicates a value whose minor units exceed MaxAmount.
var ErrAmountOutOfRange = shared.Validation("money: amount out of range")

var (
	// exchange rates are stored as NUMERIC(18,6)
	maxRate      = decimal.New(1, 18-RateScale)
	maxMagnitude = decimal.NewFromInt(int64(MaxAmount))
)

// LookupCurrency resolves an ISO-4217 code.
func LookupCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{Code: unit.String(), Scale: int32(scale)}, nil
}

// MustCurrency is LookupCurrency for compile-time constants.
func MustCurrency(code string) Currency {
	c, err := LookupCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// FromDecimal rounds d half away from zero to the currency scale.
func FromDecimal(d decimal.Decimal, c Currency) (Amount, error) {
	shifted := d.Shift(c.Scale).Round(0)
	if shifted.Abs().GreaterThan(maxMagnitude) {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountOutOfRange, d.String(), c.Code)
	}
	return Amount(shifted.IntPart()), nil
}

// ExactFromDecimal converts d without rounding; it fails when d has more
// fractional digits than the currency allows.
func ExactFromDecimal(d decimal.Decimal, c Currency) (Amount, error) {
	shifted := d.Shift(c.Scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals for %s", ErrPrecision, d.String(), c.Scale, c.Code)
	}
	if shifted.Abs().GreaterThan(maxMagnitude) {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountOutOfRange, d.String(), c.Code)
	}
	return Amount(shifted.IntPart()), nil
}

// Parse reads a decimal string and converts it exactly.
func Parse(s string, c Currency) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, shared.Validationf("money: invalid amount %q", s)
	}
	return ExactFromDecimal(d, c)
}

// Decimal converts the amount back to a decimal in major units.
func (a Amount) Decimal(c Currency) decimal.Decimal {
	return decimal.New(int64(a), -c.Scale)
}

// Format renders the amount with exactly the currency's fractional digits.
func (a Amount) Format(c Currency) string {
	return a.Decimal(c).StringFixed(c.Scale)
}

// Convert multiplies a by rate and rounds into the target currency.
func Convert(a Amount, from Currency, rate decimal.Decimal, to Currency) (Amount, error) {
	return FromDecimal(a.Decimal(from).Mul(rate), to)
}

// MulQuantity values qty units at a per-unit amount, rounding half away from
// zero.
func MulQuantity(a Amount, qty decimal.Decimal) (Amount, error) {
	v := decimal.NewFromInt(int64(a)).Mul(qty).Round(0)
	if v.Abs().GreaterThan(maxMagnitude) {
		return 0, fmt.Errorf("%w: %d x %s", ErrAmountOutOfRange, a, qty.String())
	}
	return Amount(v.IntPart()), nil
}

// Sum adds amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// ValidateRate checks an exchange rate is positive and storable.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return shared.Validation("money: exchange rate must be greater than zero")
	}
	if !rate.LessThan(maxRate) {
		return shared.Validationf("money: exchange rate %s out of range", rate.String())
	}
	if !rate.Equal(rate.Truncate(RateScale)) {
		return fmt.Errorf("%w: exchange rate %s exceeds %d decimals", ErrPrecision, rate.String(), RateScale)
	}
	return nil
}
