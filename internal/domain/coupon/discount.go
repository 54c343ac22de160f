package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amounts accepted from callers must fit this window. Rounding rescales the
// coefficient to the exponent, so an unbounded exponent costs unbounded work.
const (
	maxAmountExponent = 15
	minAmountExponent = -10
	maxAmountDigits   = 30
	// maxAmountText caps the textual form before it is parsed at all.
	maxAmountText = 64
)

// ErrAmountOutOfRange is returned by ParseAmount for values outside the
// accepted precision window.
var ErrAmountOutOfRange = errors.New("amount out of range")

// WithinPrecision reports whether v fits the exponent and digit window
// accepted for money and count values.
func WithinPrecision(v decimal.Decimal) bool {
	exp := v.Exponent()
	return exp <= maxAmountExponent && exp >= minAmountExponent && v.NumDigits() <= maxAmountDigits
}

// ParseAmount parses a decimal number, rejecting values WithinPrecision
// does not accept.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if len(raw) > maxAmountText {
		return decimal.Decimal{}, ErrAmountOutOfRange
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse amount")
	}
	if !WithinPrecision(v) {
		return decimal.Decimal{}, ErrAmountOutOfRange
	}
	return v, nil
}

// Discount is the outcome of applying a coupon to a basket total.
type Discount struct {
	// Amount is the exact discount, clamped to [0, basketTotal].
	Amount decimal.Decimal
	// NewTotal is basketTotal minus Amount rounded half away from zero to cents.
	NewTotal decimal.Decimal
}

// ComputeDiscount calculates the discount c grants on basketTotal.
//
// Unknown discount types apply nothing rather than failing, so records created
// outside the registry degrade to a no-op. The function has no side effects;
// committing usage is the caller's decision.
func ComputeDiscount(c *Coupon, basketTotal decimal.Decimal) (Discount, error) {
	if c == nil {
		return Discount{}, ErrInvalidInput
	}
	if basketTotal.IsNegative() || !WithinPrecision(basketTotal) {
		return Discount{}, ErrInvalidBasketTotal
	}
	if !WithinPrecision(c.DiscountValue) {
		return Discount{}, ErrInvalidInput
	}

	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = basketTotal.Mul(c.DiscountValue).Div(hundred)
	case DiscountFixed:
		amount = c.DiscountValue
	default:
		amount = decimal.Zero
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	amount = decimal.Min(amount, basketTotal)

	newTotal := basketTotal.Sub(amount).Round(2)
	if newTotal.GreaterThan(basketTotal) {
		// Sub-cent baskets may round up past the original total.
		newTotal = basketTotal.Truncate(2)
	}

	return Discount{Amount: amount, NewTotal: newTotal}, nil
}
