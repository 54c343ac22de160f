package handler

import (
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

// amount is a numeric request field. It accepts a JSON number or a string
// holding one. Null and absence both leave it unset. Values outside the
// coupon.ParseAmount window are invalid.
type amount struct {
	set     bool
	invalid bool
	value   decimal.Decimal
}

func (a *amount) UnmarshalJSON(data []byte) error {
	*a = amount{}

	d := jx.DecodeBytes(data)
	var raw string
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	default:
		a.set, a.invalid = true, true
		return d.Skip()
	}

	a.set = true
	v, err := coupon.ParseAmount(raw)
	if err != nil {
		a.invalid = true
		return nil
	}
	a.value = v
	return nil
}

// ptr returns nil when a is unset.
func (a amount) ptr() *decimal.Decimal {
	if !a.set {
		return nil
	}
	v := a.value
	return &v
}
