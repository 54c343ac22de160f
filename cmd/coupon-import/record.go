package main

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

// parseRecord decodes one JSON line into registry parameters. Numbers may be
// given as JSON numbers or numeric strings. Unknown keys are ignored.
func parseRecord(line []byte) (coupon.CreateParams, error) {
	var p coupon.CreateParams
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			p.Code, err = optString(d)
		case "discountType":
			p.DiscountType, err = optString(d)
		case "expiryDate":
			p.ExpiryDate, err = optString(d)
		case "discountValue":
			p.DiscountValue, err = optDecimal(d)
		case "usageLimit":
			p.UsageLimit, err = optDecimal(d)
		case "active":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v bool
			v, err = d.Bool()
			p.Active = &v
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return coupon.CreateParams{}, err
	}
	return p, nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func optDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(s)
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = string(n)
	}
	v, err := coupon.ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
