package main

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/coupon"
)

// record is one line of an import file.
type record struct {
	ID               string
	Code             string `validate:"required,max=64"`
	Type             string `validate:"required,oneof=FLAT PERCENTAGE"`
	DiscountValue    decimal.Decimal
	Active           bool
	MinimumCartValue decimal.Decimal
	StartDate        time.Time `validate:"required"`
	ExpiryDate       time.Time `validate:"required,gtfield=StartDate"`
	Owner            string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// parseRecord decodes a JSON object line into a coupon. Coupons without an id
// get a random one; active defaults to true.
func parseRecord(line []byte) (coupon.Coupon, error) {
	rec := record{Active: true}
	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "_id":
			rec.ID, err = d.Str()
		case "code":
			rec.Code, err = d.Str()
			rec.Code = strings.TrimSpace(rec.Code)
		case "type":
			rec.Type, err = d.Str()
			rec.Type = strings.ToUpper(rec.Type)
		case "discountValue":
			rec.DiscountValue, err = decodeMoney(d)
		case "isActive":
			rec.Active, err = d.Bool()
		case "minimumCartValue":
			rec.MinimumCartValue, err = decodeMoney(d)
		case "startDate":
			rec.StartDate, err = decodeTime(d)
		case "expiryDate":
			rec.ExpiryDate, err = decodeTime(d)
		case "owner":
			rec.Owner, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	}); err != nil {
		return coupon.Coupon{}, err
	}
	if err := validate.Struct(rec); err != nil {
		return coupon.Coupon{}, err
	}

	switch {
	case !rec.DiscountValue.IsPositive():
		return coupon.Coupon{}, errors.Errorf("coupon %q: discount must be positive", rec.Code)
	case rec.Type == string(coupon.TypePercentage) && rec.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return coupon.Coupon{}, errors.Errorf("coupon %q: percentage above 100", rec.Code)
	case rec.MinimumCartValue.IsNegative():
		return coupon.Coupon{}, errors.Errorf("coupon %q: negative minimum", rec.Code)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return coupon.Coupon{
		ID:               rec.ID,
		Code:             rec.Code,
		Type:             coupon.Type(rec.Type),
		DiscountValue:    rec.DiscountValue,
		Active:           rec.Active,
		MinimumCartValue: rec.MinimumCartValue,
		StartDate:        rec.StartDate,
		ExpiryDate:       rec.ExpiryDate,
		Owner:            rec.Owner,
	}, nil
}

func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}
