// Package jsonx holds the jx helpers shared by the storefront JSON codecs.
//
// Money is written as fixed-point strings with two decimal places and read
// from either strings or numbers. Timestamps use RFC 3339 with nanoseconds.
package jsonx

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeDecimal writes v as a fixed-point string.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

// DecodeDecimal reads a decimal from a string or a number. null reads as zero.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

// EncodeTime writes t in UTC.
func EncodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// DecodeTime reads an RFC 3339 timestamp.
func DecodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time")
	}
	return t, nil
}

// EncodeStrings writes v as an array.
func EncodeStrings(e *jx.Encoder, v []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range v {
			e.Str(s)
		}
	})
}

// DecodeStrings reads an array of strings.
func DecodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
