package discount

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/jsonx"
)

// Encode writes a as a JSON object.
func (a Applied) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("title", func(e *jx.Encoder) { e.Str(a.Title) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(a.Type)) })
		e.Field("amount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, a.Amount) })
	})
}

// Decode reads a from a JSON object. Unknown fields are skipped.
func (a *Applied) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "title":
			a.Title, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			a.Type = Kind(s)
		case "amount":
			a.Amount, err = jsonx.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

// EncodeApplied writes applied as an array; nil encodes as [].
func EncodeApplied(e *jx.Encoder, applied []Applied) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range applied {
			a.Encode(e)
		}
	})
}

// DecodeApplied reads an array of applied discounts. null reads as empty.
func DecodeApplied(d *jx.Decoder) ([]Applied, error) {
	applied := []Applied{}
	if d.Next() == jx.Null {
		return applied, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		var a Applied
		if err := a.Decode(d); err != nil {
			return err
		}
		applied = append(applied, a)
		return nil
	})
	return applied, err
}
