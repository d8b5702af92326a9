package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/jsonx"
)

// Encode writes l as a JSON object.
func (l Line) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("variant_index", func(e *jx.Encoder) { e.Int(l.VariantIndex) })
		e.Field("title", func(e *jx.Encoder) { e.Str(l.Title) })
		e.Field("variant_title", func(e *jx.Encoder) { e.Str(l.VariantTitle) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, l.UnitPrice) })
	})
}

// Decode reads l from a JSON object.
func (l *Line) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			l.ProductID, err = d.Str()
		case "variant_index":
			l.VariantIndex, err = d.Int()
		case "title":
			l.Title, err = d.Str()
		case "variant_title":
			l.VariantTitle, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		case "unit_price":
			l.UnitPrice, err = jsonx.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

// EncodeLines writes lines as an array; nil encodes as [].
func EncodeLines(e *jx.Encoder, lines []Line) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			l.Encode(e)
		}
	})
}

// DecodeLines reads an array of cart lines. null reads as empty.
func DecodeLines(d *jx.Decoder) ([]Line, error) {
	lines := []Line{}
	if d.Next() == jx.Null {
		return lines, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		var l Line
		if err := l.Decode(d); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

// Encode writes c as a JSON object. Empty optional strings are omitted.
func (c *Cart) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(c.Status)) })
		if c.CustomerID != "" {
			e.Field("customer_id", func(e *jx.Encoder) { e.Str(c.CustomerID) })
		}
		if c.Email != "" {
			e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		}
		e.Field("lines", func(e *jx.Encoder) { EncodeLines(e, c.Lines) })
		e.Field("subtotal", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.Subtotal) })
		if c.ShippingMethod != "" {
			e.Field("shipping_method", func(e *jx.Encoder) { e.Str(c.ShippingMethod) })
		}
		e.Field("shipping_total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.ShippingTotal) })
		e.Field("discount_total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.DiscountTotal) })
		e.Field("applied_discounts", func(e *jx.Encoder) { discount.EncodeApplied(e, c.AppliedDiscounts) })
		if c.PromoCode != "" {
			e.Field("promo_code", func(e *jx.Encoder) { e.Str(c.PromoCode) })
			e.Field("promo_type", func(e *jx.Encoder) { e.Str(c.PromoType) })
		}
		e.Field("promo_discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.PromoDiscount) })
		e.Field("loyalty_points", func(e *jx.Encoder) { e.Int(c.LoyaltyPoints) })
		e.Field("loyalty_discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.LoyaltyDiscount) })
		e.Field("total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.Total) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(c.Currency) })
		e.Field("created_at", func(e *jx.Encoder) { jsonx.EncodeTime(e, c.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { jsonx.EncodeTime(e, c.UpdatedAt) })
		if c.CompletedAt != nil {
			e.Field("completed_at", func(e *jx.Encoder) { jsonx.EncodeTime(e, *c.CompletedAt) })
		}
	})
}

// Decode reads c from a JSON object. Unknown fields are skipped.
func (c *Cart) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			c.ID, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			c.Status = Status(s)
		case "customer_id":
			c.CustomerID, err = d.Str()
		case "email":
			c.Email, err = d.Str()
		case "lines":
			c.Lines, err = DecodeLines(d)
		case "subtotal":
			c.Subtotal, err = jsonx.DecodeDecimal(d)
		case "shipping_method":
			c.ShippingMethod, err = d.Str()
		case "shipping_total":
			c.ShippingTotal, err = jsonx.DecodeDecimal(d)
		case "discount_total":
			c.DiscountTotal, err = jsonx.DecodeDecimal(d)
		case "applied_discounts":
			c.AppliedDiscounts, err = discount.DecodeApplied(d)
		case "promo_code":
			c.PromoCode, err = d.Str()
		case "promo_type":
			c.PromoType, err = d.Str()
		case "promo_discount":
			c.PromoDiscount, err = jsonx.DecodeDecimal(d)
		case "loyalty_points":
			c.LoyaltyPoints, err = d.Int()
		case "loyalty_discount":
			c.LoyaltyDiscount, err = jsonx.DecodeDecimal(d)
		case "total":
			c.Total, err = jsonx.DecodeDecimal(d)
		case "currency":
			c.Currency, err = d.Str()
		case "created_at":
			c.CreatedAt, err = jsonx.DecodeTime(d)
		case "updated_at":
			c.UpdatedAt, err = jsonx.DecodeTime(d)
		case "completed_at":
			var t time.Time
			t, err = jsonx.DecodeTime(d)
			c.CompletedAt = &t
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}
