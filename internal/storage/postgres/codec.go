package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/jsonx"
)

// JSONB columns are encoded with jx through the jsonx helpers.

func encodeTerms(t discount.Terms) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		switch t := t.(type) {
		case discount.Percentage:
			e.Field("percent", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, t.Percent) })
		case discount.Fixed:
			e.Field("amount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, t.Amount) })
		case discount.BuyXGetY:
			e.Field("buy", func(e *jx.Encoder) { e.Int(t.Buy) })
			e.Field("get", func(e *jx.Encoder) { e.Int(t.Get) })
			if t.DiscountPercent.Valid {
				e.Field("discount_percent", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, t.DiscountPercent.Decimal) })
			}
		}
	})
	return e.Bytes()
}

func decodeTerms(kind discount.Kind, data []byte) (discount.Terms, error) {
	var (
		value decimal.Decimal
		bxgy  discount.BuyXGetY
	)
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "percent", "amount":
			value, err = jsonx.DecodeDecimal(d)
		case "buy":
			bxgy.Buy, err = d.Int()
		case "get":
			bxgy.Get, err = d.Int()
		case "discount_percent":
			if d.Next() == jx.Null {
				return d.Null()
			}
			bxgy.DiscountPercent.Decimal, err = jsonx.DecodeDecimal(d)
			bxgy.DiscountPercent.Valid = err == nil
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode terms")
	}

	switch kind {
	case discount.KindPercentage:
		return discount.Percentage{Percent: value}, nil
	case discount.KindFixed:
		return discount.Fixed{Amount: value}, nil
	case discount.KindBuyXGetY:
		return bxgy, nil
	default:
		return nil, errors.Errorf("unknown discount kind %q", kind)
	}
}

func encodeConditions(c discount.Conditions) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if c.MinItems > 0 {
			e.Field("min_items", func(e *jx.Encoder) { e.Int(c.MinItems) })
		}
		if c.MinOrderAmount.IsPositive() {
			e.Field("min_order_amount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, c.MinOrderAmount) })
		}
		if len(c.RequiredProducts) > 0 {
			e.Field("required_products", func(e *jx.Encoder) { jsonx.EncodeStrings(e, c.RequiredProducts) })
		}
		if len(c.RequiredCategories) > 0 {
			e.Field("required_categories", func(e *jx.Encoder) { jsonx.EncodeStrings(e, c.RequiredCategories) })
		}
	})
	return e.Bytes()
}

func decodeConditions(data []byte) (discount.Conditions, error) {
	var c discount.Conditions
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "min_items":
			c.MinItems, err = d.Int()
		case "min_order_amount":
			c.MinOrderAmount, err = jsonx.DecodeDecimal(d)
		case "required_products":
			c.RequiredProducts, err = jsonx.DecodeStrings(d)
		case "required_categories":
			c.RequiredCategories, err = jsonx.DecodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return c, errors.Wrap(err, "decode conditions")
	}
	return c, nil
}

func encodeLines(lines []cart.Line) []byte {
	var e jx.Encoder
	cart.EncodeLines(&e, lines)
	return e.Bytes()
}

func decodeLines(data []byte) ([]cart.Line, error) {
	lines, err := cart.DecodeLines(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode cart lines")
	}
	return lines, nil
}

func encodeApplied(applied []discount.Applied) []byte {
	var e jx.Encoder
	discount.EncodeApplied(&e, applied)
	return e.Bytes()
}

func decodeApplied(data []byte) ([]discount.Applied, error) {
	applied, err := discount.DecodeApplied(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode applied discounts")
	}
	return applied, nil
}

func encodeItems(items []order.Item) []byte {
	var e jx.Encoder
	order.EncodeItems(&e, items)
	return e.Bytes()
}

func decodeItems(data []byte) ([]order.Item, error) {
	var items []order.Item
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var it order.Item
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "product_id":
				it.ProductID, err = d.Str()
			case "variant_index":
				it.VariantIndex, err = d.Int()
			case "title":
				it.Title, err = d.Str()
			case "variant_title":
				it.VariantTitle, err = d.Str()
			case "quantity":
				it.Quantity, err = d.Int()
			case "unit_price":
				it.UnitPrice, err = jsonx.DecodeDecimal(d)
			case "subtotal":
				it.Subtotal, err = jsonx.DecodeDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order items")
	}
	return items, nil
}
