package order

import (
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/jsonx"
)

// Encode writes it as a JSON object.
func (it Item) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("variant_index", func(e *jx.Encoder) { e.Int(it.VariantIndex) })
		e.Field("title", func(e *jx.Encoder) { e.Str(it.Title) })
		e.Field("variant_title", func(e *jx.Encoder) { e.Str(it.VariantTitle) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, it.UnitPrice) })
		e.Field("subtotal", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, it.Subtotal) })
	})
}

// EncodeItems writes items as an array.
func EncodeItems(e *jx.Encoder, items []Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			it.Encode(e)
		}
	})
}
