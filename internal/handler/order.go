package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/discount"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/jsonx"
)

type checkoutRequest struct {
	PaymentRef string
}

func (req *checkoutRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "payment_ref" {
			var err error
			req.PaymentRef, err = d.Str()
			return err
		}
		return d.Skip()
	})
}

// orderResponse is the public view of an order. Payment references and
// customer IDs stay internal.
type orderResponse struct {
	*order.Order
}

func (o orderResponse) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("display_id", func(e *jx.Encoder) { e.Int64(o.DisplayID) })
		e.Field("cart_id", func(e *jx.Encoder) { e.Str(o.CartID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Email) })
		e.Field("items", func(e *jx.Encoder) { order.EncodeItems(e, o.Items) })
		e.Field("subtotal", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.Subtotal) })
		e.Field("shipping_method", func(e *jx.Encoder) { e.Str(o.ShippingMethod) })
		e.Field("shipping_total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.ShippingTotal) })
		e.Field("discount_total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.DiscountTotal) })
		e.Field("applied_discounts", func(e *jx.Encoder) { discount.EncodeApplied(e, o.AppliedDiscounts) })
		if o.PromoCode != "" {
			e.Field("promo_code", func(e *jx.Encoder) { e.Str(o.PromoCode) })
		}
		e.Field("promo_discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.PromoDiscount) })
		e.Field("loyalty_discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.LoyaltyDiscount) })
		e.Field("total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, o.Total) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("created_at", func(e *jx.Encoder) { jsonx.EncodeTime(e, o.CreatedAt) })
	})
}

// Checkout handles POST /api/carts/{cartID}/checkout. The body is optional.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	o, err := h.checkout.Finalize(r.Context(), order.Request{
		CartID:     chi.URLParam(r, "cartID"),
		PaymentRef: req.PaymentRef,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, orderResponse{o})
}
