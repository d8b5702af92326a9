package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/promo"
	"github.com/xenking/storefront-pricing/internal/jsonx"
)

type promoRequest struct {
	Code  string
	Email string
}

func (req *promoRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			req.Code, err = d.Str()
		case "email":
			req.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type validationResponse struct {
	*promo.Validation
}

func (v validationResponse) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("valid", func(e *jx.Encoder) { e.Bool(v.Valid) })
		if v.Reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(string(v.Reason)) })
		}
		e.Field("message", func(e *jx.Encoder) { e.Str(v.Message) })
		if v.Code != "" {
			e.Field("code", func(e *jx.Encoder) { e.Str(v.Code) })
		}
		if v.Kind != "" {
			e.Field("type", func(e *jx.Encoder) { e.Str(string(v.Kind)) })
		}
		e.Field("discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, v.Discount) })
	})
}

type promoResultResponse struct {
	*promo.Result
}

func (res promoResultResponse) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(res.Success) })
		e.Field("message", func(e *jx.Encoder) { e.Str(res.Message) })
		e.Field("discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, res.Discount) })
	})
}

// ValidatePromo handles POST /api/carts/{cartID}/promo/validate. Rejected
// codes are a 200 with valid=false.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := h.promos.Validate(r.Context(), req.Code, chi.URLParam(r, "cartID"), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, validationResponse{v})
}

// ApplyPromo handles POST /api/carts/{cartID}/promo.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.promos.Apply(r.Context(), req.Code, chi.URLParam(r, "cartID"), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPromoResult(w, r, res)
}

// RemovePromo handles DELETE /api/carts/{cartID}/promo.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	res, err := h.promos.Remove(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPromoResult(w, r, res)
}

func respondPromoResult(w http.ResponseWriter, r *http.Request, res *promo.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, r, status, promoResultResponse{res})
}
