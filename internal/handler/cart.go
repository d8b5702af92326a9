package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/jsonx"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

type createCartRequest struct {
	CustomerID string
	Email      string
}

func (req *createCartRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customer_id":
			req.CustomerID, err = d.Str()
		case "email":
			req.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

type addItemRequest struct {
	ProductID    string
	VariantIndex int
	Quantity     int
}

func (req *addItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			req.ProductID, err = d.Str()
		case "variant_index":
			req.VariantIndex, err = d.Int()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}

type updateItemRequest struct {
	Quantity int
}

func (req *updateItemRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "quantity" {
			var err error
			req.Quantity, err = d.Int()
			return err
		}
		return d.Skip()
	})
}

type shippingRequest struct {
	Method string
	Price  decimal.Decimal
}

func (req *shippingRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "method":
			req.Method, err = d.Str()
		case "price":
			req.Price, err = jsonx.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

type contactRequest struct {
	Email      string
	CustomerID string
}

func (req *contactRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "email":
			req.Email, err = d.Str()
		case "customer_id":
			req.CustomerID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

// CreateCart handles POST /api/carts. An empty body is allowed.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	c, err := h.carts.Create(r.Context(), cart.CreateRequest{CustomerID: req.CustomerID, Email: req.Email})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, c)
}

// GetCart handles GET /api/carts/{cartID}.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// AddItem handles POST /api/carts/{cartID}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	c, err := h.carts.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.VariantIndex, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// UpdateItem handles PATCH /api/carts/{cartID}/items/{index}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), chi.URLParam(r, "cartID"), index, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// RemoveItem handles DELETE /api/carts/{cartID}/items/{index}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(w, r)
	if !ok {
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// SetShipping handles PUT /api/carts/{cartID}/shipping.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.carts.SetShipping(r.Context(), chi.URLParam(r, "cartID"), req.Method, req.Price)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}

// SetContact handles PUT /api/carts/{cartID}/contact.
func (h *Handler) SetContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.carts.SetContact(r.Context(), chi.URLParam(r, "cartID"), req.Email, req.CustomerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, c)
}
