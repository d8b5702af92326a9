package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

type encoder interface {
	Encode(e *jx.Encoder)
}

type decoder interface {
	Decode(d *jx.Decoder) error
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v encoder) {
	var e jx.Encoder
	v.Encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Warn("Write response", zap.Error(err))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v decoder) bool {
	if err := v.Decode(jx.Decode(r.Body, 1024)); err != nil {
		zctx.From(r.Context()).Debug("Decode request", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "line index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

// respondError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quantityErr  *cart.InvalidQuantityError
		lineErr      *cart.LineNotFoundError
		variantErr   *cart.VariantNotFoundError
		shippingErr  *cart.InvalidShippingError
		productErr   *order.ProductNotFoundError
		orderVarErr  *order.VariantNotFoundError
		stockErr     *order.OutOfStockError
		inventoryErr *order.InsufficientInventoryError
		paymentErr   *order.PaymentMismatchError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, order.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &lineErr):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrNotActive),
		errors.Is(err, cart.ErrConflict),
		errors.Is(err, order.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.As(err, &quantityErr), errors.As(err, &shippingErr):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.As(err, &variantErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.As(err, &productErr),
		errors.As(err, &orderVarErr),
		errors.As(err, &stockErr),
		errors.As(err, &inventoryErr),
		errors.As(err, &paymentErr):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, status, "internal error")
		return
	}
	httpmiddleware.WriteError(w, status, err.Error())
}
