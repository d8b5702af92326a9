package promo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

// UsageRecorder records promo usage for completed orders.
type UsageRecorder struct {
	promos Repository
}

// NewUsageRecorder creates a UsageRecorder.
func NewUsageRecorder(promos Repository) *UsageRecorder {
	return &UsageRecorder{promos: promos}
}

// HandleCompleted records a usage when the order carried a promo code.
// Codes deleted since checkout are skipped.
func (r *UsageRecorder) HandleCompleted(ctx context.Context, ev order.Completed) error {
	if ev.PromoCode == "" {
		return nil
	}
	err := r.promos.RecordUsage(ctx, Usage{
		Code:           Normalize(ev.PromoCode),
		CustomerID:     ev.CustomerID,
		Email:          ev.Email,
		OrderID:        ev.OrderID,
		DiscountAmount: ev.PromoDiscount,
		Currency:       ev.Currency,
		CreatedAt:      ev.CreatedAt,
	})
	if errors.Is(err, ErrNotFound) {
		zctx.From(ctx).Warn("Promo code vanished before usage was recorded",
			zap.String("code", ev.PromoCode),
			zap.String("order_id", ev.OrderID),
		)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "record usage of %s", ev.PromoCode)
	}
	return nil
}
