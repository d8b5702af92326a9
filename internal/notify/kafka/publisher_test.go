package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testEvent() order.Completed {
	return order.Completed{
		OrderID:   "o1",
		DisplayID: 1042,
		CartID:    "c1",
		Email:     "a@example.com",
		Items: []order.Item{{
			ProductID: "tee",
			Title:     "Tee",
			Quantity:  2,
			UnitPrice: d("20"),
			Subtotal:  d("40"),
		}},
		Subtotal:      d("40"),
		ShippingTotal: d("5"),
		DiscountTotal: d("4"),
		PromoCode:     "SAVE10",
		PromoDiscount: d("3.6"),
		Total:         d("37.4"),
		Currency:      "usd",
		CreatedAt:     time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Notify(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	require.NoError(t, p.Notify(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "c1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventOrderCompleted, string(msg.Headers[0].Value))
	assert.True(t, jx.Valid(msg.Value))
}

func TestPublisher_NotifyError(t *testing.T) {
	p := NewPublisher(&fakeWriter{err: errors.New("broker down")})
	require.Error(t, p.Notify(context.Background(), testEvent()))
}

func TestEncodeCompleted(t *testing.T) {
	fields := map[string]string{}
	var items int
	err := jx.DecodeBytes(EncodeCompleted(testEvent())).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch k := string(key); k {
		case "display_id":
			v, err := d.Int64()
			assert.Equal(t, int64(1042), v)
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				items++
				return d.Skip()
			})
		default:
			v, err := d.Str()
			fields[k] = v
			return err
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 1, items)
	assert.Equal(t, "o1", fields["order_id"])
	assert.Equal(t, "7.60", fields["discount"])
	assert.Equal(t, "37.40", fields["total"])
	assert.Equal(t, "SAVE10", fields["promo_code"])
	assert.Equal(t, "2025-06-15T12:00:00Z", fields["created_at"])
	assert.NotContains(t, fields, "customer_id")
}
