// Package kafka forwards completed orders to the notification topic.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/jsonx"
)

// EventOrderCompleted is the event_type header of order completion messages.
const EventOrderCompleted = "order.completed"

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Writer = (*kafka.Writer)(nil)

// Publisher writes order completion events consumed by the e-mail service.
type Publisher struct {
	w Writer
}

// NewWriter creates a kafka writer for topic.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewPublisher creates a Publisher over w.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// Notify publishes ev keyed by the cart ID.
func (p *Publisher) Notify(ctx context.Context, ev order.Completed) error {
	msg := kafka.Message{
		Key:   []byte(ev.CartID),
		Value: EncodeCompleted(ev),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderCompleted)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeCompleted renders ev as JSON. Money is encoded as fixed-point
// strings.
func EncodeCompleted(ev order.Completed) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", func(e *jx.Encoder) { e.Str(ev.OrderID) })
		e.Field("display_id", func(e *jx.Encoder) { e.Int64(ev.DisplayID) })
		e.Field("cart_id", func(e *jx.Encoder) { e.Str(ev.CartID) })
		if ev.CustomerID != "" {
			e.Field("customer_id", func(e *jx.Encoder) { e.Str(ev.CustomerID) })
		}
		e.Field("email", func(e *jx.Encoder) { e.Str(ev.Email) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range ev.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("title", func(e *jx.Encoder) { e.Str(it.Title) })
						e.Field("variant_title", func(e *jx.Encoder) { e.Str(it.VariantTitle) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, it.UnitPrice) })
						e.Field("subtotal", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, it.Subtotal) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, ev.Subtotal) })
		e.Field("shipping", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, ev.ShippingTotal) })
		e.Field("discount", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, ev.DiscountTotal.Add(ev.PromoDiscount)) })
		if ev.PromoCode != "" {
			e.Field("promo_code", func(e *jx.Encoder) { e.Str(ev.PromoCode) })
		}
		e.Field("total", func(e *jx.Encoder) { jsonx.EncodeDecimal(e, ev.Total) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(ev.Currency) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(ev.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
