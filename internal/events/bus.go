// Package events dispatches domain events to asynchronous handlers.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/order"
)

// Handler processes a completed order.
type Handler func(ctx context.Context, ev order.Completed) error

type subscription struct {
	name string
	h    Handler
}

// Bus runs every subscribed handler in its own goroutine. Handler failures
// and panics are logged and never reach the publisher.
type Bus struct {
	lg      *zap.Logger
	timeout time.Duration

	mu   sync.RWMutex
	subs []subscription
	wg   sync.WaitGroup
}

var _ order.Publisher = (*Bus)(nil)

// NewBus creates a Bus. Each handler invocation is bounded by timeout.
func NewBus(lg *zap.Logger, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bus{lg: lg, timeout: timeout}
}

// Subscribe registers h under name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, h: h})
}

// Publish dispatches ev to all handlers and returns immediately. Handlers
// run on a context detached from ctx cancellation.
func (b *Bus) Publish(ctx context.Context, ev order.Completed) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, s := range subs {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.dispatch(base, s, ev)
		}()
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, ev order.Completed) {
	lg := b.lg.With(zap.String("handler", s.name), zap.String("order_id", ev.OrderID))
	ctx, cancel := context.WithTimeout(zctx.With(ctx, zap.String("handler", s.name)), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			lg.Error("Event handler panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := s.h(ctx, ev); err != nil {
		lg.Error("Event handler failed", zap.Error(err))
	}
}

// Close waits for in-flight handlers until ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for event handlers")
	}
}
