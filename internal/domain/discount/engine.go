package discount

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

const instrumentationName = "github.com/xenking/storefront-pricing/internal/domain/discount"

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	now            func() time.Time
}

// WithMeterProvider sets the meter provider used for resolution metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *engineOptions) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for resolution spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *engineOptions) { o.tracerProvider = tp }
}

// WithClock overrides the clock used to select active rules.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// Engine resolves which automatic discounts and bundles apply to a cart.
// It holds no per-cart state and is safe for concurrent use.
type Engine struct {
	rules    Repository
	products catalog.Repository
	now      func() time.Time

	tracer      trace.Tracer
	resolutions metric.Int64Counter
	applied     metric.Int64Counter
}

// NewEngine creates an Engine reading rules from rules and product
// categories from products.
func NewEngine(rules Repository, products catalog.Repository, opts ...Option) (*Engine, error) {
	o := engineOptions{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	resolutions, err := meter.Int64Counter("pricing.resolutions",
		metric.WithDescription("Number of discount resolution passes by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create resolutions counter")
	}
	applied, err := meter.Int64Counter("pricing.discounts.applied",
		metric.WithDescription("Number of discounts applied by type"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}

	return &Engine{
		rules:       rules,
		products:    products,
		now:         o.now,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		resolutions: resolutions,
		applied:     applied,
	}, nil
}

// Resolve evaluates all active automatic rules in priority order, stopping
// after the first matching non-stackable rule, then evaluates every active
// bundle independently. The returned total is capped at subtotal.
func (e *Engine) Resolve(ctx context.Context, items []Item, subtotal decimal.Decimal) (_ Resolution, rerr error) {
	ctx, span := e.tracer.Start(ctx, "discount.Resolve",
		trace.WithAttributes(attribute.Int("cart.items", len(items))),
	)
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		e.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	if len(items) == 0 {
		return Resolution{Applied: []Applied{}, Total: zero}, nil
	}

	now := e.now()
	rules, bundles, err := e.load(ctx, now)
	if err != nil {
		return Resolution{}, err
	}

	facts := Facts{Items: items, Subtotal: subtotal}
	applied := make([]Applied, 0, len(rules)+len(bundles))

	for i := range rules {
		rule := &rules[i]
		if !rule.ActiveAt(now) {
			continue
		}
		if rule.Conditions.NeedsCategories() && facts.Categories == nil {
			facts.Categories, err = e.categories(ctx, items)
			if err != nil {
				return Resolution{}, errors.Wrap(err, "resolve categories")
			}
		}
		if !Matches(rule.Conditions, facts) {
			continue
		}

		amount := rule.amount(facts)
		if !amount.IsPositive() {
			continue
		}
		applied = append(applied, Applied{
			Title:  rule.Title,
			Type:   rule.Terms.Kind(),
			Amount: amount,
		})

		if !rule.Stackable {
			break
		}
	}

	for _, bundle := range bundles {
		if !bundle.Active || bundle.Terms == nil {
			continue
		}
		amount := BundleAmount(bundle, items)
		if !amount.IsPositive() {
			continue
		}
		applied = append(applied, Applied{
			Title:  bundle.Title,
			Type:   BundleKind(bundle.Terms.Kind()),
			Amount: amount,
		})
	}

	total := zero
	for _, a := range applied {
		total = total.Add(a.Amount)
		e.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(a.Type))))
	}
	total = decimal.Min(total, floorAtZero(subtotal))

	span.SetAttributes(
		attribute.Int("discount.applied", len(applied)),
		attribute.String("discount.total", total.String()),
	)
	return Resolution{Applied: applied, Total: total}, nil
}

// load reads active rules and bundles concurrently and orders the rules.
func (e *Engine) load(ctx context.Context, now time.Time) ([]AutoRule, []BundleRule, error) {
	var (
		rules   []AutoRule
		bundles []BundleRule
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rules, err = e.rules.FindActiveAutoDiscounts(gctx, now)
		if err != nil {
			return errors.Wrap(err, "find active auto discounts")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bundles, err = e.rules.FindActiveBundles(gctx)
		if err != nil {
			return errors.Wrap(err, "find active bundles")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	SortRules(rules)
	return rules, bundles, nil
}

// categories resolves the category ids of every product in items with a
// single catalog read. Products missing from the catalog have no categories.
func (e *Engine) categories(ctx context.Context, items []Item) (map[string][]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	cats := make(map[string][]string, len(products))
	for _, p := range products {
		cats[p.ID] = p.Categories
	}
	return cats, nil
}

// SortRules orders rules by priority descending. Rules with equal priority
// are ordered by ID so that evaluation order never depends on storage order.
func SortRules(rules []AutoRule) {
	slices.SortStableFunc(rules, func(a, b AutoRule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
