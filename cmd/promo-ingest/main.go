// Command promo-ingest issues single-use promotion codes from gzipped code
// lists, one code per line.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/promo"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		kind        string
		value       string
		title       string
		minOrder    string
		expires     string
		opts        options
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&kind, "kind", string(promo.KindPercentage), "promotion kind: percentage, fixed or free_shipping")
	flag.StringVar(&value, "value", "10", "percent or fixed amount of the promotion")
	flag.StringVar(&title, "title", "", "customer-facing title")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order subtotal")
	flag.StringVar(&expires, "expires", "", "expiry time in RFC 3339")
	flag.IntVar(&opts.batchSize, "batch-size", 5000, "codes per database batch")
	flag.UintVar(&opts.expected, "expected", 10_000_000, "expected number of codes, sizes the dedupe filter")
	flag.Float64Var(&opts.fpRate, "fp-rate", 1e-7, "dedupe filter false positive rate")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if flag.NArg() == 0 {
		lg.Fatal("No code lists given")
	}

	tmpl, err := template(kind, value, title, minOrder, expires)
	if err != nil {
		lg.Fatal("Invalid promotion template", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	st, err := ingest(ctx, lg, flag.Args(), tmpl, postgres.NewPromoRepository(pool), opts)
	if err != nil {
		lg.Fatal("Promo ingest failed", zap.Error(err))
	}
	lg.Info("Promo ingest completed",
		zap.Int64("read", st.read),
		zap.Int64("invalid", st.invalid),
		zap.Int64("duplicates", st.duplicates),
		zap.Int64("inserted", st.inserted),
	)
}

// template builds the promotion every ingested code is issued as.
func template(kind, value, title, minOrder, expires string) (promo.Code, error) {
	k := promo.Kind(kind)
	switch k {
	case promo.KindPercentage, promo.KindFixed, promo.KindFreeShipping:
	default:
		return promo.Code{}, errors.Errorf("unknown kind %q", kind)
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return promo.Code{}, errors.Wrap(err, "parse value")
	}
	if v.IsNegative() || (k == promo.KindPercentage && v.GreaterThan(decimal.NewFromInt(100))) {
		return promo.Code{}, errors.Errorf("value %s out of range for %s", v, k)
	}
	minAmount, err := decimal.NewFromString(minOrder)
	if err != nil {
		return promo.Code{}, errors.Wrap(err, "parse min order")
	}

	tmpl := promo.Code{
		Title:  title,
		Kind:   k,
		Value:  v,
		Active: true,
		Conditions: promo.Conditions{
			MaxUsesTotal:   1,
			MinOrderAmount: minAmount,
		},
	}
	if expires != "" {
		at, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return promo.Code{}, errors.Wrap(err, "parse expiry")
		}
		tmpl.ExpiresAt = &at
	}
	return tmpl, nil
}
