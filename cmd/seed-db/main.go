// Command seed-db applies the schema and loads a demo catalog, discount
// rules, promotions and an API key.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or STORE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	databaseURL = firstNonEmpty(databaseURL, os.Getenv("DATABASE_URL"))
	apiKey = firstNonEmpty(apiKey, os.Getenv("STORE_SEED_API_KEY"))
	apiKeyPepper = firstNonEmpty(apiKeyPepper, os.Getenv("STORE_API_KEY_PEPPER"))
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or STORE_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, apiKey, apiKeyPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, apiKey, pepper string) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewCatalogRepository(pool)
	for _, p := range seedProducts() {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Products seeded", zap.Int("count", len(seedProducts())))

	discounts := postgres.NewDiscountRepository(pool)
	for _, r := range seedRules() {
		if err := discounts.UpsertAutoDiscount(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.ID)
		}
	}
	for _, b := range seedBundles() {
		if err := discounts.UpsertBundle(ctx, b); err != nil {
			return errors.Wrapf(err, "upsert bundle %s", b.ID)
		}
	}
	lg.Info("Discounts seeded", zap.Int("rules", len(seedRules())), zap.Int("bundles", len(seedBundles())))

	promos := postgres.NewPromoRepository(pool)
	for _, p := range seedPromotions() {
		if err := promos.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.Code)
		}
	}
	lg.Info("Promotions seeded", zap.Int("count", len(seedPromotions())))

	keys := postgres.NewAPIKeyRepository(pool)
	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "storefront",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "storefront",
		Scopes:  []string{"*"},
	}); err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	lg.Info("API key seeded")
	return nil
}
