package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader() aconfig.Config {
	return aconfig.Config{EnvPrefix: "STORE", SkipFiles: true, SkipFlags: true}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/store")
	t.Setenv("PORT", "")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/store", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 15*time.Minute, cfg.Redis.CartTTL)
	assert.Equal(t, "storefront.orders", cfg.Kafka.Topic)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 10, cfg.PromoLimit.Max)
	assert.Equal(t, time.Minute, cfg.PromoLimit.Window)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("STORE_DATABASE_URL", "postgres://db/store")
	t.Setenv("STORE_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/store", cfg.DatabaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := loadConfig(testLoader())
	require.ErrorContains(t, err, "database URL is required")
}
