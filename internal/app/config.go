package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	Currency     string `default:"usd" usage:"Currency of new carts"`
	Redis        RedisConfig
	Kafka        KafkaConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	PromoLimit   PromoLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig configures the cart cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for the cart cache"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	CartTTL  time.Duration `default:"15m" usage:"Base TTL of cached carts" flag:"cart-ttl"`
}

// KafkaConfig configures order completion events. No brokers disables
// publishing.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"storefront.orders" usage:"Topic for order events"`
}

// EventsConfig controls the in-process event bus.
type EventsConfig struct {
	HandlerTimeout time.Duration `default:"30s" usage:"Timeout of a single event handler" flag:"event-handler-timeout"`
}

// RateLimitConfig controls a request rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// PromoLimitConfig controls the limiter of the promo endpoints, shared
// across replicas when Redis is configured.
type PromoLimitConfig struct {
	Max    int           `default:"10" usage:"Max promo requests per window and client"`
	Window time.Duration `default:"1m" usage:"Promo rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
