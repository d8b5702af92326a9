package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Quota is the outcome of a rate limit check.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Quota, error)
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the length of a rate limit window.
	Window time.Duration
	// KeyFunc extracts the rate limit key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Limiter stores the counters. Defaults to an in-process sliding window.
	Limiter Limiter
}

// RateLimit enforces cfg.Max requests per window and key. Rejected requests
// get a JSON 429 with Retry-After. Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter(cfg.Max, cfg.Window)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r), time.Now())
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt.Unix(), 10))
			if !q.Allowed {
				retryAfter := max(time.Until(q.ResetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// window tracks counts across two adjacent windows.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// MemoryLimiter is an in-process sliding window limiter.
type MemoryLimiter struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter creates a MemoryLimiter.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: limit, period: period, windows: make(map[string]*window)}
}

// Allow weights the previous window's count by its overlap with the sliding
// window ending at now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Quota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{currStart: now.Truncate(l.period)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.currStart); elapsed >= l.period {
		w.prevCount = w.currCount
		if elapsed >= 2*l.period {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = now.Truncate(l.period)
	}

	overlap := max(1-now.Sub(w.currStart).Seconds()/l.period.Seconds(), 0)
	effective := w.prevCount*overlap + w.currCount
	q := Quota{ResetAt: w.currStart.Add(l.period)}
	if effective >= float64(l.max) {
		return q, nil
	}
	w.currCount++
	q.Allowed = true
	q.Remaining = max(int(float64(l.max)-effective-1), 0)
	return q, nil
}

// Sweep drops keys idle for more than two windows.
func (l *MemoryLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}

// Run sweeps idle keys every two windows until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// RedisLimiter is a fixed window limiter shared by all API replicas.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int
	period time.Duration
}

// NewRedisLimiter creates a RedisLimiter storing counters under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, max: limit, period: period}
}

// Allow increments the counter of the window containing now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Quota, error) {
	start := now.Truncate(l.period)
	counter := l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, counter)
		p.Expire(ctx, counter, l.period)
		return nil
	})
	if err != nil {
		return Quota{}, errors.Wrap(err, "incr rate counter")
	}

	n := int(incr.Val())
	return Quota{
		Allowed:   n <= l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   start.Add(l.period),
	}, nil
}
