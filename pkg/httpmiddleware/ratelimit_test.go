package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/carts/c1/promo", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Rejects(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(h, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code    int
		message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := d.Int()
			code = v
			return err
		case "message":
			v, err := d.Str()
			message = v
			return err
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", message)

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_KeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1:1", "X-API-Key", "key-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "2.2.2.2:2", "X-API-Key", "key-a").Code)
	assert.Equal(t, http.StatusOK, serve(h, "1.1.1.1:1", "X-API-Key", "key-b").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, time.Time) (Quota, error) {
	return Quota{}, errors.New("connection refused")
}

func TestRateLimit_LimiterDown(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Limiter: brokenLimiter{}})(okHandler())
	for range 3 {
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1").Code)
	}
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name   string
		remote string
		header []string
		want   string
	}{
		{name: "RemoteAddr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "NoPort", remote: "192.168.1.1", want: "192.168.1.1"},
		{name: "ForwardedFor", remote: "192.168.1.1:4444", header: []string{"X-Forwarded-For", "203.0.113.50, 70.41.3.18"}, want: "203.0.113.50"},
		{name: "RealIP", remote: "192.168.1.1:4444", header: []string{"X-Real-IP", "198.51.100.7"}, want: "198.51.100.7"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.header); i += 2 {
				req.Header.Set(tt.header[i], tt.header[i+1])
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestMemoryLimiter_Slides(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for range 2 {
		q, err := l.Allow(ctx, "k", start)
		require.NoError(t, err)
		require.True(t, q.Allowed)
	}
	q, err := l.Allow(ctx, "k", start.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, q.Allowed)
	assert.Equal(t, start.Add(time.Minute), q.ResetAt)

	// Halfway into the next window half of the previous count still applies.
	mid := start.Add(90 * time.Second)
	q, err = l.Allow(ctx, "k", mid)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, 0, q.Remaining)

	q, err = l.Allow(ctx, "k", mid)
	require.NoError(t, err)
	assert.False(t, q.Allowed)

	l.Sweep(start.Add(5 * time.Minute))
	q, err = l.Allow(ctx, "k", start.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, 1, q.Remaining)
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "rl:promo:", 2, time.Minute)
	now := time.Date(2025, 6, 15, 12, 0, 30, 0, time.UTC)

	var remaining []int
	var allowed []bool
	for range 3 {
		q, err := l.Allow(ctx, "10.0.0.1", now)
		require.NoError(t, err)
		remaining = append(remaining, q.Remaining)
		allowed = append(allowed, q.Allowed)
		assert.Equal(t, time.Date(2025, 6, 15, 12, 1, 0, 0, time.UTC), q.ResetAt)
	}
	assert.Equal(t, []bool{true, true, false}, allowed)
	assert.Equal(t, []int{1, 0, 0}, remaining)

	key := "rl:promo:10.0.0.1:" + "1749988800"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	q, err := l.Allow(ctx, "10.0.0.1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, 1, q.Remaining)
}
