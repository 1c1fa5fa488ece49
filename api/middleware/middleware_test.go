package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-asin/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestParseLimits(t *testing.T) {
	tests := []struct {
		in      string
		want    []Limit
		wantErr bool
	}{
		{in: "100 per hour;20 per minute", want: []Limit{{100, time.Hour}, {20, time.Minute}}},
		{in: "10 per minute", want: []Limit{{10, time.Minute}}},
		{in: "5/second, 1000 per day", want: []Limit{{5, time.Second}, {1000, 24 * time.Hour}}},
		{in: "3 PER Minutes", want: []Limit{{3, time.Minute}}},
		{in: "", wantErr: true},
		{in: "ten per minute", wantErr: true},
		{in: "0 per minute", wantErr: true},
		{in: "10 per fortnight", wantErr: true},
		{in: "10 minute", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLimits(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStoreBurstThenReject(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	limit := Limit{Count: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		ok, _, err := store.Allow(context.Background(), "ip", limit)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, retryAfter, err := store.Allow(context.Background(), "ip", limit)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)

	ok, _, _ = store.Allow(context.Background(), "other-ip", limit)
	assert.True(t, ok, "keys must not share a bucket")

	now = now.Add(30 * time.Second)
	ok, _, _ = store.Allow(context.Background(), "ip", limit)
	assert.True(t, ok, "bucket refills over the window")
}

func TestMemoryStoreEvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	limit := Limit{Count: 1, Window: time.Hour}

	_, _, _ = store.Allow(context.Background(), "ip", limit)
	now = now.Add(2 * time.Hour)
	_, _, _ = store.Allow(context.Background(), "fresh", limit)

	assert.Len(t, store.limiters, 1)
}

type fakeRedis struct {
	counts   map[string]int64
	expiries map[string]time.Duration
	err      error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: map[string]int64{}, expiries: map[string]time.Duration{}}
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expiries[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStoreFixedWindow(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client)
	now := time.Unix(1700000010, 0)
	store.now = func() time.Time { return now }
	limit := Limit{Count: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		ok, _, err := store.Allow(context.Background(), "product:1.2.3.4", limit)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retryAfter, err := store.Allow(context.Background(), "product:1.2.3.4", limit)
	require.NoError(t, err)
	assert.False(t, ok)
	// 1700000010 sits 30s into its minute window.
	assert.Equal(t, 30*time.Second, retryAfter)

	require.Len(t, client.expiries, 1)
	for _, exp := range client.expiries {
		assert.Equal(t, time.Minute, exp)
	}

	now = now.Add(time.Minute)
	ok, _, _ = store.Allow(context.Background(), "product:1.2.3.4", limit)
	assert.True(t, ok, "next window starts a new counter")
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	_, _, err := NewRedisStore(client).Allow(context.Background(), "k", Limit{Count: 1, Window: time.Second})
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	assert.NoError(t, store.Close())

	_, err = NewStore("memcached://localhost")
	assert.Error(t, err)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func limitedRouter(store Store, limits []Limit) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(store, "test", limits, quietLogger()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	store := NewMemoryStore()
	r := limitedRouter(store, []Limit{{Count: 2, Window: time.Minute}})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body models.ProductResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, models.CodeRateLimitExceeded, body.ErrorCode)
	require.NotNil(t, body.RetryAfter)
	assert.GreaterOrEqual(t, *body.RetryAfter, 1)
}

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, Limit) (bool, time.Duration, error) {
	return false, 0, errors.New("store down")
}

func (brokenStore) Close() error { return nil }

func TestRateLimitFailsOpen(t *testing.T) {
	r := limitedRouter(brokenStore{}, []Limit{{Count: 1, Window: time.Minute}})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
