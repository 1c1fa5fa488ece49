package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-asin/api/middleware"
	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
	"github.com/aluiziolira/go-scrape-asin/parser"
	"github.com/aluiziolira/go-scrape-asin/pipeline"
	"github.com/aluiziolira/go-scrape-asin/scraper"
)

var fixedNow = time.Unix(1700000000, 250000000)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type fetcherFunc func(ctx context.Context, raw string) (models.ScrapeOutcome, error)

func (f fetcherFunc) FetchProduct(ctx context.Context, raw string) (models.ScrapeOutcome, error) {
	return f(ctx, raw)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.DelayMin, cfg.DelayMax = 0, 0
	cfg.RetryBackoff, cfg.RetryBackoffMax = 0, 0
	cfg.Jitter = 0
	cfg.TLSFingerprint = false
	cfg.RateLimitDefault = "1000 per minute"
	cfg.RateLimitProduct = "1000 per minute"
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, cfg *config.Config, f fetcherFunc) *gin.Engine {
	t.Helper()
	r, err := NewRouter(cfg, f, middleware.NewMemoryStore(),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func echoDot(code models.ProductCode) *models.ProductRecord {
	record := models.NewProductRecord(code)
	title, price := "Echo Dot (4th Gen)", "$49.99"
	record.Title, record.Price = &title, &price
	record.Images = []string{"https://img.example/a.jpg", "https://img.example/b.jpg"}
	return record
}

func successFetcher(ctx context.Context, raw string) (models.ScrapeOutcome, error) {
	code, err := parser.ValidateCode(raw)
	if err != nil {
		return models.ScrapeOutcome{}, err
	}
	return models.ScrapeOutcome{Kind: models.OutcomeSuccess, Code: code, Record: echoDot(code)}, nil
}

func TestGetAndPostAreByteIdentical(t *testing.T) {
	r := newTestRouter(t, testConfig(), successFetcher)

	get := do(r, http.MethodGet, "/product/b0dygbsm4d", "")
	post := do(r, http.MethodPost, "/product", `{"asin": "b0dygbsm4d"}`)

	require.Equal(t, http.StatusOK, get.Code)
	require.Equal(t, http.StatusOK, post.Code)
	assert.Equal(t, get.Body.String(), post.Body.String())

	body := decode(t, get)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1700000000), body["scraped_at"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "B0DYGBSM4D", data["asin"])
	assert.Equal(t, "Echo Dot (4th Gen)", data["title"])
	assert.Nil(t, data["rating"])
	assert.Contains(t, data, "rating")
	assert.Equal(t, map[string]any{}, data["specifications"])
	assert.Equal(t, []any{}, data["features"])
}

func TestOutcomeStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		out    models.ScrapeOutcome
		err    error
		status int
		code   string
	}{
		{name: "not found", out: models.ScrapeOutcome{Kind: models.OutcomeNotFound}, status: 404, code: models.CodeProductNotFound},
		{name: "blocked", out: models.ScrapeOutcome{Kind: models.OutcomeBlocked}, status: 503, code: models.CodeRequestFailed},
		{name: "exhausted", out: models.ScrapeOutcome{Kind: models.OutcomeNetworkExhausted}, status: 503, code: models.CodeRequestFailed},
		{name: "parse failed", out: models.ScrapeOutcome{Kind: models.OutcomeParseFailed}, status: 500, code: models.CodeParseError},
		{name: "internal", err: pipeline.ErrInternal, status: 500, code: models.CodeInternalError},
	}

	messages := map[string]string{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, testConfig(), func(context.Context, string) (models.ScrapeOutcome, error) {
				return tt.out, tt.err
			})
			w := do(r, http.MethodGet, "/product/B0DYGBSM4D", "")
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["error_code"])
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body, "data")
			messages[tt.name] = body["error"].(string)
		})
	}
	assert.NotEqual(t, messages["blocked"], messages["exhausted"])
}

func TestPostBodyValidation(t *testing.T) {
	var calls int32
	r := newTestRouter(t, testConfig(), func(ctx context.Context, raw string) (models.ScrapeOutcome, error) {
		atomic.AddInt32(&calls, 1)
		return successFetcher(ctx, raw)
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "empty body", body: "", status: 400, code: models.CodeMissingASIN},
		{name: "missing field", body: `{"sku": "B0DYGBSM4D"}`, status: 400, code: models.CodeMissingASIN},
		{name: "null field", body: `{"asin": null}`, status: 400, code: models.CodeMissingASIN},
		{name: "array body", body: `["B0DYGBSM4D"]`, status: 400, code: models.CodeMissingASIN},
		{name: "malformed", body: `{"asin": `, status: 400, code: models.CodeInvalidJSON},
		{name: "trailing garbage", body: `{"asin":"B0DYGBSM4D"} trailing`, status: 400, code: models.CodeInvalidJSON},
		{name: "two objects", body: `{"asin":"B0DYGBSM4D"}{"asin":"X"}`, status: 400, code: models.CodeInvalidJSON},
		{name: "trailing whitespace", body: "{\"asin\":\"short\"}\n", status: 400, code: models.CodeInvalidASIN},
		{name: "numeric asin", body: `{"asin": 1234567890}`, status: 400, code: models.CodeInvalidASIN},
		{name: "short asin", body: `{"asin": "short"}`, status: 400, code: models.CodeInvalidASIN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/product", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["error_code"])
		})
	}
}

func TestInvalidCodeOnPath(t *testing.T) {
	r := newTestRouter(t, testConfig(), successFetcher)
	w := do(r, http.MethodGet, "/product/has-dash!!", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.CodeInvalidASIN, decode(t, w)["error_code"])
}

func TestServiceRoutes(t *testing.T) {
	r := newTestRouter(t, testConfig(), successFetcher)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.InDelta(t, 1700000000.25, health["timestamp"], 1e-3)

	w = do(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode(t, w)
	assert.Equal(t, "Amazon Product Scraper API", doc["name"])
	assert.Contains(t, doc["endpoints"], "POST /product")

	w = do(r, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.CodeEndpointNotFound, decode(t, w)["error_code"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestPanicsBecomeInternalError(t *testing.T) {
	r := newTestRouter(t, testConfig(), func(context.Context, string) (models.ScrapeOutcome, error) {
		panic("boom")
	})
	w := do(r, http.MethodGet, "/product/B0DYGBSM4D", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.CodeInternalError, decode(t, w)["error_code"])
}

func TestProductRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitProduct = "2 per minute"
	r := newTestRouter(t, cfg, successFetcher)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/product/B0DYGBSM4D", "").Code)
	}
	w := do(r, http.MethodPost, "/product", `{"asin": "B0DYGBSM4D"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, models.CodeRateLimitExceeded, body["error_code"])
	assert.Contains(t, body, "retry_after")

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code, "product limit must not bleed into other routes")
}

func TestNewRouterRejectsBadLimits(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitProduct = "lots per minute"
	_, err := NewRouter(cfg, fetcherFunc(successFetcher), middleware.NewMemoryStore())
	assert.Error(t, err)
}

func TestRouterEndToEnd(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/dp/B0DYGBSM4D",
		httpmock.NewStringResponder(200, "<html><body>Robot Check</body></html>"))
	transport.RegisterResponder("GET", "http://example.test/dp/B000000000",
		httpmock.NewStringResponder(404, "<html>Page Not Found</html>"))

	p := pipeline.New(cfg,
		pipeline.WithLogger(quietLogger()),
		pipeline.WithScraperOptions(scraper.WithTransport(transport)),
	)
	r, err := NewRouter(cfg, p, middleware.NewMemoryStore(), WithLogger(quietLogger()))
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/product/B0DYGBSM4D", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.CodeRequestFailed, decode(t, w)["error_code"])
	assert.Equal(t, cfg.MaxAttempts, transport.GetCallCountInfo()["GET http://example.test/dp/B0DYGBSM4D"])

	w = do(r, http.MethodGet, "/product/B000000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.CodeProductNotFound, decode(t, w)["error_code"])
}
