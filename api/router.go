package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-scrape-asin/api/handler"
	"github.com/aluiziolira/go-scrape-asin/api/middleware"
	"github.com/aluiziolira/go-scrape-asin/config"
)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option customises NewRouter.
type Option func(*options)

// WithLogger sets the access and recovery logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for scraped_at and health timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  RequestID → AccessLog → Recovery
//	Routes:  RateLimit (default limits for / and /health, product limits for /product)
//
// Unknown routes are not rate limited.
func NewRouter(cfg *config.Config, f handler.Fetcher, store middleware.Store, opts ...Option) (*gin.Engine, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	defaultLimits, err := middleware.ParseLimits(cfg.RateLimitDefault)
	if err != nil {
		return nil, fmt.Errorf("default rate limit: %w", err)
	}
	productLimits, err := middleware.ParseLimits(cfg.RateLimitProduct)
	if err != nil {
		return nil, fmt.Errorf("product rate limit: %w", err)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(o.logger))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		o.logger.Error("handler panic",
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(handler.InternalError())
	}))

	general := r.Group("", middleware.RateLimit(store, "default", defaultLimits, o.logger))
	general.GET("/", handler.Home(cfg.RateLimitDefault, cfg.RateLimitProduct))
	general.GET("/health", handler.Health(o.now))

	product := r.Group("/product", middleware.RateLimit(store, "product", productLimits, o.logger))
	product.GET("/:asin", handler.GetProduct(f, o.now))
	product.POST("", handler.PostProduct(f, o.now))

	r.NoRoute(handler.NotFound)

	return r, nil
}
