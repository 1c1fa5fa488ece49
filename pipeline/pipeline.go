package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
	"github.com/aluiziolira/go-scrape-asin/parser"
	"github.com/aluiziolira/go-scrape-asin/scraper"
)

// ErrInternal marks faults that escaped a component; callers only ever see
// it as a generic internal error.
var ErrInternal = errors.New("pipeline: internal error")

// Runner performs the retrieval for one validated code.
type Runner interface {
	Run(ctx context.Context, code models.ProductCode) models.ScrapeOutcome
}

// Pipeline composes validation, retrieval and extraction into FetchProduct.
// It keeps no per-request state and is safe for concurrent use.
type Pipeline struct {
	cfg         *config.Config
	runner      Runner
	cache       *expirable.LRU[models.ProductCode, *models.ProductRecord]
	metrics     *scraper.Metrics
	logger      *slog.Logger
	scraperOpts []scraper.Option
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithRunner replaces the default orchestrator.
func WithRunner(r Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithMetrics shares m with the default orchestrator.
func WithMetrics(m *scraper.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger used by the pipeline and its orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithScraperOptions forwards options to the default orchestrator.
func WithScraperOptions(opts ...scraper.Option) Option {
	return func(p *Pipeline) { p.scraperOpts = append(p.scraperOpts, opts...) }
}

// New builds a pipeline for a validated cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		base := []scraper.Option{scraper.WithMetrics(p.metrics), scraper.WithLogger(p.logger)}
		p.runner = scraper.NewOrchestrator(cfg, parser.NewFieldExtractor(cfg.BaseURL), append(base, p.scraperOpts...)...)
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		p.cache = expirable.NewLRU[models.ProductCode, *models.ProductRecord](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return p
}

// FetchProduct validates raw and retrieves the product. The returned error is
// non-nil only for an invalid code (*parser.InvalidCodeError) or an internal
// fault (ErrInternal); every retrieval result is a ScrapeOutcome.
func (p *Pipeline) FetchProduct(ctx context.Context, raw string) (out models.ScrapeOutcome, err error) {
	code, err := parser.ValidateCode(raw)
	if err != nil {
		return models.ScrapeOutcome{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				slog.String("asin", code.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			out, err = models.ScrapeOutcome{Code: code}, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	if p.cache != nil {
		if record, ok := p.cache.Get(code); ok {
			p.metrics.IncCacheHit()
			now := time.Now()
			return models.ScrapeOutcome{
				Kind:      models.OutcomeSuccess,
				Code:      code,
				Record:    record.Clone(),
				StartTime: now,
				EndTime:   now,
				Cached:    true,
			}, nil
		}
	}

	out = p.runner.Run(ctx, code)
	if err := checkOutcome(out); err != nil {
		p.logger.Error("malformed outcome", slog.String("asin", code.String()), slog.Any("error", err))
		return models.ScrapeOutcome{Code: code}, err
	}
	if out.Kind == models.OutcomeSuccess && p.cache != nil {
		p.cache.Add(code, out.Record.Clone())
	}
	return out, nil
}

func checkOutcome(out models.ScrapeOutcome) error {
	switch out.Kind {
	case models.OutcomeSuccess:
		if out.Record == nil {
			return fmt.Errorf("%w: success without record", ErrInternal)
		}
	case models.OutcomeNotFound, models.OutcomeBlocked, models.OutcomeNetworkExhausted, models.OutcomeParseFailed:
		if out.Record != nil {
			return fmt.Errorf("%w: %s outcome carries a record", ErrInternal, out.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown outcome kind %d", ErrInternal, out.Kind)
	}
	return nil
}
