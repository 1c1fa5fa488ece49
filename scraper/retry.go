package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
)

// State is a step of the per-invocation retry state machine.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateSucceeded
	StateBlocked
	StateNotFound
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateBlocked:
		return "blocked"
	case StateNotFound:
		return "not_found"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

var transitions = map[State][]State{
	StatePending:    {StateAttempting, StateExhausted},
	StateAttempting: {StateAttempting, StateSucceeded, StateBlocked, StateNotFound, StateExhausted},
}

type machine struct {
	state State
}

// to moves the machine along a legal edge. An illegal edge is a programming
// error and panics; the pipeline boundary turns it into an internal error.
func (m *machine) to(next State) {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return
		}
	}
	panic(fmt.Sprintf("scraper: illegal transition %s -> %s", m.state, next))
}

// Extractor turns an accepted page into a record.
type Extractor interface {
	Extract(body []byte, code models.ProductCode) (*models.ProductRecord, error)
}

// Orchestrator drives one session through bounded, paced attempts and turns
// the classified responses into a single ScrapeOutcome.
type Orchestrator struct {
	cfg        *config.Config
	classifier *Classifier
	extractor  Extractor
	rotators   func() IdentityRotator
	transports func() http.RoundTripper
	metrics    *Metrics
	logger     *slog.Logger
	sleep      func(context.Context, time.Duration) error
	random     func() float64
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRotators sets the source of per-invocation identity rotators.
func WithRotators(fn func() IdentityRotator) Option {
	return func(o *Orchestrator) { o.rotators = fn }
}

// WithTransport makes every session use rt instead of a fresh transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *Orchestrator) {
		o.transports = func() http.RoundTripper { return rt }
	}
}

// WithMetrics records attempts and outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithRandom replaces the [0,1) source used for pacing and jitter.
func WithRandom(fn func() float64) Option {
	return func(o *Orchestrator) { o.random = fn }
}

// NewOrchestrator builds an orchestrator for a validated cfg.
func NewOrchestrator(cfg *config.Config, extractor Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		classifier: NewClassifier(cfg),
		extractor:  extractor,
		rotators:   DefaultIdentityPool().NewRotator,
		transports: func() http.RoundTripper { return NewTransport(cfg) },
		logger:     slog.Default(),
		sleep:      sleepContext,
		random:     rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs at most cfg.MaxAttempts fetches for code. Not-found ends the
// run at once; soft blocks and transient failures are retried with a fresh
// identity. The run is bounded by cfg.Deadline and by ctx.
func (o *Orchestrator) Run(ctx context.Context, code models.ProductCode) models.ScrapeOutcome {
	out := models.ScrapeOutcome{Code: code, StartTime: time.Now()}
	m := &machine{state: StatePending}

	ctx, cancel := context.WithTimeoutCause(ctx, o.cfg.Deadline, ErrDeadline)
	defer cancel()

	session, err := NewSession(o.cfg, o.transports())
	if err != nil {
		m.to(StateExhausted)
		out.Kind, out.Err = models.OutcomeNetworkExhausted, err
		return o.finish(out, m)
	}
	defer session.Close()

	rotator := o.rotators()
	var (
		lastErr     error
		lastBlocked bool
		aborted     bool
	)

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		wait := o.wait(attempt)
		o.metrics.ObserveWait(wait)
		if err := o.sleep(ctx, wait); err != nil {
			aborted, lastErr = true, abortCause(ctx)
			break
		}
		if attempt > 1 {
			o.metrics.IncRetries()
		}
		m.to(StateAttempting)

		id := rotator.Next()
		start := time.Now()
		resp, err := session.Fetch(ctx, code, id)
		rec := models.FetchAttempt{
			Ordinal:  attempt,
			Identity: id.Name,
			Wait:     wait,
			Duration: time.Since(start),
		}
		o.metrics.ObserveDuration(rec.Duration)

		if err != nil {
			rec.Classification, rec.Err = models.ClassTransient, err
			out.Attempts = append(out.Attempts, rec)
			o.recordAttempt(code, rec)
			lastErr, lastBlocked = err, false
			if ctx.Err() != nil {
				aborted, lastErr = true, abortCause(ctx)
				break
			}
			continue
		}

		rec.StatusCode = resp.StatusCode
		rec.Classification = o.classifier.Classify(resp)
		switch rec.Classification {
		case models.ClassOK:
			out.Attempts = append(out.Attempts, rec)
			o.recordAttempt(code, rec)
			m.to(StateSucceeded)
			record, err := o.extractor.Extract(resp.Body, code)
			if err != nil {
				out.Kind, out.Err = models.OutcomeParseFailed, err
				o.metrics.IncError(errorTypeLabel(err))
				return o.finish(out, m)
			}
			out.Kind, out.Record = models.OutcomeSuccess, record
			return o.finish(out, m)

		case models.ClassNotFound:
			rec.Err = ErrNotFound
			out.Attempts = append(out.Attempts, rec)
			o.recordAttempt(code, rec)
			m.to(StateNotFound)
			out.Kind, out.Err = models.OutcomeNotFound, ErrNotFound
			return o.finish(out, m)

		case models.ClassSoftBlocked:
			rec.Err = &StatusError{StatusCode: resp.StatusCode, Err: ErrBlocked}
			lastBlocked = true

		default:
			rec.Err = &StatusError{StatusCode: resp.StatusCode, Err: errUnexpectedPage}
			lastBlocked = false
		}
		out.Attempts = append(out.Attempts, rec)
		o.recordAttempt(code, rec)
		lastErr = rec.Err
	}

	switch {
	case aborted:
		m.to(StateExhausted)
		out.Kind, out.Err = models.OutcomeNetworkExhausted, lastErr
	case lastBlocked:
		m.to(StateBlocked)
		out.Kind = models.OutcomeBlocked
		out.Err = fmt.Errorf("%w after %d attempts: %w", ErrBlocked, len(out.Attempts), lastErr)
	default:
		m.to(StateExhausted)
		out.Kind = models.OutcomeNetworkExhausted
		out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, len(out.Attempts), lastErr)
	}
	return o.finish(out, m)
}

func (o *Orchestrator) recordAttempt(code models.ProductCode, rec models.FetchAttempt) {
	o.metrics.IncAttempt(rec.Classification)
	if rec.Err != nil {
		o.metrics.IncError(errorTypeLabel(rec.Err))
	}
	o.logger.Debug("fetch attempt",
		slog.String("asin", code.String()),
		slog.Int("attempt", rec.Ordinal),
		slog.String("identity", rec.Identity),
		slog.Duration("wait", rec.Wait),
		slog.Duration("duration", rec.Duration),
		slog.Int("status", rec.StatusCode),
		slog.String("classification", rec.Classification.String()),
		slog.Any("error", rec.Err),
	)
}

func (o *Orchestrator) finish(out models.ScrapeOutcome, m *machine) models.ScrapeOutcome {
	out.EndTime = time.Now()
	o.metrics.IncOutcome(out.Kind)

	attrs := []any{
		slog.String("asin", out.Code.String()),
		slog.String("outcome", out.Kind.String()),
		slog.String("state", m.state.String()),
		slog.Int("attempts", len(out.Attempts)),
		slog.Duration("elapsed", out.Duration()),
	}
	if out.Kind == models.OutcomeSuccess {
		o.logger.Info("scrape finished", attrs...)
		return out
	}
	o.logger.Warn("scrape failed", append(attrs, slog.Any("error", out.Err))...)
	return out
}

// Backoff is the deterministic retry delay after failed attempt n:
// RetryBackoff * 2^(n-1), capped at RetryBackoffMax.
func (o *Orchestrator) Backoff(n int) time.Duration {
	if n <= 0 {
		n = 1
	}
	base := o.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}
	shift := n - 1
	if shift > 30 {
		shift = 30
	}
	delay := base * time.Duration(1<<shift)
	if max := o.cfg.RetryBackoffMax; max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}

// jitteredBackoff stretches Backoff(n) by up to Jitter of itself and caps the
// result again, which keeps the sequence non-decreasing for Jitter <= 1.
func (o *Orchestrator) jitteredBackoff(n int) time.Duration {
	delay := o.Backoff(n)
	if o.cfg.Jitter > 0 {
		delay += time.Duration(o.cfg.Jitter * o.random() * float64(delay))
	}
	if max := o.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (o *Orchestrator) pacing() time.Duration {
	lo, hi := o.cfg.DelayMin, o.cfg.DelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(o.random()*float64(hi-lo))
}

// wait is the pause before attempt: pacing always, plus backoff on retries.
func (o *Orchestrator) wait(attempt int) time.Duration {
	d := o.pacing()
	if attempt > 1 {
		d += o.jitteredBackoff(attempt - 1)
	}
	return d
}

func abortCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrDeadline) || errors.Is(cause, context.DeadlineExceeded) {
		return ErrDeadline
	}
	return cause
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
