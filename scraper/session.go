package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
)

const (
	responseKey  = "response"
	maxRedirects = 10
)

// RawResponse is what one attempt brought back, before classification.
type RawResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Session owns the cookie jar and connections of a single invocation. It
// must not be shared between invocations or used concurrently.
type Session struct {
	cfg       *config.Config
	collector *colly.Collector
	transport *sessionTransport
	profile   models.TLSProfile
}

// NewSession builds a session on top of base. Each session gets its own
// collector and therefore its own cookie jar.
func NewSession(cfg *config.Config, base http.RoundTripper) (*Session, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	// No AllowedDomains: colly applies it to redirects too, and product pages
	// hop between hosts (apex to www, regional storefronts).
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.SetRedirectHandler(checkRedirect)

	transport := &sessionTransport{base: base}
	collector.WithTransport(transport)

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	return &Session{cfg: cfg, collector: collector, transport: transport}, nil
}

// Fetch issues one GET for code presenting identity id. Failures without an
// HTTP response come back as *NetworkError.
func (s *Session) Fetch(ctx context.Context, code models.ProductCode, id models.Identity) (*RawResponse, error) {
	target := s.cfg.ProductURL(code.String())

	// Pooled connections keep the handshake they were dialed with.
	if id.TLS != s.profile {
		s.closeIdle()
		s.profile = id.TLS
	}

	attemptCtx, cancel := context.WithTimeout(withTLSProfile(ctx, id.TLS), s.cfg.Timeout)
	defer cancel()
	s.transport.bind(attemptCtx)
	defer s.transport.bind(nil)

	cctx := colly.NewContext()
	err := s.collector.Request(http.MethodGet, target, nil, cctx, id.Header())

	r, _ := cctx.GetAny(responseKey).(*colly.Response)
	if r == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		if ctx.Err() != nil {
			// Caller cancellation or invocation deadline, not a flaky network.
			return nil, classifyError("get "+target, ctx.Err())
		}
		return nil, classifyError("get "+target, err)
	}

	raw := &RawResponse{
		URL:        target,
		StatusCode: r.StatusCode,
		Body:       r.Body,
	}
	if r.Headers != nil {
		raw.Header = r.Headers.Clone()
	}
	return raw, nil
}

// Close releases the session's idle connections.
func (s *Session) Close() {
	s.closeIdle()
}

func (s *Session) closeIdle() {
	type idleCloser interface{ CloseIdleConnections() }
	if c, ok := s.transport.base.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

// checkRedirect follows up to maxRedirects hops to any http(s) host.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// sessionTransport scopes every round trip to the context of the attempt in
// flight, so cancellation and the invocation deadline abort the request.
type sessionTransport struct {
	base http.RoundTripper

	mu  sync.Mutex
	ctx context.Context
}

func (t *sessionTransport) bind(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return t.base.RoundTrip(req)
}
