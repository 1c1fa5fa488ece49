package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aluiziolira/go-scrape-asin/parser"
)

var (
	// ErrBlocked is carried by Blocked outcomes.
	ErrBlocked = errors.New("blocked by anti-bot protection")
	// ErrNotFound is carried by NotFound outcomes.
	ErrNotFound = errors.New("product page not found")
	// ErrExhausted is carried by NetworkExhausted outcomes once attempts run out.
	ErrExhausted = errors.New("retry attempts exhausted")
	// ErrDeadline is carried by NetworkExhausted outcomes cut short by the
	// invocation deadline.
	ErrDeadline = errors.New("invocation deadline exceeded")
)

// NetworkError reports an attempt that produced no HTTP response.
type NetworkError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	kind := "connection"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Errorf("%s %s: %w", e.Op, kind, e.Err).Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError reports an attempt that got a response the classifier did not
// accept.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Errorf("http status %d: %w", e.StatusCode, e.Err).Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

var errUnexpectedPage = errors.New("unexpected page")

func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Op: op, Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Op: op, Timeout: true, Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, ErrDeadline) {
		return "deadline"
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if netErr.Timeout {
			return "timeout"
		}
		return "connection"
	}
	if errors.Is(err, ErrBlocked) {
		return "blocked"
	}
	if errors.Is(err, ErrNotFound) {
		return "not_found"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return "transient"
	}
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	return "other"
}
