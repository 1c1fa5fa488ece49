package models

import "time"

// Classification is the verdict on one raw response before any extraction.
type Classification int

const (
	ClassOK Classification = iota + 1
	ClassSoftBlocked
	ClassNotFound
	ClassTransient
)

func (c Classification) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassSoftBlocked:
		return "soft_blocked"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient_error"
	default:
		return "unknown"
	}
}

// FetchAttempt describes one iteration of the retry loop. Attempts live only
// as long as the outcome that carries them.
type FetchAttempt struct {
	Ordinal        int
	Identity       string
	Wait           time.Duration
	Duration       time.Duration
	StatusCode     int
	Classification Classification
	Err            error
}

// OutcomeKind enumerates the terminal results of one pipeline invocation.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeNotFound
	OutcomeBlocked
	OutcomeNetworkExhausted
	OutcomeParseFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeNetworkExhausted:
		return "network_exhausted"
	case OutcomeParseFailed:
		return "parse_failed"
	default:
		return "unknown"
	}
}

// ScrapeOutcome is the terminal result of one invocation. Record is set only
// when Kind is OutcomeSuccess; Err explains every other kind.
type ScrapeOutcome struct {
	Kind      OutcomeKind
	Code      ProductCode
	Record    *ProductRecord
	Attempts  []FetchAttempt
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Cached    bool
}

// OK reports whether the outcome carries a record.
func (o ScrapeOutcome) OK() bool {
	return o.Kind == OutcomeSuccess && o.Record != nil
}

// Duration is the wall time spent producing the outcome.
func (o ScrapeOutcome) Duration() time.Duration {
	return o.EndTime.Sub(o.StartTime)
}
