package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper and service configuration. It is built once at startup
// and passed by pointer; nothing mutates it after Validate.
type Config struct {
	BaseURL     string
	MaxAttempts int
	Timeout     time.Duration // per attempt
	Deadline    time.Duration // whole invocation, backoff included

	DelayMin        time.Duration
	DelayMax        time.Duration
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Jitter          float64 // fraction of the backoff, 0..1

	MinBodySize     int
	MaxBodySize     int
	NotFoundMarkers []string
	BlockMarkers    []string
	AnchorMarkers   []string
	TLSFingerprint  bool

	CacheSize int
	CacheTTL  time.Duration

	Port                int
	MetricsAddr         string
	RateLimitStorageURL string
	RateLimitDefault    string
	RateLimitProduct    string
	CORSOrigins         []string
	Verbose             bool
}

// DefaultConfig returns defaults matching the public product page layout.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://www.amazon.com",
		MaxAttempts:     3,
		Timeout:         15 * time.Second,
		Deadline:        45 * time.Second,
		DelayMin:        1 * time.Second,
		DelayMax:        3 * time.Second,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 4 * time.Second,
		Jitter:          0.2,
		MinBodySize:     2048,
		MaxBodySize:     10 << 20,
		NotFoundMarkers: []string{
			"page not found",
			"looking for something?",
			"we couldn't find that page",
			"dogs of amazon",
		},
		BlockMarkers: []string{
			"captcha",
			"enter the characters you see below",
			"type the characters you see in this image",
			"sorry, we just need to make sure you're not a robot",
			"automated access",
			"api-services-support@amazon.com",
			"access denied",
		},
		AnchorMarkers: []string{
			`id="producttitle"`,
			`id="title_feature_div"`,
			`id="dp-container"`,
			`id="ppd"`,
		},
		TLSFingerprint:      true,
		CacheSize:           256,
		CacheTTL:            10 * time.Minute,
		Port:                12000,
		RateLimitStorageURL: "memory://",
		RateLimitDefault:    "100 per hour;20 per minute",
		RateLimitProduct:    "10 per minute",
		CORSOrigins:         []string{"*"},
	}
}

// ProductURL builds the canonical product page URL for a validated code.
func (c *Config) ProductURL(code string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/dp/" + code
}

// Addr is the listen address of the HTTP service.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive")
	}
	if c.Deadline < c.Timeout {
		return fmt.Errorf("deadline (%s) cannot be shorter than timeout (%s)", c.Deadline, c.Timeout)
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.DelayMin > c.DelayMax {
		return fmt.Errorf("delay min (%s) cannot exceed delay max (%s)", c.DelayMin, c.DelayMax)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1")
	}
	if c.MinBodySize < 0 {
		return fmt.Errorf("min body size cannot be negative")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if len(c.AnchorMarkers) == 0 {
		return fmt.Errorf("at least one anchor marker is required")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.RateLimitStorageURL == "" {
		return fmt.Errorf("rate limit storage url cannot be empty")
	}

	return nil
}
