package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load returns DefaultConfig overlaid with the process environment. A .env
// file in the working directory is read first when present; variables
// already set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognised environment variables onto c.
func (c *Config) ApplyEnv() error {
	if v, ok := EnvString("SCRAPER_BASE_URL"); ok {
		c.BaseURL = v
	}

	seconds := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_DELAY_MIN", &c.DelayMin},
		{"REQUEST_DELAY_MAX", &c.DelayMax},
		{"TIMEOUT", &c.Timeout},
	}
	for _, s := range seconds {
		v, ok, err := EnvDuration(s.key)
		if err != nil {
			return err
		}
		if ok {
			*s.dst = v
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_DEADLINE", &c.Deadline},
		{"SCRAPER_BACKOFF", &c.RetryBackoff},
		{"SCRAPER_BACKOFF_MAX", &c.RetryBackoffMax},
		{"SCRAPER_CACHE_TTL", &c.CacheTTL},
	}
	for _, d := range durations {
		v, ok, err := EnvDuration(d.key)
		if err != nil {
			return err
		}
		if ok {
			*d.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRIES", &c.MaxAttempts},
		{"PORT", &c.Port},
		{"SCRAPER_MIN_BODY", &c.MinBodySize},
		{"SCRAPER_CACHE_SIZE", &c.CacheSize},
	}
	for _, i := range ints {
		v, ok, err := EnvInt(i.key)
		if err != nil {
			return err
		}
		if ok {
			*i.dst = v
		}
	}

	if v, ok := EnvString("SCRAPER_JITTER"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SCRAPER_JITTER: %w", err)
		}
		c.Jitter = f
	}
	if v, ok := EnvString("SCRAPER_TLS_FINGERPRINT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCRAPER_TLS_FINGERPRINT: %w", err)
		}
		c.TLSFingerprint = b
	}
	if v, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := EnvString("RATE_LIMIT_STORAGE_URL"); ok {
		c.RateLimitStorageURL = v
	}
	if v, ok := EnvString("RATE_LIMIT_DEFAULT"); ok {
		c.RateLimitDefault = v
	}
	if v, ok := EnvString("RATE_LIMIT_PRODUCT"); ok {
		c.RateLimitProduct = v
	}
	if v, ok := EnvList("CORS_ORIGINS"); ok {
		c.CORSOrigins = v
	}
	if v, ok := EnvString("LOG_LEVEL"); ok {
		c.Verbose = strings.EqualFold(v, "debug")
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set and non-empty.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvInt parses key as a base-10 integer.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key either as a Go duration ("750ms") or as a plain
// number of seconds ("3", "0.5").
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), true, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvList splits a comma separated variable, dropping empty items.
func EnvList(key string) ([]string, bool) {
	v, ok := EnvString(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, len(out) > 0
}
