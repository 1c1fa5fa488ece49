package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero attempts",
			mutate: func(cfg *Config) {
				cfg.MaxAttempts = 0
			},
			wantErr: "max attempts",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "deadline shorter than timeout",
			mutate: func(cfg *Config) {
				cfg.Deadline = time.Second
				cfg.Timeout = 2 * time.Second
			},
			wantErr: "deadline",
		},
		{
			name: "inverted delay window",
			mutate: func(cfg *Config) {
				cfg.DelayMin = 3 * time.Second
				cfg.DelayMax = time.Second
			},
			wantErr: "delay min",
		},
		{
			name: "backoff above cap",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "jitter out of range",
			mutate: func(cfg *Config) {
				cfg.Jitter = 1.5
			},
			wantErr: "jitter",
		},
		{
			name: "no anchors",
			mutate: func(cfg *Config) {
				cfg.AnchorMarkers = nil
			},
			wantErr: "anchor",
		},
		{
			name: "port out of range",
			mutate: func(cfg *Config) {
				cfg.Port = 70000
			},
			wantErr: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestProductURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://www.amazon.com/"
	if got, want := cfg.ProductURL("B0DYGBSM4D"), "https://www.amazon.com/dp/B0DYGBSM4D"; got != want {
		t.Fatalf("ProductURL = %q, want %q", got, want)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("REQUEST_DELAY_MIN", "0")
	t.Setenv("REQUEST_DELAY_MAX", "2")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("TIMEOUT", "20")
	t.Setenv("PORT", "8080")
	t.Setenv("SCRAPER_BACKOFF", "250ms")
	t.Setenv("RATE_LIMIT_STORAGE_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.DelayMin != 0 || cfg.DelayMax != 2*time.Second {
		t.Fatalf("delay window = [%s, %s], want [0s, 2s]", cfg.DelayMin, cfg.DelayMax)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Timeout != 20*time.Second {
		t.Fatalf("timeout = %s, want 20s", cfg.Timeout)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("retry backoff = %s, want 250ms", cfg.RetryBackoff)
	}
	if cfg.RateLimitStorageURL != "redis://localhost:6379/0" {
		t.Fatalf("storage url = %q", cfg.RateLimitStorageURL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins = %v", cfg.CORSOrigins)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_RETRIES", "three")
	if err := DefaultConfig().ApplyEnv(); err == nil || !strings.Contains(err.Error(), "MAX_RETRIES") {
		t.Fatalf("expected MAX_RETRIES error, got %v", err)
	}
}
