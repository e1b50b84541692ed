package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// TestNewConfig documents the defaults. A failing case here means a default
// changed, which should be intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxConcurrentRequests is 10", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxConcurrentRequests != 10 {
			t.Errorf("expected 10, got %d", cfg.MaxConcurrentRequests)
		}
	})

	t.Run("default BatchSize is 50", func(t *testing.T) {
		t.Parallel()
		if cfg.BatchSize != 50 {
			t.Errorf("expected 50, got %d", cfg.BatchSize)
		}
	})

	t.Run("default cache sizes are 1000", func(t *testing.T) {
		t.Parallel()
		if cfg.CacheSize != 1000 || cfg.ParseCacheSize != 1000 {
			t.Errorf("expected 1000/1000, got %d/%d", cfg.CacheSize, cfg.ParseCacheSize)
		}
	})

	t.Run("default request timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.RequestTimeout() != 30*time.Second {
			t.Errorf("expected 30s, got %v", cfg.RequestTimeout())
		}
	})

	t.Run("default rate limit delay is 100ms", func(t *testing.T) {
		t.Parallel()
		if cfg.RateLimitDelay() != 100*time.Millisecond {
			t.Errorf("expected 100ms, got %v", cfg.RateLimitDelay())
		}
	})

	t.Run("default retry policy is 3 attempts from 1 second", func(t *testing.T) {
		t.Parallel()
		if cfg.RetryAttempts != 3 {
			t.Errorf("expected 3 attempts, got %d", cfg.RetryAttempts)
		}
		if cfg.BackoffBase() != time.Second {
			t.Errorf("expected 1s backoff base, got %v", cfg.BackoffBase())
		}
		if !slices.Equal(cfg.RetryableStatusCodes, []int{429, 500, 502, 503, 504}) {
			t.Errorf("unexpected retryable codes %v", cfg.RetryableStatusCodes)
		}
	})

	t.Run("default DNS cache TTL is 5 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.DNSCacheTTL() != 5*time.Minute {
			t.Errorf("expected 5m, got %v", cfg.DNSCacheTTL())
		}
	})

	t.Run("default outputs are CSV and the database", func(t *testing.T) {
		t.Parallel()
		if cfg.CSVPath != DefaultCSVPath || cfg.JSONLPath != "" || cfg.NoDB {
			t.Errorf("unexpected outputs csv=%q jsonl=%q noDB=%v", cfg.CSVPath, cfg.JSONLPath, cfg.NoDB)
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("default sort is by code with discovery on", func(t *testing.T) {
		t.Parallel()
		if cfg.Sort != "code" || !cfg.DiscoverPages {
			t.Errorf("sort=%q discover=%v", cfg.Sort, cfg.DiscoverPages)
		}
	})

	t.Run("defaults do not share the retryable code slice", func(t *testing.T) {
		t.Parallel()
		other := NewConfig()
		other.RetryableStatusCodes[0] = 999
		if DefaultRetryableStatusCodes[0] != 429 {
			t.Error("NewConfig leaked the package default slice")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.BaseURLs = []string{"https://kabuyoho.jp/calender?lst=20251119"}
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no base URL", func(c *Config) { c.BaseURLs = nil }, ErrNoTarget},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentRequests = 0 }, ErrInvalidMaxConcurrent},
		{"negative concurrency", func(c *Config) { c.MaxConcurrentRequests = -1 }, ErrInvalidMaxConcurrent},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"zero cache size", func(c *Config) { c.CacheSize = 0 }, ErrInvalidCacheSize},
		{"zero parse cache size", func(c *Config) { c.ParseCacheSize = 0 }, ErrInvalidParseCacheSize},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, ErrInvalidTimeout},
		{"negative delay", func(c *Config) { c.RateLimitDelaySeconds = -0.1 }, ErrInvalidRateLimitDelay},
		{"zero attempts", func(c *Config) { c.RetryAttempts = 0 }, ErrInvalidRetryAttempts},
		{"negative backoff", func(c *Config) { c.RetryBackoffBase = -1 }, ErrInvalidBackoffBase},
		{"bogus status code", func(c *Config) { c.RetryableStatusCodes = []int{503, 42} }, ErrInvalidStatusCode},
		{"negative DNS TTL", func(c *Config) { c.DNSCacheTTLSeconds = -1 }, ErrInvalidDNSCacheTTL},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"unknown sort", func(c *Config) { c.Sort = "name" }, ErrInvalidSortOrder},
		{"unknown summary", func(c *Config) { c.SummaryFormat = "html" }, ErrInvalidSummaryFormat},
		{"negative top", func(c *Config) { c.TopN = -1 }, ErrInvalidTopN},
		{"no output", func(c *Config) {
			c.CSVPath = ""
			c.JSONLPath = ""
			c.NoDB = true
		}, ErrNoOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("zero delay and zero backoff are allowed", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.RateLimitDelaySeconds = 0
		cfg.RetryBackoffBase = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("database alone is a valid output", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.CSVPath = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestSiteFor(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Defaults = SiteConfig{
		Cookie:  "default=abc",
		Headers: map[string]string{"Accept-Language": "ja", "X-Trace": "1"},
	}
	cfg.Sites = map[string]SiteConfig{
		"kabuyoho.jp": {
			Cookie:  "session=xyz",
			Headers: map[string]string{"X-Trace": "2"},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()

		got := cfg.SiteFor("example.com")
		if got.Cookie != "default=abc" || got.Headers["X-Trace"] != "1" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("site entry overrides defaults key by key", func(t *testing.T) {
		t.Parallel()

		got := cfg.SiteFor("kabuyoho.jp")
		if got.Cookie != "session=xyz" {
			t.Errorf("cookie = %q", got.Cookie)
		}
		if got.Headers["X-Trace"] != "2" || got.Headers["Accept-Language"] != "ja" {
			t.Errorf("headers = %v", got.Headers)
		}
	})

	t.Run("merging does not modify defaults", func(t *testing.T) {
		t.Parallel()

		_ = cfg.SiteFor("kabuyoho.jp")
		if cfg.Defaults.Headers["X-Trace"] != "1" {
			t.Error("defaults were modified")
		}
	})

	t.Run("empty config", func(t *testing.T) {
		t.Parallel()

		got := NewConfig().SiteFor("kabuyoho.jp")
		if got.Cookie != "" || got.Headers != nil {
			t.Errorf("got %+v", got)
		}
	})
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		err := LoadConfigFile("/nonexistent/path/.earnscan", NewConfig())
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
	})

	t.Run("file values override defaults and keep the rest", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, t.TempDir(), ".earnscan", `baseURLs:
  - https://kabuyoho.jp/calender?lst=20251119
maxConcurrentRequests: 4
rateLimitDelaySeconds: 0.5
retryableStatusCodes: [503]
sort: dividend_yield
jsonl: out/earnings.jsonl
defaults:
  cookie: "default=abc"
sites:
  kabuyoho.jp:
    headers:
      Referer: "https://kabuyoho.jp/"
`)

		cfg := NewConfig()
		if err := LoadConfigFile(path, cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxConcurrentRequests != 4 {
			t.Errorf("MaxConcurrentRequests = %d", cfg.MaxConcurrentRequests)
		}
		if cfg.RateLimitDelay() != 500*time.Millisecond {
			t.Errorf("RateLimitDelay = %v", cfg.RateLimitDelay())
		}
		if !slices.Equal(cfg.RetryableStatusCodes, []int{503}) {
			t.Errorf("RetryableStatusCodes = %v", cfg.RetryableStatusCodes)
		}
		if cfg.Sort != "dividend_yield" || cfg.JSONLPath != "out/earnings.jsonl" {
			t.Errorf("sort=%q jsonl=%q", cfg.Sort, cfg.JSONLPath)
		}
		if cfg.BatchSize != DefaultBatchSize || cfg.CSVPath != DefaultCSVPath {
			t.Errorf("defaults lost: batch=%d csv=%q", cfg.BatchSize, cfg.CSVPath)
		}
		if cfg.SiteFor("kabuyoho.jp").Headers["Referer"] != "https://kabuyoho.jp/" {
			t.Errorf("site headers = %v", cfg.Sites)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q", cfg.ConfigFilePath)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("loaded config is invalid: %v", err)
		}
	})

	t.Run("empty file is accepted", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, t.TempDir(), ".earnscan", "")
		cfg := NewConfig()
		if err := LoadConfigFile(path, cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxConcurrentRequests != DefaultMaxConcurrentRequests {
			t.Error("empty file changed a default")
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, t.TempDir(), ".earnscan", `invalid: yaml: content: [}`)
		if err := LoadConfigFile(path, NewConfig()); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns error for unknown keys", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, t.TempDir(), ".earnscan", "maxConcurrent: 4\n")
		if err := LoadConfigFile(path, NewConfig()); err == nil {
			t.Error("expected error for misspelled key")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "custom.yaml", "sort: none\n")
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("finds .earnscan in the current directory", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, DefaultConfigFile, "sort: none\n")
		t.Chdir(dir)

		got := FindConfigFile("")
		if filepath.Base(got) != DefaultConfigFile {
			t.Errorf("expected %s, got %q", DefaultConfigFile, got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end in %s", name, dir, AppName)
		}
	}
}
