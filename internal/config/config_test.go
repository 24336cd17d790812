package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  dsn: \":memory:\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Search.DefaultMaxCount != 10 {
		t.Errorf("expected default max count 10, got %d", cfg.Search.DefaultMaxCount)
	}
	if cfg.Cache.Size != 16 {
		t.Errorf("expected default cache size 16, got %d", cfg.Cache.Size)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("expected dsn to be kept, got %q", cfg.Database.DSN)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SIMSEARCH_TEST_DSN", "/tmp/x.sqlite")
	data := []byte("database:\n  dsn: ${SIMSEARCH_TEST_DSN}\nhttp:\n  port: ${SIMSEARCH_TEST_UNSET_PORT:-9090}\n")
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "/tmp/x.sqlite" {
		t.Errorf("expected expanded dsn, got %q", cfg.Database.DSN)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected default-expanded port 9090, got %d", cfg.HTTP.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port too large", mutate: func(c *Config) { c.HTTP.Port = 70000 }, wantErr: true},
		{name: "negative port", mutate: func(c *Config) { c.HTTP.Port = -1 }, wantErr: true},
		{name: "negative shards", mutate: func(c *Config) { c.Search.Shards = -2 }, wantErr: true},
		{name: "min similarity above one", mutate: func(c *Config) { c.Search.DefaultMinSimilarity = 1.5 }, wantErr: true},
		{name: "min similarity negative ok", mutate: func(c *Config) { c.Search.DefaultMinSimilarity = -0.5 }},
		{name: "negative rate limit", mutate: func(c *Config) { c.Search.RateLimit = -1 }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "upper case level", mutate: func(c *Config) { c.Logging.Level = "WARN" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{}
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyDefaults_RateBurst(t *testing.T) {
	cfg := Config{Search: SearchConfig{RateLimit: 0.5}}
	cfg.ApplyDefaults()
	if cfg.Search.RateBurst != 1 {
		t.Errorf("expected burst 1 for sub-unit rate, got %d", cfg.Search.RateBurst)
	}
	cfg = Config{Search: SearchConfig{RateLimit: 50}}
	cfg.ApplyDefaults()
	if cfg.Search.RateBurst != 50 {
		t.Errorf("expected burst to follow rate, got %d", cfg.Search.RateBurst)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte("search:\n  shards: 3\n  default_max_count: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.Shards != 3 || cfg.Search.DefaultMaxCount != 5 {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level in local config, got %q", cfg.Logging.Level)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
