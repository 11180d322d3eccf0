package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
		CDN:    CDNConfig{Concurrency: 3, TimeoutMS: 10000},
	}

	cfg.ApplyOverrides("gemini-2.5-flash-image", 5, 2*time.Second)
	if cfg.Gemini.Model != "gemini-2.5-flash-image" {
		t.Fatalf("model=%q, want %q", cfg.Gemini.Model, "gemini-2.5-flash-image")
	}
	if cfg.CDN.Concurrency != 5 {
		t.Fatalf("concurrency=%d, want 5", cfg.CDN.Concurrency)
	}
	if cfg.CDN.Timeout() != 2*time.Second {
		t.Fatalf("timeout=%v, want 2s", cfg.CDN.Timeout())
	}

	cfg.ApplyOverrides("", 0, 0)
	if cfg.Gemini.Model != "gemini-2.5-flash-image" || cfg.CDN.Concurrency != 5 || cfg.CDN.TimeoutMS != 2000 {
		t.Fatalf("zero overrides changed config: %+v", cfg)
	}
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !cfg.CDN.Enabled {
		t.Error("cdn should be enabled by default")
	}
	if cfg.CDN.Concurrency != 3 {
		t.Errorf("concurrency=%d, want 3", cfg.CDN.Concurrency)
	}
	if cfg.CDN.Timeout() != 10*time.Second {
		t.Errorf("timeout=%v, want 10s", cfg.CDN.Timeout())
	}
	if cfg.CDN.MaxBytes != 20<<20 {
		t.Errorf("max_bytes=%d", cfg.CDN.MaxBytes)
	}
	if cfg.CDN.CacheSize != 64 {
		t.Errorf("cache_size=%d, want 64", cfg.CDN.CacheSize)
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("MY_KEY", "from-ref")

	cfg := &Config{}
	cfg.resolve()
	if cfg.Gemini.APIKey != "from-env" {
		t.Fatalf("api key=%q, want from-env", cfg.Gemini.APIKey)
	}

	cfg = &Config{Gemini: GeminiConfig{APIKey: "${MY_KEY}"}}
	cfg.resolve()
	if cfg.Gemini.APIKey != "from-ref" {
		t.Fatalf("api key=%q, want from-ref", cfg.Gemini.APIKey)
	}
	if cfg.CDN.Concurrency != 3 || cfg.CDN.TimeoutMS != 10000 {
		t.Fatalf("non-positive cdn values not defaulted: %+v", cfg.CDN)
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "gemchat") {
		t.Fatalf("GetConfigDir()=%q", got)
	}
}
