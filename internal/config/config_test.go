package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFromMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
server:
  http:
    port: ${ZS_TEST_PORT:9090}
authoring:
  async_operations: true
security:
  rate_limit:
    requests_per_second: 50
`)
	writeFile(t, dir, "config.staging.yaml", `
security:
  rate_limit:
    requests_per_second: 5
`)
	t.Setenv("APP_ENV", "staging")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.HTTP.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.HTTP.Port)
	}
	if !cfg.Authoring.AsyncOperations || cfg.Security.RateLimit.RequestsPerSecond != 5 {
		t.Fatalf("authoring/rate limit not merged: %+v %+v", cfg.Authoring, cfg.Security.RateLimit)
	}
	if cfg.Authoring.ConfigCacheTTL != 10*time.Minute || cfg.Authoring.SessionLockTTL != 15*time.Minute {
		t.Fatalf("authoring defaults = %+v", cfg.Authoring)
	}
	if cfg.LLM.DefaultLocale != "en" || cfg.Messaging.RedisStream.RetryLimit != 3 {
		t.Fatalf("llm/messaging defaults = %q %d", cfg.LLM.DefaultLocale, cfg.Messaging.RedisStream.RetryLimit)
	}
}

func TestLoadFromWithoutFiles(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.HTTP.Port != 8080 || cfg.App.Name != "z-script-ai-api" {
		t.Fatalf("defaults not applied: %+v", cfg.App)
	}
}

func TestLoadFromRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
observability:
  tracing:
    sample_rate: 2
`)
	t.Setenv("APP_ENV", "")
	_, err := LoadFrom(dir)
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Fatalf("expected sample rate error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Server.HTTP.Port = 8080
		c.Security.RateLimit = RateLimitConfig{Enabled: true, RequestsPerSecond: 10}
		c.Messaging.RedisStream.RetryLimit = 3
		c.Authoring.AsyncOperations = true
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"port":       func(c *Config) { c.Server.HTTP.Port = 0 },
		"rate limit": func(c *Config) { c.Security.RateLimit.RequestsPerSecond = 0 },
		"retry":      func(c *Config) { c.Messaging.RedisStream.RetryLimit = 0 },
		"sampling":   func(c *Config) { c.Observability.Tracing.SampleRate = -0.1 },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
