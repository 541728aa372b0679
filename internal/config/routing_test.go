package config

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	apperrors "z-script-ai-api/pkg/errors"
)

const sampleRouting = `{
  "providers": [
    {"name": "primary", "apiKey": "sk-primary", "baseUrl": "https://a.example/v1", "model": "m-a", "timeoutSeconds": 30},
    {"name": "backup", "apiKey": "sk-backup", "model": "m-b"}
  ],
  "routes": {
    "default": {"provider": "primary", "fallbacks": ["backup"]},
    "chapter": {"provider": "backup", "model": "m-long", "temperature": 0.9, "maxTokens": 8000}
  },
  "defaultLocale": "zh",
  "locales": {"ja": "日本語で回答してください。"},
  "retry": {"maxRetries": 2, "baseDelayMs": 500, "multiplier": 3},
  "unknownField": {"dropped": true}
}`

func TestParseRoutingConfigRoundTrip(t *testing.T) {
	cfg, err := ParseRoutingConfig([]byte(sampleRouting))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	first, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if bytes.Contains(first, []byte("unknownField")) {
		t.Fatalf("unknown field should be dropped, got %s", first)
	}

	again, err := ParseRoutingConfig(first)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(cfg, again) {
		t.Fatalf("round trip mismatch:\n%#v\n%#v", cfg, again)
	}
	second, err := again.Marshal()
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("serialize(parse(x)) != x:\n%s\n%s", first, second)
	}
}

func TestParseRoutingConfigFields(t *testing.T) {
	cfg, err := ParseRoutingConfig([]byte(sampleRouting))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, ok := cfg.Provider("primary")
	if !ok || p.Timeout() != 30*time.Second {
		t.Fatalf("primary provider = %+v, ok=%v", p, ok)
	}
	route := cfg.Routes["chapter"]
	if route.Temperature == nil || *route.Temperature != 0.9 {
		t.Fatalf("chapter temperature = %v", route.Temperature)
	}
	if got := cfg.Routes["default"].Chain(); !reflect.DeepEqual(got, []string{"primary", "backup"}) {
		t.Fatalf("default chain = %v", got)
	}
	if cfg.Retry.EffectiveMaxRetries() != 2 || cfg.Retry.EffectiveBaseDelay() != 500*time.Millisecond || cfg.Retry.EffectiveMultiplier() != 3 {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
}

func TestRetryDefaults(t *testing.T) {
	var r RetryConfig
	if r.EffectiveMaxRetries() != 3 {
		t.Fatalf("max retries = %d", r.EffectiveMaxRetries())
	}
	if r.EffectiveBaseDelay() != time.Second {
		t.Fatalf("base delay = %s", r.EffectiveBaseDelay())
	}
	if r.EffectiveMultiplier() != 2 {
		t.Fatalf("multiplier = %v", r.EffectiveMultiplier())
	}
	zero := 0
	r.MaxRetries = &zero
	if r.EffectiveMaxRetries() != 0 {
		t.Fatalf("explicit zero retries = %d", r.EffectiveMaxRetries())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RoutingConfig
		wantErr string
	}{
		{
			name: "ok",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: "a"}},
				Routes:    map[string]TaskRoute{"default": {Provider: "a"}},
			},
		},
		{
			name: "missing default route",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: "a"}},
				Routes:    map[string]TaskRoute{"plan": {Provider: "a"}},
			},
			wantErr: "routes.default is required",
		},
		{
			name: "duplicate provider",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: "a"}, {Name: "a"}},
				Routes:    map[string]TaskRoute{"default": {Provider: "a"}},
			},
			wantErr: "duplicated",
		},
		{
			name: "unknown route provider",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: "a"}},
				Routes:    map[string]TaskRoute{"default": {Provider: "b"}},
			},
			wantErr: `routes.default.provider references unknown provider "b"`,
		},
		{
			name: "unknown fallback",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: "a"}},
				Routes:    map[string]TaskRoute{"default": {Provider: "a", Fallbacks: []string{"a", "z"}}},
			},
			wantErr: `routes.default.fallbacks[1]`,
		},
		{
			name: "empty provider name",
			cfg: RoutingConfig{
				Providers: []ProviderConfig{{Name: " "}},
				Routes:    map[string]TaskRoute{"default": {Provider: ""}},
			},
			wantErr: "providers[0].name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want contains %q", err, tt.wantErr)
			}
			if !apperrors.HasCode(err, apperrors.CodeConfiguration) {
				t.Fatalf("expected configuration error code, got %v", err)
			}
		})
	}
}

func TestRoutingFromEnvironment(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("LLM_API_KEY", "sk-env")
	t.Setenv("LLM_BASE_URL", "https://api.deepseek.example/v1")
	t.Setenv("LLM_MODEL", "deepseek-chat")
	t.Setenv("LLM_LOCALE", "zh")

	cfg, err := RoutingFromEnvironment()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("providers = %+v", cfg.Providers)
	}
	p := cfg.Providers[0]
	if p.Name != "deepseek" || p.APIKey != "sk-env" || p.Model != "deepseek-chat" {
		t.Fatalf("provider = %+v", p)
	}
	if cfg.Routes[DefaultRouteName].Provider != "deepseek" {
		t.Fatalf("default route = %+v", cfg.Routes[DefaultRouteName])
	}
	if cfg.DefaultLocale != "zh" {
		t.Fatalf("default locale = %q", cfg.DefaultLocale)
	}
}

func TestRoutingFromEnvironmentWithoutKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := RoutingFromEnvironment(); err == nil {
		t.Fatalf("expected error without credential")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ZS_TEST_HOST", "db.internal")
	got := expandEnv("host: ${ZS_TEST_HOST}\nport: ${ZS_TEST_PORT:5432}\nkeep: ${ZS_TEST_UNSET}")
	want := "host: db.internal\nport: 5432\nkeep: ${ZS_TEST_UNSET}"
	if got != want {
		t.Fatalf("expandEnv = %q, want %q", got, want)
	}
}
