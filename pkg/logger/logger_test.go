package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Info(context.Background(), "provider configured", "api_key", "sk-live-123", "apiKey", "sk-live-456", "provider", "openai")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["api_key"] != redactedValue || entry["apiKey"] != redactedValue {
		t.Fatalf("credential leaked: %v", entry)
	}
	if entry["provider"] != "openai" {
		t.Fatalf("provider = %v", entry["provider"])
	}
	if strings.Contains(buf.String(), "sk-live") {
		t.Fatalf("raw output contains secret: %s", buf.String())
	}
}

func TestFromContextCarriesSessionAndRequest(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	t.Cleanup(func() { defaultLogger = nil })

	ctx := WithSession(context.Background(), "s-1")
	ctx = WithContext(ctx, RequestIDKey, "r-1")
	if got := WithSession(ctx, ""); got != ctx {
		t.Fatal("empty session id should not wrap the context")
	}
	Debug(ctx, "loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["session_id"] != "s-1" || entry["request_id"] != "r-1" {
		t.Fatalf("context fields missing: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARNING": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
