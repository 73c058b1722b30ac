package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/model"
)

func newBufferLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel))
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		disabled  zapcore.Level
		checkDown bool
	}{
		{level: "info", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDown: true},
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel, checkDown: true},
		{level: "bogus", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel, checkDown: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Sync()

			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if tt.checkDown && logger.Core().Enabled(tt.disabled) {
				t.Errorf("%v should not be enabled", tt.disabled)
			}
		})
	}
}

func TestLoggerFrom(t *testing.T) {
	logger := zap.NewNop()
	if got := LoggerFrom(WithLogger(context.Background(), logger), nil); got != logger {
		t.Error("LoggerFrom should return the stored logger")
	}
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return fallback when no logger in context")
	}
}

func TestRequestLogger_enrichesWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		CorrelationID:  "corr-abc",
		TraceID:        "trace-xyz",
		SpanID:         "span-1",
		Locale:         "pt-BR,pt;q=0.9",
		IdempotencyKey: "order-42",
	})

	RequestLogger(ctx, logger).Info("store loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	for key, want := range map[string]string{
		"correlation_id":  "corr-abc",
		"trace_id":        "trace-xyz",
		"span_id":         "span-1",
		"locale":          "pt-BR",
		"idempotency_key": fingerprint("order-42"),
		"msg":             "store loaded",
	} {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if strings.Contains(buf.String(), "order-42") {
		t.Error("raw idempotency key was logged")
	}
}

func TestRequestLogger_omitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{CorrelationID: "c", Locale: "*"})
	RequestLogger(ctx, logger).Info("x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	for _, key := range []string{"trace_id", "span_id", "locale", "idempotency_key"} {
		if _, ok := entry[key]; ok {
			t.Errorf("%s should be omitted when empty", key)
		}
	}
}

func TestRequestLogger_noRequestContext(t *testing.T) {
	var buf bytes.Buffer
	RequestLogger(context.Background(), newBufferLogger(&buf)).Info("bare")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if _, ok := entry["correlation_id"]; ok {
		t.Error("correlation_id should not be present without RequestContext")
	}
}

func TestFingerprint_isStable(t *testing.T) {
	a, b := fingerprint("k1"), fingerprint("k1")
	if a != b || len(a) != 12 {
		t.Errorf("fingerprint = %q, %q, want equal 12-char values", a, b)
	}
	if fingerprint("k2") == a {
		t.Error("different keys share a fingerprint")
	}
}

func TestRedactor_Redact(t *testing.T) {
	r := NewRedactor("PIN")
	rec := model.Record{
		"name":     "John",
		"Password": "secret123",
		"pin":      "1234",
		"profile":  model.Record{"token": "abc", "city": "Lisbon"},
		"devices":  []any{map[string]any{"api_key": "k", "os": "linux"}},
	}

	got := r.Redact(rec)
	if got["name"] != "John" {
		t.Errorf("name = %v, want John", got["name"])
	}
	for _, key := range []string{"Password", "pin"} {
		if got[key] != Redacted {
			t.Errorf("%s = %v, want %s", key, got[key], Redacted)
		}
	}
	profile, ok := got["profile"].(model.Record)
	if !ok {
		t.Fatalf("profile = %T, want model.Record", got["profile"])
	}
	if profile["token"] != Redacted || profile["city"] != "Lisbon" {
		t.Errorf("profile = %v", profile)
	}
	device := got["devices"].([]any)[0].(map[string]any)
	if device["api_key"] != Redacted || device["os"] != "linux" {
		t.Errorf("device = %v", device)
	}

	if rec["Password"] != "secret123" || rec["profile"].(model.Record)["token"] != "abc" {
		t.Error("original record was mutated")
	}
	if r.Redact(nil) != nil {
		t.Error("Redact(nil) should be nil")
	}
}

func TestRedactor_Field(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	r := NewRedactor("ssn")
	logger.Debug("creating record", r.Field("record", model.Record{"name": "Ana", "ssn": "123-45"}))

	var entry struct {
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry.Record["name"] != "Ana" || entry.Record["ssn"] != Redacted {
		t.Errorf("record = %v", entry.Record)
	}
	if strings.Contains(buf.String(), "123-45") {
		t.Error("sensitive value reached the log")
	}
}
