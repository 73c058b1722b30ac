package observability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/model"
)

// NewLogger builds the runtime's JSON logger.
//
// Levels:
//   - error: proxy transport failures, 5xx responses
//   - warn:  missing actions, failed auto-loads, open circuit breakers
//   - info:  server lifecycle, definitions loaded, one line per request
//   - debug: store loads, record saves (redacted), validation outcomes
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig = enc
	zapCfg.Sampling = nil
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.InitialFields = map[string]any{"service": "uibind"}

	return zapCfg.Build()
}

type loggerKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger annotated with RequestFields.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	fields := RequestFields(model.RequestContextFrom(ctx))
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// RequestFields describes a request context as log fields. Empty values are
// left out. The idempotency key is logged as a fingerprint so replays can be
// correlated without writing the key itself.
func RequestFields(rctx *model.RequestContext) []zap.Field {
	if rctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)
	add := func(key, val string) {
		if val != "" {
			fields = append(fields, zap.String(key, val))
		}
	}
	add("correlation_id", rctx.CorrelationID)
	add("trace_id", rctx.TraceID)
	add("span_id", rctx.SpanID)
	add("locale", rctx.LocaleOr(""))
	if rctx.IdempotencyKey != "" {
		add("idempotency_key", fingerprint(rctx.IdempotencyKey))
	}
	return fields
}

func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

// Redacted is the value that replaces masked record fields.
const Redacted = "[REDACTED]"

// defaultRedactedFields are masked in every record regardless of model.
var defaultRedactedFields = []string{
	"password", "secret", "token", "access_token", "refresh_token",
	"api_key", "authorization", "credit_card",
}

// Redactor masks sensitive record fields before records reach a log line.
// Field names match case-insensitively at any nesting depth.
type Redactor struct {
	fields map[string]struct{}
}

// NewRedactor returns a redactor for the default field set plus extra.
func NewRedactor(extra ...string) *Redactor {
	r := &Redactor{fields: make(map[string]struct{}, len(defaultRedactedFields)+len(extra))}
	for _, f := range slices.Concat(defaultRedactedFields, extra) {
		r.fields[strings.ToLower(f)] = struct{}{}
	}
	return r
}

// Masks reports whether field is redacted.
func (r *Redactor) Masks(field string) bool {
	_, ok := r.fields[strings.ToLower(field)]
	return ok
}

// Redact returns a copy of rec with masked fields replaced by Redacted.
// Nested records and lists of records are redacted as well; rec is not
// modified.
func (r *Redactor) Redact(rec model.Record) model.Record {
	if rec == nil {
		return nil
	}
	out := make(model.Record, len(rec))
	for k, v := range rec {
		if r.Masks(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case model.Record:
		return r.Redact(val)
	case map[string]any:
		return map[string]any(r.Redact(val))
	case []model.Record:
		out := make([]model.Record, len(val))
		for i, rec := range val {
			out[i] = r.Redact(rec)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

// Field returns a log field holding the redacted record. Redaction runs
// only when the entry is actually written.
func (r *Redactor) Field(key string, rec model.Record) zap.Field {
	return zap.Object(key, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		redacted := r.Redact(rec)
		keys := make([]string, 0, len(redacted))
		for k := range redacted {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := enc.AddReflected(k, redacted[k]); err != nil {
				return err
			}
		}
		return nil
	}))
}
