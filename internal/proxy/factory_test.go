package proxy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

func testDefaults() config.ProxyDefaults {
	return config.ProxyDefaults{
		Timeout: 5 * time.Second,
		Headers: map[string]string{"X-Client": "uibind", "X-Env": "test"},
		Retry:   config.RetryConfig{MaxAttempts: 2, BackoffInitial: time.Millisecond},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 7, SuccessThreshold: 3, Timeout: time.Minute,
		},
	}
}

func TestFactory_restAppliesDefaults(t *testing.T) {
	f := NewFactory(testDefaults(), query.NewEngine("en"))

	p, err := f.New("users", "id", model.ProxyConfig{
		BaseURL: "http://example.invalid/users",
		Headers: map[string]string{"X-Env": "override"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	cfg := p.Config()
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Headers["X-Client"] != "uibind" || cfg.Headers["X-Env"] != "override" {
		t.Errorf("Headers = %v, want defaults merged under overrides", cfg.Headers)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("Retry.MaxAttempts = %d, want 2", cfg.Retry.MaxAttempts)
	}
	if cfg.CircuitBreaker.FailureThreshold != 7 {
		t.Errorf("CircuitBreaker.FailureThreshold = %d, want 7", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.Reader.Root != "data" {
		t.Errorf("Reader.Root = %q, want data", cfg.Reader.Root)
	}
}

func TestFactory_errors(t *testing.T) {
	f := NewFactory(testDefaults(), nil)

	tests := []struct {
		name string
		cfg  model.ProxyConfig
		want string
	}{
		{"a", model.ProxyConfig{Kind: model.ProxyREST}, "requires a url"},
		{"b", model.ProxyConfig{Kind: model.ProxyPostgres, Table: "b"}, "postgres storage is not configured"},
		{"c", model.ProxyConfig{Kind: "grpc"}, "unsupported type"},
	}
	for _, tt := range tests {
		_, err := f.New(tt.name, "id", tt.cfg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("New(%s) error = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestFactory_memoryCollectionsAreShared(t *testing.T) {
	f := NewFactory(testDefaults(), query.NewEngine("en"))
	ctx := context.Background()

	writer, err := f.New("users-model", "id", model.ProxyConfig{Kind: model.ProxyMemory, Collection: "users"})
	if err != nil {
		t.Fatalf("New writer: %v", err)
	}
	reader, err := f.New("users-store", "id", model.ProxyConfig{Kind: model.ProxyMemory, Collection: "users"})
	if err != nil {
		t.Fatalf("New reader: %v", err)
	}

	if _, err := writer.Create(ctx, map[string]any{"name": "Ana"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	raw, err := reader.Read(ctx, model.QuerySpec{})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	data, total := reader.UnwrapList(raw)
	if total != 1 || len(data) != 1 || data[0]["name"] != "Ana" {
		t.Errorf("reader sees %v (total %d), want Ana", data, total)
	}
	if f.Collection("users", "id") != f.Collection("users", "id") {
		t.Error("Collection returned different instances for the same name")
	}
}

type recordingConn struct {
	execs []string
}

func (c *recordingConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (c *recordingConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (c *recordingConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestFactory_ensureTables(t *testing.T) {
	conn := &recordingConn{}
	f := NewFactory(testDefaults(), nil, WithPostgres(conn))

	if _, err := f.New("orders", "id", model.ProxyConfig{Kind: model.ProxyPostgres, Table: "orders"}); err != nil {
		t.Fatalf("New(orders) error: %v", err)
	}
	if _, err := f.New("notes", "id", model.ProxyConfig{Kind: model.ProxyMemory}); err != nil {
		t.Fatalf("New(notes) error: %v", err)
	}

	if err := f.EnsureTables(context.Background()); err != nil {
		t.Fatalf("EnsureTables error: %v", err)
	}
	if len(conn.execs) != 1 {
		t.Fatalf("execs = %d, want 1", len(conn.execs))
	}
	if sql := conn.execs[0]; !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS") || !strings.Contains(sql, "orders") {
		t.Errorf("exec = %q, want CREATE TABLE IF NOT EXISTS for orders", sql)
	}
}
