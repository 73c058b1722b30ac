package proxy

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

// Factory builds proxies from definitions, applying process-wide defaults
// and sharing memory collections and the Postgres pool between them.
type Factory struct {
	defaults config.ProxyDefaults
	engine   *query.Engine
	db       PgConn
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]*MemoryCollection
	tables      []*PostgresTransport
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithPostgres enables "postgres" proxies.
func WithPostgres(db PgConn) FactoryOption {
	return func(f *Factory) { f.db = db }
}

// WithFactoryMetrics records metrics for built HTTP transports.
func WithFactoryMetrics(m *observability.Metrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithFactoryLogger sets the logger handed to built transports.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// NewFactory creates a Factory. engine evaluates queries of memory proxies.
func NewFactory(defaults config.ProxyDefaults, engine *query.Engine, opts ...FactoryOption) *Factory {
	f := &Factory{
		defaults:    defaults,
		engine:      engine,
		logger:      zap.NewNop(),
		collections: make(map[string]*MemoryCollection),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New builds a proxy named name for a collection keyed by idProperty.
func (f *Factory) New(name, idProperty string, cfg model.ProxyConfig) (*Proxy, error) {
	cfg = f.applyDefaults(cfg)

	var transport Transport
	switch cfg.Kind {
	case model.ProxyREST:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("proxy %s: rest proxy requires a url", name)
		}
		transport = NewHTTPTransport(name, cfg,
			WithMetrics(f.metrics),
			WithLogger(f.logger.With(zap.String("proxy", name))),
		)
	case model.ProxyMemory:
		transport = NewMemoryTransport(f.Collection(collectionKey(name, cfg), idProperty), cfg)
	case model.ProxyPostgres:
		if f.db == nil {
			return nil, fmt.Errorf("proxy %s: postgres storage is not configured", name)
		}
		pg, err := NewPostgresTransport(f.db, idProperty, cfg)
		if err != nil {
			return nil, fmt.Errorf("proxy %s: %w", name, err)
		}
		f.mu.Lock()
		f.tables = append(f.tables, pg)
		f.mu.Unlock()
		transport = pg
	default:
		return nil, fmt.Errorf("proxy %s: unsupported type %q", name, cfg.Kind)
	}
	return New(name, cfg, transport), nil
}

// Collection returns the memory collection registered under key, creating
// it on first use.
func (f *Factory) Collection(key, idProperty string) *MemoryCollection {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[key]
	if !ok {
		c = NewMemoryCollection(idProperty, f.engine)
		f.collections[key] = c
	}
	return c
}

func collectionKey(name string, cfg model.ProxyConfig) string {
	if cfg.Collection != "" {
		return cfg.Collection
	}
	return name
}

func (f *Factory) applyDefaults(cfg model.ProxyConfig) model.ProxyConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = f.defaults.Timeout
	}
	if len(f.defaults.Headers) > 0 {
		headers := make(map[string]string, len(f.defaults.Headers)+len(cfg.Headers))
		for k, v := range f.defaults.Headers {
			headers[k] = v
		}
		for k, v := range cfg.Headers {
			headers[k] = v
		}
		cfg.Headers = headers
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = model.RetryPolicy{
			MaxAttempts:    f.defaults.Retry.MaxAttempts,
			BackoffInitial: f.defaults.Retry.BackoffInitial,
			BackoffMax:     f.defaults.Retry.BackoffMax,
		}
	}
	if cfg.CircuitBreaker == (model.CircuitBreakerPolicy{}) {
		cfg.CircuitBreaker = model.CircuitBreakerPolicy{
			FailureThreshold: f.defaults.CircuitBreaker.FailureThreshold,
			SuccessThreshold: f.defaults.CircuitBreaker.SuccessThreshold,
			Timeout:          f.defaults.CircuitBreaker.Timeout,
		}
	}
	return WithDefaults(cfg)
}

// EnsureTables creates the backing table of every postgres proxy built so
// far.
func (f *Factory) EnsureTables(ctx context.Context) error {
	f.mu.Lock()
	tables := append([]*PostgresTransport(nil), f.tables...)
	f.mu.Unlock()

	for _, t := range tables {
		if err := t.EnsureTable(ctx); err != nil {
			return err
		}
		f.logger.Debug("postgres table ready", zap.String("table", t.table))
	}
	return nil
}
