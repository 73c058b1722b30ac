// Package controller implements the composition root of the data runtime:
// it owns named models and stores, dispatches named actions and derives
// form and grid descriptors from model schemas.
package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/config"
	"github.com/pitabwire/uibind/internal/event"
	"github.com/pitabwire/uibind/internal/idempotency"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/proxy"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/internal/schema"
	"github.com/pitabwire/uibind/internal/store"
	"github.com/pitabwire/uibind/model"
)

// Action is a named controller operation. It receives its controller
// explicitly for access to models and stores.
type Action func(ctx context.Context, c *Controller, args ...any) (any, error)

// NoOpResult is the type of NoOp.
type NoOpResult struct{}

// NoOp is returned by Dispatch for unregistered actions.
var NoOp = NoOpResult{}

// Config declares what a controller owns.
type Config struct {
	Models  []model.ModelDefinition
	Stores  []model.StoreDefinition
	Views   []model.ViewDefinition
	Routes  []model.RouteDefinition
	Actions map[string]Action
	// Init runs once every model, store and action is in place.
	Init func(ctx context.Context, c *Controller) error
}

// Controller owns models, stores, views and actions. It is safe for
// concurrent use.
type Controller struct {
	models  map[string]*schema.Model
	stores  map[string]*store.Store
	views   map[string]model.NodeDescriptor
	routes  []model.RouteDefinition
	actions map[string]Action
	events  *event.Bus[model.ControllerEventKind, model.ControllerEvent]

	proxies  *proxy.Factory
	engine   *query.Engine
	pageSize int
	logger   *zap.Logger
	metrics  *observability.Metrics
	idem     idempotency.Store
	idemTTL  time.Duration

	refMu sync.RWMutex
	refs  map[string]any
}

// Option configures a Controller.
type Option func(*Controller)

// WithProxyFactory sets the factory that builds proxies for declared
// proxy configurations.
func WithProxyFactory(f *proxy.Factory) Option {
	return func(c *Controller) { c.proxies = f }
}

// WithEngine sets the engine stores use for local queries.
func WithEngine(e *query.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// WithDefaultPageSize sets the page size of stores that declare none.
func WithDefaultPageSize(n int) Option {
	return func(c *Controller) { c.pageSize = n }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics records dispatch, validation and store metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithIdempotency deduplicates keyed dispatches for ttl.
func WithIdempotency(s idempotency.Store, ttl time.Duration) Option {
	return func(c *Controller) {
		c.idem = s
		c.idemTTL = ttl
	}
}

// New builds the models, then the stores (resolving their model names),
// then registers the actions and runs cfg.Init. Stores declaring AutoLoad
// are loaded last; a failed auto-load is logged and does not fail New.
func New(ctx context.Context, cfg Config, opts ...Option) (*Controller, error) {
	c := &Controller{
		models:  make(map[string]*schema.Model, len(cfg.Models)),
		stores:  make(map[string]*store.Store, len(cfg.Stores)),
		views:   make(map[string]model.NodeDescriptor, len(cfg.Views)),
		routes:  cfg.Routes,
		actions: make(map[string]Action, len(cfg.Actions)),
		events:  event.New[model.ControllerEventKind, model.ControllerEvent](),
		logger:  zap.NewNop(),
		refs:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = query.NewEngine("")
	}
	if c.proxies == nil {
		c.proxies = proxy.NewFactory(config.Defaults().Proxy, c.engine,
			proxy.WithFactoryLogger(c.logger), proxy.WithFactoryMetrics(c.metrics))
	}
	if c.idemTTL <= 0 {
		c.idemTTL = 24 * time.Hour
	}

	for _, def := range cfg.Models {
		if err := c.addModel(def); err != nil {
			return nil, err
		}
	}
	for _, def := range cfg.Stores {
		if err := c.addStore(def); err != nil {
			return nil, err
		}
	}
	for _, v := range cfg.Views {
		if _, dup := c.views[v.ID]; dup {
			return nil, fmt.Errorf("controller: duplicate view %q", v.ID)
		}
		c.views[v.ID] = v.Root
	}
	for name, fn := range cfg.Actions {
		c.actions[name] = fn
	}

	if cfg.Init != nil {
		if err := cfg.Init(ctx, c); err != nil {
			return nil, fmt.Errorf("controller: init: %w", err)
		}
	}

	for _, id := range c.StoreIDs() {
		s := c.stores[id]
		if !s.AutoLoad() {
			continue
		}
		if _, err := s.Load(ctx, model.QuerySpec{}); err != nil {
			c.logger.Warn("auto-load failed", zap.String("store", id), zap.Error(err))
		}
	}
	return c, nil
}

func (c *Controller) addModel(def model.ModelDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("controller: model without a name")
	}
	if _, dup := c.models[def.Name]; dup {
		return fmt.Errorf("controller: duplicate model %q", def.Name)
	}
	opts := []schema.Option{
		schema.WithLogger(c.logger),
		schema.WithMetrics(c.metrics),
	}
	if def.Proxy != nil {
		p, err := c.proxies.New(def.Name, def.IDProperty, *def.Proxy)
		if err != nil {
			return fmt.Errorf("controller: model %s: %w", def.Name, err)
		}
		opts = append(opts, schema.WithProxy(p))
	}
	c.models[def.Name] = schema.New(def, opts...)
	return nil
}

func (c *Controller) addStore(def model.StoreDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("controller: store without an id")
	}
	if _, dup := c.stores[def.ID]; dup {
		return fmt.Errorf("controller: duplicate store %q", def.ID)
	}
	opts := []store.Option{
		store.WithEngine(c.engine),
		store.WithLogger(c.logger),
		store.WithMetrics(c.metrics),
		store.WithDefaultPageSize(c.pageSize),
	}
	idProp := model.DefaultIDProperty
	if def.ModelName != "" {
		m, ok := c.models[def.ModelName]
		if !ok {
			return fmt.Errorf("controller: store %s: %w", def.ID, model.NewUnknownModelError(def.ModelName))
		}
		opts = append(opts, store.WithModel(m))
		idProp = m.IDProperty()
	}
	if def.Proxy != nil {
		p, err := c.proxies.New(def.ID, idProp, *def.Proxy)
		if err != nil {
			return fmt.Errorf("controller: store %s: %w", def.ID, err)
		}
		opts = append(opts, store.WithProxy(p))
	}
	c.stores[def.ID] = store.New(def, opts...)
	return nil
}

// On subscribes fn to kind and returns the unsubscribe function.
func (c *Controller) On(kind model.ControllerEventKind, fn func(model.ControllerEvent)) (off func()) {
	return c.events.On(kind, fn)
}

// Dispatch runs the named action. An unregistered name is logged, fires
// actionMissing and returns NoOp without an error.
func (c *Controller) Dispatch(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := c.actions[name]
	if !ok {
		c.logger.Warn("action not found", zap.String("action", name))
		c.metrics.RecordActionDispatch(name, "missing", 0)
		c.events.Fire(model.ActionMissing, model.ControllerEvent{Kind: model.ActionMissing, Action: name, Args: args})
		return NoOp, nil
	}

	ctx, span := observability.StartSpan(ctx, "controller.dispatch",
		observability.AttrAction.String(name),
	)
	start := time.Now()
	result, err := fn(ctx, c, args...)
	observability.EndSpanWithError(span, err)

	if err != nil {
		c.metrics.RecordActionDispatch(name, "error", time.Since(start))
		c.logger.Error("action failed", zap.String("action", name), zap.Error(err))
		c.events.Fire(model.ActionFailed, model.ControllerEvent{Kind: model.ActionFailed, Action: name, Args: args, Err: err})
		return nil, err
	}
	c.metrics.RecordActionDispatch(name, "ok", time.Since(start))
	c.events.Fire(model.ActionDispatched, model.ControllerEvent{Kind: model.ActionDispatched, Action: name, Args: args, Result: result})
	return result, nil
}

// DispatchOnce runs the named action at most once per key and argument
// set. A repeated call with the same key and arguments returns the stored
// JSON result with replayed true; the same key with other arguments is a
// CONFLICT. Without an idempotency store, or with an empty key, it behaves
// like Dispatch.
func (c *Controller) DispatchOnce(ctx context.Context, key, name string, args ...any) (result any, replayed bool, err error) {
	if c.idem == nil || key == "" {
		result, err = c.Dispatch(ctx, name, args...)
		return result, false, err
	}

	idemKey := FormatIdempotencyKey(name, key)
	hash, err := hashArgs(args)
	if err != nil {
		return nil, false, model.NewBadRequestError(fmt.Sprintf("arguments are not serializable: %v", err))
	}
	cached, found, err := c.idem.Check(ctx, idemKey, hash)
	if err != nil {
		return nil, false, err
	}
	if found {
		c.metrics.RecordIdempotentReplay()
		return cached, true, nil
	}

	result, err = c.Dispatch(ctx, name, args...)
	if err != nil || result == NoOp {
		return result, false, err
	}
	encoded, mErr := json.Marshal(result)
	if mErr != nil {
		c.logger.Warn("action result not stored for replay", zap.String("action", name), zap.Error(mErr))
		return result, false, nil
	}
	if sErr := c.idem.Save(ctx, idemKey, hash, encoded, c.idemTTL); sErr != nil {
		c.logger.Warn("idempotency store failed", zap.String("action", name), zap.Error(sErr))
	}
	return result, false, nil
}

// FormatIdempotencyKey builds the key under which a dispatch is stored.
func FormatIdempotencyKey(action, key string) string {
	return fmt.Sprintf("idem:%s:%s", action, key)
}

func hashArgs(args []any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// HasAction reports whether name is registered.
func (c *Controller) HasAction(name string) bool {
	_, ok := c.actions[name]
	return ok
}

// Model returns the named model.
func (c *Controller) Model(name string) (*schema.Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

// Store returns the store with the given id.
func (c *Controller) Store(id string) (*store.Store, bool) {
	s, ok := c.stores[id]
	return s, ok
}

// View returns the descriptor registered under id.
func (c *Controller) View(id string) (model.NodeDescriptor, bool) {
	v, ok := c.views[id]
	return v, ok
}

// Routes returns the declared routes. They are configuration for the host
// router only.
func (c *Controller) Routes() []model.RouteDefinition { return c.routes }

// Ref returns a view component registered with SetRef. The controller does
// not manage its lifecycle.
func (c *Controller) Ref(name string) (any, bool) {
	c.refMu.RLock()
	defer c.refMu.RUnlock()
	r, ok := c.refs[name]
	return r, ok
}

// SetRef registers a view component under name. A nil component removes it.
func (c *Controller) SetRef(name string, component any) *Controller {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if component == nil {
		delete(c.refs, name)
		return c
	}
	c.refs[name] = component
	return c
}

// ModelNames returns the model names, sorted.
func (c *Controller) ModelNames() []string { return sortedKeys(c.models) }

// StoreIDs returns the store ids, sorted.
func (c *Controller) StoreIDs() []string { return sortedKeys(c.stores) }

// ViewIDs returns the view ids, sorted.
func (c *Controller) ViewIDs() []string { return sortedKeys(c.views) }

// ActionNames returns the action names, sorted.
func (c *Controller) ActionNames() []string { return sortedKeys(c.actions) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
