// Package render resolves node descriptors into components. A Registry maps
// type tags to renderers; tags missing from it fall back to the built-in
// form, grid, panel and primitive renderers, and unknown tags resolve to an
// "unsupported" placeholder.
package render

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/internal/listener"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/schema"
	"github.com/pitabwire/uibind/internal/store"
	"github.com/pitabwire/uibind/model"
)

// UnsupportedType is the type tag of the placeholder for unknown tags.
const UnsupportedType = "unsupported"

// Binding is the data context threaded through composite renderers.
type Binding struct {
	Controller *controller.Controller
	Model      *schema.Model
	Store      *store.Store
	Form       *controller.FormHandlers
	Grid       *controller.GridHandlers
}

// RenderFunc turns one descriptor into a component. Composite renderers use
// r to resolve their children.
type RenderFunc func(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component

// Registry maps type tags to renderers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]RenderFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]RenderFunc)}
}

// Register binds nodeType to fn, replacing any earlier registration.
func (r *Registry) Register(nodeType string, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[nodeType] = fn
}

// Lookup returns the renderer registered for nodeType.
func (r *Registry) Lookup(nodeType string) (RenderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.renderers[nodeType]
	return fn, ok
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.renderers))
	for t := range r.renderers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Resolver resolves descriptor trees.
type Resolver struct {
	registry   *Registry
	fallbacks  map[string]RenderFunc
	listeners  *listener.Adapter
	controller *controller.Controller
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry sets the registry consulted before the built-in renderers.
func WithRegistry(reg *Registry) Option {
	return func(r *Resolver) { r.registry = reg }
}

// WithController binds action-name listeners and model or store names in
// props to c.
func WithController(c *controller.Controller) Option {
	return func(r *Resolver) { r.controller = c }
}

// WithListenerAdapter replaces the default listener adapter.
func WithListenerAdapter(a *listener.Adapter) Option {
	return func(r *Resolver) { r.listeners = a }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics counts unsupported nodes.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. Without WithListenerAdapter it builds an
// adapter with the default mapping, dispatching to the controller if one is
// set.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}
	if r.listeners == nil {
		lopts := []listener.Option{listener.WithLogger(r.logger)}
		if r.controller != nil {
			lopts = append(lopts, listener.WithDispatcher(r.controller))
		}
		r.listeners = listener.New(lopts...)
	}
	r.fallbacks = map[string]RenderFunc{
		"form":       renderForm,
		"grid":       renderGrid,
		"panel":      renderPanel,
		"input":      renderPrimitive,
		"checkbox":   renderPrimitive,
		"datepicker": renderPrimitive,
		"select":     renderSelect,
		"button":     renderButton,
		"radio":      renderPrimitive,
		"switch":     renderPrimitive,
	}
	return r
}

// Registry returns the registry consulted first.
func (r *Resolver) Registry() *Registry { return r.registry }

// Controller returns the bound controller, or nil.
func (r *Resolver) Controller() *controller.Controller { return r.controller }

// Resolve resolves a descriptor tree. It never fails: unknown tags resolve
// to a placeholder component.
func (r *Resolver) Resolve(ctx context.Context, desc model.NodeDescriptor) model.Component {
	ctx, span := observability.StartSpan(ctx, "render.resolve")
	defer span.End()
	return r.ResolveWith(ctx, desc, Binding{Controller: r.controller})
}

// ResolveWith resolves desc within the data context b.
func (r *Resolver) ResolveWith(ctx context.Context, desc model.NodeDescriptor, b Binding) model.Component {
	if b.Controller == nil {
		b.Controller = r.controller
	}
	desc = r.listeners.Apply(desc)

	if fn, ok := r.registry.Lookup(desc.Type); ok {
		return fn(ctx, r, desc, b)
	}
	if fn, ok := r.fallbacks[desc.Type]; ok {
		return fn(ctx, r, desc, b)
	}

	r.logger.Warn("unsupported node type", zap.String("type", desc.Type))
	r.metrics.RecordUnsupportedNode(desc.Type)
	return model.Component{
		Type:        UnsupportedType,
		Unsupported: true,
		Props:       map[string]any{"type": desc.Type},
	}
}

// Children resolves the children and items of desc in order.
func (r *Resolver) Children(ctx context.Context, desc model.NodeDescriptor, b Binding) []model.Component {
	nodes := desc.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	out := make([]model.Component, len(nodes))
	for i, n := range nodes {
		out[i] = r.ResolveWith(ctx, n, b)
	}
	return out
}

// bindModel resolves a "model" prop naming a controller model.
func (b Binding) bindModel(desc model.NodeDescriptor) Binding {
	if b.Controller == nil {
		return b
	}
	if name := desc.StringProp("model"); name != "" {
		if m, ok := b.Controller.Model(name); ok {
			b.Model = m
		}
	}
	return b
}

// bindStore resolves a "store" prop naming a controller store.
func (b Binding) bindStore(desc model.NodeDescriptor) Binding {
	if b.Controller == nil {
		return b
	}
	if id := desc.StringProp("store"); id != "" {
		if s, ok := b.Controller.Store(id); ok {
			b.Store = s
		}
	}
	return b
}
