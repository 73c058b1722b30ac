// Package listener translates descriptor event names into the callback
// prop names the host rendering library expects, and binds action-name
// listeners to a controller.
package listener

import (
	"context"
	"maps"
	"sort"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/model"
)

// Dispatcher runs named actions. *controller.Controller satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args ...any) (any, error)
}

// DefaultMapping is the event name translation every Adapter starts from.
func DefaultMapping() map[string]string {
	return map[string]string{
		"click":     "onClick",
		"change":    "onChange",
		"load":      "onLoad",
		"afterLoad": "onAfterLoad",
	}
}

// Adapter rewrites descriptor listeners into callback props.
type Adapter struct {
	mapping    map[string]string
	dispatcher Dispatcher
	logger     *zap.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMapping adds or overrides event name translations.
func WithMapping(m map[string]string) Option {
	return func(a *Adapter) { maps.Copy(a.mapping, m) }
}

// WithDispatcher binds action-name listeners to d.
func WithDispatcher(d Dispatcher) Option {
	return func(a *Adapter) { a.dispatcher = d }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an Adapter with the default mapping.
func New(opts ...Option) *Adapter {
	a := &Adapter{mapping: DefaultMapping(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PropName returns the prop that carries the callback for event. Unknown
// event names pass through unchanged.
func (a *Adapter) PropName(event string) string {
	if p, ok := a.mapping[event]; ok {
		return p
	}
	return event
}

// Handler returns the callback for l. An in-process function wins over an
// action name; an action name needs a dispatcher.
func (a *Adapter) Handler(l model.Listener) (model.Handler, bool) {
	if l.Fn != nil {
		return l.Fn, true
	}
	if l.Action == "" || a.dispatcher == nil {
		return nil, false
	}
	d, action := a.dispatcher, l.Action
	return func(ctx context.Context, args ...any) (any, error) {
		return d.Dispatch(ctx, action, args...)
	}, true
}

// Apply returns a copy of desc whose listeners have been moved into props
// under their translated names. Listener callbacks replace props of the same
// name. Listeners that cannot be bound are dropped.
func (a *Adapter) Apply(desc model.NodeDescriptor) model.NodeDescriptor {
	if len(desc.Listeners) == 0 {
		return desc
	}
	props := make(map[string]any, len(desc.Props)+len(desc.Listeners))
	maps.Copy(props, desc.Props)

	events := make([]string, 0, len(desc.Listeners))
	for ev := range desc.Listeners {
		events = append(events, ev)
	}
	sort.Strings(events)

	for _, ev := range events {
		h, ok := a.Handler(desc.Listeners[ev])
		if !ok {
			a.logger.Debug("listener not bound",
				zap.String("type", desc.Type),
				zap.String("event", ev),
				zap.String("action", desc.Listeners[ev].Action),
			)
			continue
		}
		props[a.PropName(ev)] = h
	}

	out := desc
	out.Props = props
	out.Listeners = nil
	return out
}
