package model

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
)

// Handler is an in-process callback bound to a descriptor event.
type Handler func(ctx context.Context, args ...any) (any, error)

// Listener binds a descriptor event either to a named controller action or
// to an in-process handler. Fn wins when both are set. In YAML and JSON a
// listener is written as the action name.
type Listener struct {
	Action string
	Fn     Handler
}

// UnmarshalText reads a listener from its action name.
func (l *Listener) UnmarshalText(text []byte) error {
	l.Action = string(text)
	return nil
}

// MarshalText writes the action name. Function-only listeners have no
// textual form and serialize as "func".
func (l Listener) MarshalText() ([]byte, error) {
	if l.Action == "" && l.Fn != nil {
		return []byte("func"), nil
	}
	return []byte(l.Action), nil
}

// NodeDescriptor is a plain description of a UI element: a type tag, props,
// declarative listeners and nested descriptors.
type NodeDescriptor struct {
	Type      string              `yaml:"type"      json:"type"`
	Props     map[string]any      `yaml:"props"     json:"props,omitempty"`
	Listeners map[string]Listener `yaml:"listeners" json:"listeners,omitempty"`
	Children  []NodeDescriptor    `yaml:"children"  json:"children,omitempty"`
	Items     []NodeDescriptor    `yaml:"items"     json:"items,omitempty"`
}

// Nodes returns the declared children followed by the declared items.
func (d NodeDescriptor) Nodes() []NodeDescriptor {
	if len(d.Items) == 0 {
		return d.Children
	}
	if len(d.Children) == 0 {
		return d.Items
	}
	out := make([]NodeDescriptor, 0, len(d.Children)+len(d.Items))
	out = append(out, d.Children...)
	return append(out, d.Items...)
}

// Prop returns a prop value, or nil.
func (d NodeDescriptor) Prop(key string) any {
	if d.Props == nil {
		return nil
	}
	return d.Props[key]
}

// StringProp returns a string prop, or "" when missing or not a string.
func (d NodeDescriptor) StringProp(key string) string {
	s, _ := d.Prop(key).(string)
	return s
}

// Component is a resolved node handed to the host rendering library: prepared
// props (listeners translated, data bound) and resolved children.
type Component struct {
	Type        string         `json:"type"`
	Props       map[string]any `json:"props,omitempty"`
	Children    []Component    `json:"children,omitempty"`
	Unsupported bool           `json:"unsupported,omitempty"`
}

// Callback returns the Handler stored under a prop name.
func (c Component) Callback(name string) (Handler, bool) {
	h, ok := c.Props[name].(Handler)
	return h, ok && h != nil
}

// Events lists the prop names that hold callbacks, sorted.
func (c Component) Events() []string {
	var out []string
	for k, v := range c.Props {
		if isFunc(v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

type componentJSON struct {
	Type        string         `json:"type"`
	Props       map[string]any `json:"props,omitempty"`
	Events      []string       `json:"events,omitempty"`
	Children    []Component    `json:"children,omitempty"`
	Unsupported bool           `json:"unsupported,omitempty"`
}

// MarshalJSON drops callbacks from props, at any depth, and reports the
// top-level callback names under "events".
func (c Component) MarshalJSON() ([]byte, error) {
	out := componentJSON{
		Type:        c.Type,
		Events:      c.Events(),
		Children:    c.Children,
		Unsupported: c.Unsupported,
	}
	if len(c.Props) > 0 {
		props, _ := stripFuncs(c.Props).(map[string]any)
		out.Props = props
	}
	return json.Marshal(out)
}

func isFunc(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Func
}

func stripFuncs(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			if isFunc(item) {
				continue
			}
			out[k] = stripFuncs(item)
		}
		return out
	case Record:
		return stripFuncs(map[string]any(x))
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			if isFunc(item) {
				continue
			}
			out = append(out, stripFuncs(item))
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = stripFuncs(item)
		}
		return out
	}
	return v
}
