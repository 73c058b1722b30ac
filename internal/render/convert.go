package render

import (
	"maps"

	"github.com/pitabwire/uibind/model"
)

// Props arrive either typed (descriptors built in Go) or as decoded YAML and
// JSON (map[string]any and []any). The helpers below accept both.

func cloneProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+4)
	maps.Copy(out, p)
	return out
}

func setDefault(props map[string]any, key string, v any) {
	if _, ok := props[key]; !ok {
		props[key] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case model.Record:
		return x, true
	case map[string]bool:
		out := make(map[string]any, len(x))
		for k, b := range x {
			out[k] = b
		}
		return out, true
	}
	return nil, false
}

func asMaps(v any) []map[string]any {
	switch x := v.(type) {
	case []map[string]any:
		return x
	case []model.Record:
		out := make([]map[string]any, len(x))
		for i, r := range x {
			out[i] = r
		}
		return out
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, item := range x {
			if m, ok := asMap(item); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func asInt(v any, def int) int {
	if f, ok := model.ToFloat(v); ok {
		return int(f)
	}
	return def
}

func asFloat(v any) (*float64, bool) {
	if f, ok := model.ToFloat(v); ok {
		return &f, true
	}
	return nil, false
}

// descriptors reads a list of nodes from typed descriptors or decoded maps.
func descriptors(v any) []model.NodeDescriptor {
	switch x := v.(type) {
	case []model.NodeDescriptor:
		return x
	case []any:
		out := make([]model.NodeDescriptor, 0, len(x))
		for _, item := range x {
			if d, ok := descriptor(item); ok {
				out = append(out, d)
			}
		}
		return out
	case []map[string]any:
		out := make([]model.NodeDescriptor, len(x))
		for i, m := range x {
			out[i], _ = descriptor(m)
		}
		return out
	}
	return nil
}

// descriptor reads one node. In map form, "type" (or "xtype") is the tag,
// "listeners" maps events to action names and handlers, "items" and
// "children" nest, and every other key is a prop.
func descriptor(v any) (model.NodeDescriptor, bool) {
	if d, ok := v.(model.NodeDescriptor); ok {
		return d, true
	}
	m, ok := asMap(v)
	if !ok {
		return model.NodeDescriptor{}, false
	}
	d := model.NodeDescriptor{Props: make(map[string]any, len(m))}
	for k, val := range m {
		switch k {
		case "type", "xtype":
			if d.Type == "" || k == "xtype" {
				d.Type = asString(val)
			}
		case "props":
			if p, ok := asMap(val); ok {
				maps.Copy(d.Props, p)
			}
		case "listeners":
			d.Listeners = listeners(val)
		case "items":
			d.Items = descriptors(val)
		case "children":
			d.Children = descriptors(val)
		default:
			d.Props[k] = val
		}
	}
	return d, true
}

func listeners(v any) map[string]model.Listener {
	if typed, ok := v.(map[string]model.Listener); ok {
		return typed
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	out := make(map[string]model.Listener, len(m))
	for ev, l := range m {
		switch x := l.(type) {
		case string:
			out[ev] = model.Listener{Action: x}
		case model.Handler:
			out[ev] = model.Listener{Fn: x}
		case model.Listener:
			out[ev] = x
		}
	}
	return out
}

// validators reads validator specs from typed specs or decoded maps.
func validators(v any) []model.ValidatorSpec {
	switch x := v.(type) {
	case []model.ValidatorSpec:
		return x
	case nil:
		return nil
	}
	ms := asMaps(v)
	out := make([]model.ValidatorSpec, 0, len(ms))
	for _, m := range ms {
		spec := model.ValidatorSpec{
			Kind:    model.ValidatorKind(asString(m["type"])),
			Message: asString(m["message"]),
			Len:     asInt(m["len"], 0),
		}
		spec.Min, _ = asFloat(m["min"])
		spec.Max, _ = asFloat(m["max"])
		if fn, ok := m["fn"].(model.CustomValidator); ok {
			spec.Fn = fn
		}
		out = append(out, spec)
	}
	return out
}
