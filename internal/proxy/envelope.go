package proxy

import (
	"strings"

	"github.com/pitabwire/uibind/model"
)

// Lookup resolves a dot-separated path inside a decoded JSON payload. An empty
// path resolves to nothing.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		var m map[string]any
		switch x := cur.(type) {
		case map[string]any:
			m = x
		case model.Record:
			m = x
		default:
			return nil, false
		}
		next, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Wrap nests v under a dot-separated path. An empty path returns v unchanged.
func Wrap(path string, v any) any {
	if path == "" {
		return v
	}
	segs := strings.Split(path, ".")
	out := v
	for i := len(segs) - 1; i >= 0; i-- {
		out = map[string]any{segs[i]: out}
	}
	return out
}

// Envelope builds a list response shaped for reader, the inverse of
// Proxy.UnwrapList. In-process transports answer through it so that models
// unwrap their responses exactly as they would a remote one.
func Envelope(reader model.ReaderConfig, data []model.Record, total int) any {
	items := make([]any, len(data))
	for i, r := range data {
		items[i] = map[string]any(r)
	}
	if reader.Root == "" {
		return items
	}
	out := map[string]any{}
	set(out, reader.Root, items)
	if reader.TotalProperty != "" {
		set(out, reader.TotalProperty, total)
	}
	return out
}

func set(m map[string]any, path string, v any) {
	segs := strings.Split(path, ".")
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = v
}
