package model

import "fmt"

// DefaultIDProperty is the id field used when a model does not declare one.
const DefaultIDProperty = "id"

// Record is an open mapping from field name to value. A record has no identity
// beyond the value stored under its model's id property.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the value stored under idProperty and whether it marks the record
// as persisted. Zero values (nil, "", 0, false) do not count as an id.
func (r Record) ID(idProperty string) (any, bool) {
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}
	v, ok := r[idProperty]
	if !ok || !Truthy(v) {
		return nil, false
	}
	return v, true
}

// Merge returns a copy of r with every key of patch applied on top.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Truthy reports whether v counts as a present value. Empty strings, nil,
// false and numeric zero are falsy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// IDString renders an id value for use in a resource path.
func IDString(id any) string {
	switch x := id.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
	}
	return fmt.Sprint(id)
}

// SameID compares two id values structurally. Numeric ids decoded from JSON
// (float64) match their integer counterparts; strings never match numbers.
func SameID(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok || bok {
		return aok && bok && as == bs
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// ToFloat converts any Go numeric type to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// ToRecords converts a decoded JSON value (a []any of objects, a []Record or a
// single object) to a record slice. Non-object items are skipped.
func ToRecords(v any) []Record {
	switch x := v.(type) {
	case nil:
		return []Record{}
	case []Record:
		return x
	case []map[string]any:
		out := make([]Record, len(x))
		for i, m := range x {
			out[i] = Record(m)
		}
		return out
	case []any:
		out := make([]Record, 0, len(x))
		for _, item := range x {
			if r, ok := ToRecord(item); ok {
				out = append(out, r)
			}
		}
		return out
	}
	if r, ok := ToRecord(v); ok {
		return []Record{r}
	}
	return []Record{}
}

// ToRecord converts a decoded JSON object to a Record.
func ToRecord(v any) (Record, bool) {
	switch x := v.(type) {
	case Record:
		return x, true
	case map[string]any:
		return Record(x), true
	}
	return nil, false
}
