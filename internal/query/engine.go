// Package query implements in-memory filtering, sorting and pagination of
// record collections, and the wire encoding of list queries.
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pitabwire/uibind/model"
)

// DefaultLocale is used for string collation when none is configured.
const DefaultLocale = "en"

// Engine applies filters, sorters and pagination to record slices. Strings
// are ordered with a locale-aware collator. An Engine is safe for concurrent
// use.
type Engine struct {
	mu       sync.Mutex
	collator *collate.Collator
	locale   language.Tag
}

// NewEngine returns an engine collating strings for locale. An unparseable
// locale falls back to DefaultLocale.
func NewEngine(locale string) *Engine {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.Make(DefaultLocale)
	}
	return &Engine{
		collator: collate.New(tag),
		locale:   tag,
	}
}

// Locale returns the collation locale.
func (e *Engine) Locale() string {
	return e.locale.String()
}

// Apply filters, sorts and slices records for q. total is the filtered
// length before slicing. The input slice is not modified.
func (e *Engine) Apply(records []model.Record, q model.QuerySpec) (page []model.Record, total int) {
	filtered := Filter(records, q.Filters)
	sorted := e.Sort(filtered, q.Sorters)
	return Paginate(sorted, q.Page, q.PageSize), len(sorted)
}

// Filter returns the records satisfying every filter, in their original
// order. The result is always a fresh slice.
func Filter(records []model.Record, filters []model.Filter) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if MatchAll(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

// MatchAll reports whether r satisfies every filter.
func MatchAll(r model.Record, filters []model.Filter) bool {
	for _, f := range filters {
		if !Match(r, f) {
			return false
		}
	}
	return true
}

// Match reports whether r satisfies f. A custom predicate bypasses the
// operator; an unknown operator passes.
func Match(r model.Record, f model.Filter) bool {
	if f.Fn != nil {
		return f.Fn(r)
	}
	v := r[f.Property]
	switch f.OperatorOrDefault() {
	case model.OpEq:
		return Equal(v, f.Value)
	case model.OpNe:
		return !Equal(v, f.Value)
	case model.OpGt:
		c, ok := order(v, f.Value)
		return ok && c > 0
	case model.OpGte:
		c, ok := order(v, f.Value)
		return ok && c >= 0
	case model.OpLt:
		c, ok := order(v, f.Value)
		return ok && c < 0
	case model.OpLte:
		c, ok := order(v, f.Value)
		return ok && c <= 0
	case model.OpLike:
		return strings.Contains(strings.ToLower(text(v)), strings.ToLower(text(f.Value)))
	case model.OpIn:
		return contains(f.Value, v)
	}
	return true
}

// Sort returns a stably sorted copy of records. Sorters apply in order; a
// sorter is skipped when either side lacks the property. A nil value orders
// before any other value.
func (e *Engine) Sort(records []model.Record, sorters []model.Sorter) []model.Record {
	out := make([]model.Record, len(records))
	copy(out, records)
	if len(sorters) == 0 {
		return out
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return e.compareRecords(out[i], out[j], sorters) < 0
	})
	return out
}

func (e *Engine) compareRecords(a, b model.Record, sorters []model.Sorter) int {
	for _, s := range sorters {
		va, okA := a[s.Property]
		vb, okB := b[s.Property]
		if !okA || !okB {
			continue
		}
		c := e.compareValues(va, vb)
		if c == 0 {
			continue
		}
		if s.Direction.Normalize() == model.DESC {
			return -c
		}
		return c
	}
	return 0
}

// compareValues must be called with e.mu held.
func (e *Engine) compareValues(a, b any) int {
	if a == nil || b == nil {
		return cmp(a == nil && b != nil, a != nil && b == nil)
	}
	if sa, ok := a.(string); ok {
		return e.collator.CompareString(sa, text(b))
	}
	c, _ := order(a, b)
	return c
}

// Paginate slices records for a 1-based page. A non-positive pageSize
// returns every record.
func Paginate(records []model.Record, page, pageSize int) []model.Record {
	if pageSize <= 0 {
		return records
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(records) {
		return []model.Record{}
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// Equal compares two record values. Numbers compare numerically across Go
// numeric types; strings never equal numbers.
func Equal(a, b any) bool {
	fa, okA := model.ToFloat(a)
	fb, okB := model.ToFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// order compares two values of the same family. ok is false when the values
// are not mutually ordered.
func order(a, b any) (int, bool) {
	if fa, ok := model.ToFloat(a); ok {
		fb, ok := model.ToFloat(b)
		if !ok {
			return 0, false
		}
		return cmp(fa < fb, fa > fb), true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return cmp(!x && y, x && !y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return model.IDString(x)
	}
	return fmt.Sprint(v)
}

func contains(list any, v any) bool {
	rv := reflect.ValueOf(list)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if Equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}
