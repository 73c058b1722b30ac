package query

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/pitabwire/uibind/model"
)

func people() []model.Record {
	return []model.Record{
		{"id": 1, "name": "banana", "age": 30, "team": "a"},
		{"id": 2, "name": "apple", "age": 25, "team": "b"},
		{"id": 3, "name": "Cherry", "age": 30, "team": "a"},
		{"id": 4, "name": "date", "age": 41, "team": "b"},
		{"id": 5, "name": "éclair", "team": "a"},
	}
}

func ids(records []model.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["id"]
	}
	return out
}

func TestMatch_operators(t *testing.T) {
	r := model.Record{"age": 30, "name": "Alice", "tag": "x"}
	tests := []struct {
		name string
		f    model.Filter
		want bool
	}{
		{"default eq", model.Filter{Property: "age", Value: float64(30)}, true},
		{"eq mismatch", model.Filter{Property: "age", Operator: model.OpEq, Value: 31}, false},
		{"eq string vs number", model.Filter{Property: "age", Operator: model.OpEq, Value: "30"}, false},
		{"ne", model.Filter{Property: "age", Operator: model.OpNe, Value: 31}, true},
		{"gt", model.Filter{Property: "age", Operator: model.OpGt, Value: 29}, true},
		{"gte equal", model.Filter{Property: "age", Operator: model.OpGte, Value: 30}, true},
		{"lt", model.Filter{Property: "age", Operator: model.OpLt, Value: 30}, false},
		{"lte", model.Filter{Property: "age", Operator: model.OpLte, Value: 30}, true},
		{"gt mixed types", model.Filter{Property: "name", Operator: model.OpGt, Value: 1}, false},
		{"like case-insensitive", model.Filter{Property: "name", Operator: model.OpLike, Value: "LIC"}, true},
		{"like miss", model.Filter{Property: "name", Operator: model.OpLike, Value: "bob"}, false},
		{"in", model.Filter{Property: "tag", Operator: model.OpIn, Value: []any{"y", "x"}}, true},
		{"in non-list", model.Filter{Property: "tag", Operator: model.OpIn, Value: "x"}, false},
		{"unknown operator passes", model.Filter{Property: "age", Operator: "between", Value: 0}, true},
		{"custom fn bypasses operator", model.Filter{Property: "age", Operator: model.OpEq, Value: 99,
			Fn: func(r model.Record) bool { return r["name"] == "Alice" }}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(r, tt.f); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_conjunction(t *testing.T) {
	got := Filter(people(), []model.Filter{
		{Property: "team", Value: "a"},
		{Property: "age", Operator: model.OpGte, Value: 30},
	})
	if want := []any{1, 3}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestSort_localeAware(t *testing.T) {
	e := NewEngine("en")
	got := e.Sort(people(), []model.Sorter{{Property: "name"}})
	names := make([]any, len(got))
	for i, r := range got {
		names[i] = r["name"]
	}
	want := []any{"apple", "banana", "Cherry", "date", "éclair"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestSort_descAndMultiKey(t *testing.T) {
	e := NewEngine("en")
	got := e.Sort(people(), []model.Sorter{
		{Property: "age", Direction: model.DESC},
		{Property: "id", Direction: model.DESC},
	})
	// id 5 has no age, so the age sorter ties and the id sorter decides.
	if want := []any{5, 4, 3, 1, 2}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestSort_nilOrdersFirst(t *testing.T) {
	e := NewEngine("en")
	records := []model.Record{
		{"id": 1, "name": "bob"},
		{"id": 2, "name": nil},
		{"id": 3, "name": "al"},
		{"id": 4},
	}

	asc := e.Sort(records, []model.Sorter{{Property: "name"}})
	// id 4 lacks the property and is never compared, so it keeps its
	// place relative to the records around it.
	if want := []any{2, 3, 1, 4}; !reflect.DeepEqual(ids(asc), want) {
		t.Errorf("ASC ids = %v, want %v", ids(asc), want)
	}

	desc := e.Sort(records[:3], []model.Sorter{{Property: "name", Direction: model.DESC}})
	if want := []any{1, 3, 2}; !reflect.DeepEqual(ids(desc), want) {
		t.Errorf("DESC ids = %v, want %v", ids(desc), want)
	}
}

func TestSort_stableOnTies(t *testing.T) {
	e := NewEngine("en")
	var records []model.Record
	for i := 0; i < 50; i++ {
		records = append(records, model.Record{"id": i, "group": i % 3})
	}
	got := e.Sort(records, []model.Sorter{{Property: "group"}})
	lastID := map[any]int{}
	for _, r := range got {
		g := r["group"]
		id := r["id"].(int)
		if prev, ok := lastID[g]; ok && prev >= id {
			t.Fatalf("group %v: id %d after %d, tied records must keep their order", g, id, prev)
		}
		lastID[g] = id
	}
}

func TestSort_doesNotMutateInput(t *testing.T) {
	in := people()
	_ = NewEngine("en").Sort(in, []model.Sorter{{Property: "name", Direction: model.DESC}})
	if want := []any{1, 2, 3, 4, 5}; !reflect.DeepEqual(ids(in), want) {
		t.Errorf("input ids = %v, want %v", ids(in), want)
	}
}

func TestPaginate_count(t *testing.T) {
	for _, n := range []int{0, 1, 7, 10, 23} {
		records := make([]model.Record, n)
		for i := range records {
			records[i] = model.Record{"id": i}
		}
		for _, p := range []int{1, 3, 10} {
			for k := 1; k <= 5; k++ {
				t.Run(fmt.Sprintf("n=%d/p=%d/k=%d", n, p, k), func(t *testing.T) {
					want := n - (k-1)*p
					if want < 0 {
						want = 0
					}
					if want > p {
						want = p
					}
					if got := len(Paginate(records, k, p)); got != want {
						t.Errorf("len = %d, want %d", got, want)
					}
				})
			}
		}
	}
}

func TestApply_totalIsFilteredLength(t *testing.T) {
	e := NewEngine("")
	page, total := e.Apply(people(), model.QuerySpec{
		Page:     1,
		PageSize: 1,
		Filters:  []model.Filter{{Property: "team", Value: "b"}},
		Sorters:  []model.Sorter{{Property: "age", Direction: model.DESC}},
	})
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if want := []any{4}; !reflect.DeepEqual(ids(page), want) {
		t.Errorf("page ids = %v, want %v", ids(page), want)
	}
	if e.Locale() != "en" {
		t.Errorf("Locale() = %q, want en", e.Locale())
	}
}
