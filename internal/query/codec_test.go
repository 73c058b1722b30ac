package query

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"

	"github.com/pitabwire/uibind/model"
)

func assertJSON(t *testing.T, name, got, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", name, got, err)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("%s: invalid expected JSON: %v", name, err)
	}
	if !reflect.DeepEqual(g, w) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestEncode_defaults(t *testing.T) {
	v, err := Encode(model.ParamNames{}, model.QuerySpec{
		Page:     2,
		PageSize: 25,
		Sorters:  []model.Sorter{{Property: "name", Direction: "desc"}},
		Filters: []model.Filter{
			{Property: "age", Operator: model.OpGt, Value: 18},
			{Property: "skip", Fn: func(model.Record) bool { return true }},
		},
		Extra: map[string]any{"q": "alice", "flags": []string{"a"}},
	})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if v.Get("page") != "2" {
		t.Errorf("page = %q, want 2", v.Get("page"))
	}
	if v.Get("limit") != "25" {
		t.Errorf("limit = %q, want 25", v.Get("limit"))
	}
	assertJSON(t, "sort", v.Get("sort"), `[{"property":"name","direction":"DESC"}]`)
	assertJSON(t, "filter", v.Get("filter"), `[{"property":"age","operator":">","value":18}]`)
	if v.Get("q") != "alice" {
		t.Errorf("q = %q, want alice", v.Get("q"))
	}
	if v.Get("flags") != `["a"]` {
		t.Errorf("flags = %q", v.Get("flags"))
	}
}

func TestEncode_omitsEmptyCriteria(t *testing.T) {
	v, err := Encode(model.ParamNames{Page: "p", Limit: "size"}, model.QuerySpec{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if v.Get("p") != "1" || v.Get("size") != "10" {
		t.Errorf("p = %q, size = %q, want 1 and 10", v.Get("p"), v.Get("size"))
	}
	if v.Has("sort") || v.Has("filter") {
		t.Errorf("empty criteria should be omitted, got %v", v)
	}
}

func TestDecode_roundTrip(t *testing.T) {
	in := model.QuerySpec{
		Page:     3,
		PageSize: 5,
		Sorters:  []model.Sorter{{Property: "age", Direction: model.ASC}},
		Filters:  []model.Filter{{Property: "team", Operator: model.OpEq, Value: "a"}},
		Extra:    map[string]any{"tenant": "t1"},
	}
	v, err := Encode(model.ParamNames{}, in)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	out, err := Decode(model.ParamNames{}, v)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if out.Page != in.Page || out.PageSize != in.PageSize {
		t.Errorf("page/size = %d/%d, want %d/%d", out.Page, out.PageSize, in.Page, in.PageSize)
	}
	if !reflect.DeepEqual(out.Sorters, in.Sorters) {
		t.Errorf("Sorters = %+v, want %+v", out.Sorters, in.Sorters)
	}
	if !reflect.DeepEqual(out.Filters, in.Filters) {
		t.Errorf("Filters = %+v, want %+v", out.Filters, in.Filters)
	}
	if out.Extra["tenant"] != "t1" {
		t.Errorf("Extra[tenant] = %v, want t1", out.Extra["tenant"])
	}
}

func TestDecode_invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad page", "page=zero"},
		{"negative page", "page=-1"},
		{"bad limit", "limit=x"},
		{"bad sort", "sort=name"},
		{"bad filter", "filter={"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := url.ParseQuery(tt.raw)
			if err != nil {
				t.Fatalf("ParseQuery error: %v", err)
			}
			_, err = Decode(model.ParamNames{}, v)
			if err == nil {
				t.Fatal("expected error")
			}
			if env := model.AsEnvelope(err); env.Code != model.ErrCodeBadRequest {
				t.Errorf("code = %q, want %q", env.Code, model.ErrCodeBadRequest)
			}
		})
	}
}
