package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pitabwire/uibind/model"
)

// Default parameter names of list requests.
const (
	DefaultPageParam   = "page"
	DefaultLimitParam  = "limit"
	DefaultSortParam   = "sort"
	DefaultFilterParam = "filter"
)

// ParamNamesOrDefault fills unset parameter names with the defaults.
func ParamNamesOrDefault(p model.ParamNames) model.ParamNames {
	if p.Page == "" {
		p.Page = DefaultPageParam
	}
	if p.Limit == "" {
		p.Limit = DefaultLimitParam
	}
	if p.Sort == "" {
		p.Sort = DefaultSortParam
	}
	if p.Filter == "" {
		p.Filter = DefaultFilterParam
	}
	return p
}

type wireSorter struct {
	Property  string          `json:"property"`
	Direction model.Direction `json:"direction,omitempty"`
}

type wireFilter struct {
	Property string         `json:"property"`
	Operator model.Operator `json:"operator,omitempty"`
	Value    any            `json:"value,omitempty"`
}

// Encode renders q as query parameters. Sorters and filters travel as JSON
// arrays and are omitted when empty; filters with a custom predicate cannot
// be encoded and are skipped. Extra parameters are added verbatim, with
// non-scalar values JSON-encoded.
func Encode(names model.ParamNames, q model.QuerySpec) (url.Values, error) {
	names = ParamNamesOrDefault(names)
	v := url.Values{}

	for k, val := range q.Extra {
		s, err := scalar(val)
		if err != nil {
			return nil, fmt.Errorf("query: encode %s: %w", k, err)
		}
		v.Set(k, s)
	}

	if q.Page > 0 {
		v.Set(names.Page, strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set(names.Limit, strconv.Itoa(q.PageSize))
	}

	if len(q.Sorters) > 0 {
		ws := make([]wireSorter, len(q.Sorters))
		for i, s := range q.Sorters {
			ws[i] = wireSorter{Property: s.Property, Direction: s.Direction.Normalize()}
		}
		b, err := json.Marshal(ws)
		if err != nil {
			return nil, fmt.Errorf("query: encode sort: %w", err)
		}
		v.Set(names.Sort, string(b))
	}

	var wf []wireFilter
	for _, f := range q.Filters {
		if f.Fn != nil {
			continue
		}
		wf = append(wf, wireFilter{Property: f.Property, Operator: f.OperatorOrDefault(), Value: f.Value})
	}
	if len(wf) > 0 {
		b, err := json.Marshal(wf)
		if err != nil {
			return nil, fmt.Errorf("query: encode filter: %w", err)
		}
		v.Set(names.Filter, string(b))
	}
	return v, nil
}

// Decode parses query parameters produced by Encode. Parameters other than
// the four named ones are returned in Extra as strings.
func Decode(names model.ParamNames, v url.Values) (model.QuerySpec, error) {
	names = ParamNamesOrDefault(names)
	var q model.QuerySpec

	if s := v.Get(names.Page); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, model.NewBadRequestError(fmt.Sprintf("%s must be a positive integer", names.Page))
		}
		q.Page = n
	}
	if s := v.Get(names.Limit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, model.NewBadRequestError(fmt.Sprintf("%s must be a non-negative integer", names.Limit))
		}
		q.PageSize = n
	}
	if s := v.Get(names.Sort); s != "" {
		var ws []wireSorter
		if err := json.Unmarshal([]byte(s), &ws); err != nil {
			return q, model.NewBadRequestError(fmt.Sprintf("%s must be a JSON array of sorters", names.Sort))
		}
		for _, w := range ws {
			q.Sorters = append(q.Sorters, model.Sorter{Property: w.Property, Direction: w.Direction.Normalize()})
		}
	}
	if s := v.Get(names.Filter); s != "" {
		var wf []wireFilter
		if err := json.Unmarshal([]byte(s), &wf); err != nil {
			return q, model.NewBadRequestError(fmt.Sprintf("%s must be a JSON array of filters", names.Filter))
		}
		for _, w := range wf {
			q.Filters = append(q.Filters, model.Filter{Property: w.Property, Operator: w.Operator, Value: w.Value})
		}
	}

	for k := range v {
		switch k {
		case names.Page, names.Limit, names.Sort, names.Filter:
			continue
		}
		if q.Extra == nil {
			q.Extra = make(map[string]any)
		}
		q.Extra[k] = v.Get(k)
	}
	return q, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	if _, ok := model.ToFloat(v); ok {
		if f, isFloat := v.(float64); isFloat {
			return model.IDString(f), nil
		}
		return fmt.Sprint(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
