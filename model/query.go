package model

import "strings"

// Direction orders a sorter.
type Direction string

// Sort directions.
const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// Normalize upper-cases the direction and defaults to ASC.
func (d Direction) Normalize() Direction {
	if strings.EqualFold(string(d), string(DESC)) {
		return DESC
	}
	return ASC
}

// Operator compares a record value against a filter value.
type Operator string

// Filter operators.
const (
	OpEq   Operator = "="
	OpGt   Operator = ">"
	OpGte  Operator = ">="
	OpLt   Operator = "<"
	OpLte  Operator = "<="
	OpNe   Operator = "!="
	OpLike Operator = "like"
	OpIn   Operator = "in"
)

// Sorter orders records by one property.
type Sorter struct {
	Property  string    `yaml:"property"  json:"property"`
	Direction Direction `yaml:"direction" json:"direction,omitempty"`
}

// FilterFunc is a custom filter predicate; when set it bypasses the operator.
type FilterFunc func(record Record) bool

// Filter restricts records by one property, or by a custom predicate.
type Filter struct {
	Property string     `yaml:"property" json:"property"`
	Operator Operator   `yaml:"operator" json:"operator,omitempty"`
	Value    any        `yaml:"value"    json:"value,omitempty"`
	Fn       FilterFunc `yaml:"-"        json:"-"`
}

// OperatorOrDefault returns the operator, or "=" when unset.
func (f Filter) OperatorOrDefault() Operator {
	if f.Operator == "" {
		return OpEq
	}
	return f.Operator
}

// Grouper is carried in store configuration for the host grid.
type Grouper struct {
	Property  string    `yaml:"property"  json:"property"`
	Direction Direction `yaml:"direction" json:"direction,omitempty"`
}

// QuerySpec describes one page of a collection.
type QuerySpec struct {
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Sorters  []Sorter `json:"sorters,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
	// Extra carries caller-supplied parameters forwarded verbatim to the
	// remote API.
	Extra map[string]any `json:"extra,omitempty"`
}

// LoadResult is what Model.Load and Store.Load return.
type LoadResult struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
	Raw   any      `json:"raw,omitempty"`
}

// ValidationResult is the outcome of validating a record.
type ValidationResult struct {
	IsValid bool             `json:"is_valid"`
	Errors  ValidationErrors `json:"errors"`
}
