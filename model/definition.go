package model

import "time"

// AppDefinition is the root structure of a definition file. Each file
// declares one application's models, stores, and view descriptors.
type AppDefinition struct {
	App     string            `yaml:"app"     json:"app"`
	Version string            `yaml:"version" json:"version"`
	Models  []ModelDefinition `yaml:"models"  json:"models,omitempty"`
	Stores  []StoreDefinition `yaml:"stores"  json:"stores,omitempty"`
	Views   []ViewDefinition  `yaml:"views"   json:"views,omitempty"`
	Routes  []RouteDefinition `yaml:"routes"  json:"routes,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// FieldType is the declared type of a schema slot.
type FieldType string

// Supported field types.
const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldSelect  FieldType = "select"
)

// Valid reports whether t is one of the supported field types. The empty type
// is valid and means string.
func (t FieldType) Valid() bool {
	switch t {
	case "", FieldString, FieldNumber, FieldBoolean, FieldDate, FieldSelect:
		return true
	}
	return false
}

// ValidatorKind names one of the closed set of field validators.
type ValidatorKind string

// Supported validator kinds.
const (
	ValidateRequired ValidatorKind = "required"
	ValidateEmail    ValidatorKind = "email"
	ValidateLength   ValidatorKind = "length"
	ValidateMin      ValidatorKind = "min"
	ValidateMax      ValidatorKind = "max"
	ValidateCustom   ValidatorKind = "custom"
)

// Valid reports whether k is a known validator kind.
func (k ValidatorKind) Valid() bool {
	switch k {
	case ValidateRequired, ValidateEmail, ValidateLength, ValidateMin, ValidateMax, ValidateCustom:
		return true
	}
	return false
}

// CustomValidator is a user-supplied predicate over a field value and the
// whole record.
type CustomValidator func(value any, record Record) bool

// RecordValidator is a model-level predicate over the whole record.
type RecordValidator func(record Record) bool

// ValidatorSpec declares one field validator.
type ValidatorSpec struct {
	Kind    ValidatorKind   `yaml:"type"    json:"type"`
	Message string          `yaml:"message" json:"message,omitempty"`
	Len     int             `yaml:"len"     json:"len,omitempty"`
	Min     *float64        `yaml:"min"     json:"min,omitempty"`
	Max     *float64        `yaml:"max"     json:"max,omitempty"`
	Fn      CustomValidator `yaml:"-"       json:"-"`
}

// ModelValidator declares a model-level validator.
type ModelValidator struct {
	Message string          `yaml:"message" json:"message,omitempty"`
	Fn      RecordValidator `yaml:"-"       json:"-"`
}

// FieldSpec defines one schema slot.
type FieldSpec struct {
	Name       string          `yaml:"name"       json:"name"`
	Type       FieldType       `yaml:"type"       json:"type,omitempty"`
	Label      string          `yaml:"label"      json:"label,omitempty"`
	Required   bool            `yaml:"required"   json:"required,omitempty"`
	Hidden     bool            `yaml:"hidden"     json:"hidden,omitempty"`
	Sortable   *bool           `yaml:"sortable"   json:"sortable,omitempty"`
	Filterable *bool           `yaml:"filterable" json:"filterable,omitempty"`
	Width      string          `yaml:"width"      json:"width,omitempty"`
	Validators []ValidatorSpec `yaml:"validators" json:"validators,omitempty"`
	Config     map[string]any  `yaml:"config"     json:"config,omitempty"`
}

// TypeOrDefault returns the declared type, or string when unset.
func (f FieldSpec) TypeOrDefault() FieldType {
	if f.Type == "" {
		return FieldString
	}
	return f.Type
}

// LabelOrName returns the label, or the field name when unset.
func (f FieldSpec) LabelOrName() string {
	if f.Label == "" {
		return f.Name
	}
	return f.Label
}

// AssociationKind names a relation between models.
type AssociationKind string

// Supported association kinds.
const (
	HasMany   AssociationKind = "hasMany"
	BelongsTo AssociationKind = "belongsTo"
	HasOne    AssociationKind = "hasOne"
)

// Association declares a relation to another model.
type Association struct {
	Kind       AssociationKind `yaml:"type"        json:"type"`
	Name       string          `yaml:"name"        json:"name"`
	Model      string          `yaml:"model"       json:"model,omitempty"`
	ForeignKey string          `yaml:"foreign_key" json:"foreign_key,omitempty"`
	PrimaryKey string          `yaml:"primary_key" json:"primary_key,omitempty"`
}

// SchemaRef points at an OpenAPI component schema from which fields are
// derived when a model declares none.
type SchemaRef struct {
	ServiceID string `yaml:"service_id" json:"service_id"`
	Schema    string `yaml:"schema"     json:"schema"`
}

// ModelDefinition declares a Model.
type ModelDefinition struct {
	Name          string           `yaml:"name"           json:"name"`
	Fields        []FieldSpec      `yaml:"fields"         json:"fields"`
	IDProperty    string           `yaml:"id_property"    json:"id_property,omitempty"`
	Proxy         *ProxyConfig     `yaml:"proxy"          json:"proxy,omitempty"`
	Associations  []Association    `yaml:"associations"   json:"associations,omitempty"`
	Validators    []ModelValidator `yaml:"-"              json:"-"`
	DefaultValues Record           `yaml:"default_values" json:"default_values,omitempty"`
	SchemaRef     *SchemaRef       `yaml:"schema_ref"     json:"schema_ref,omitempty"`
}

// Field returns the field with the given name.
func (d ModelDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ProxyKind selects the transport behind a proxy.
type ProxyKind string

// Supported proxy kinds.
const (
	ProxyREST     ProxyKind = "rest"
	ProxyMemory   ProxyKind = "memory"
	ProxyPostgres ProxyKind = "postgres"
)

// ProxyConfig describes the remote collection a Model or Store talks to.
type ProxyConfig struct {
	Kind           ProxyKind            `yaml:"type"            json:"type,omitempty"`
	BaseURL        string               `yaml:"url"             json:"url,omitempty"`
	Headers        map[string]string    `yaml:"headers"         json:"headers,omitempty"`
	Timeout        time.Duration        `yaml:"timeout"         json:"timeout,omitempty"`
	Reader         *ReaderConfig        `yaml:"reader"          json:"reader,omitempty"`
	Writer         *WriterConfig        `yaml:"writer"          json:"writer,omitempty"`
	Params         ParamNames           `yaml:"params"          json:"params,omitempty"`
	Retry          RetryPolicy          `yaml:"retry"           json:"retry,omitempty"`
	CircuitBreaker CircuitBreakerPolicy `yaml:"circuit_breaker" json:"circuit_breaker,omitempty"`
	Table          string               `yaml:"table"           json:"table,omitempty"`
	Collection     string               `yaml:"collection"      json:"collection,omitempty"`
}

// ReaderConfig describes how to unwrap a response envelope. Both paths are
// dot-separated.
type ReaderConfig struct {
	Root          string `yaml:"root"           json:"root,omitempty"`
	TotalProperty string `yaml:"total_property" json:"total_property,omitempty"`
}

// WriterConfig describes how to wrap a request body and unwrap the echoed
// record.
type WriterConfig struct {
	Root string `yaml:"root" json:"root,omitempty"`
}

// ParamNames names the query parameters used for list requests.
type ParamNames struct {
	Page   string `yaml:"page"   json:"page,omitempty"`
	Limit  string `yaml:"limit"  json:"limit,omitempty"`
	Sort   string `yaml:"sort"   json:"sort,omitempty"`
	Filter string `yaml:"filter" json:"filter,omitempty"`
}

// RetryPolicy describes retries for idempotent transport calls.
type RetryPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"    json:"max_attempts,omitempty"`
	BackoffInitial time.Duration `yaml:"backoff_initial" json:"backoff_initial,omitempty"`
	BackoffMax     time.Duration `yaml:"backoff_max"     json:"backoff_max,omitempty"`
}

// CircuitBreakerPolicy describes when a transport stops calling a failing
// backend.
type CircuitBreakerPolicy struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold,omitempty"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold,omitempty"`
	Timeout          time.Duration `yaml:"timeout"           json:"timeout,omitempty"`
}

// StoreDefinition declares a Store.
type StoreDefinition struct {
	ID           string       `yaml:"id"            json:"id"`
	ModelName    string       `yaml:"model"         json:"model,omitempty"`
	Proxy        *ProxyConfig `yaml:"proxy"         json:"proxy,omitempty"`
	PageSize     int          `yaml:"page_size"     json:"page_size,omitempty"`
	RemoteSort   *bool        `yaml:"remote_sort"   json:"remote_sort,omitempty"`
	RemoteFilter *bool        `yaml:"remote_filter" json:"remote_filter,omitempty"`
	AutoLoad     bool         `yaml:"auto_load"     json:"auto_load,omitempty"`
	Sorters      []Sorter     `yaml:"sorters"       json:"sorters,omitempty"`
	Filters      []Filter     `yaml:"filters"       json:"filters,omitempty"`
	Groupers     []Grouper    `yaml:"groupers"      json:"groupers,omitempty"`
	Data         []Record     `yaml:"data"          json:"data,omitempty"`
}

// ViewDefinition names a node descriptor tree so it can be served by ID.
type ViewDefinition struct {
	ID   string         `yaml:"id"   json:"id"`
	Root NodeDescriptor `yaml:"root" json:"root"`
}

// RouteDefinition is carried as configuration for the host router; the
// runtime does not route.
type RouteDefinition struct {
	Path   string `yaml:"path"   json:"path"`
	ViewID string `yaml:"view"   json:"view"`
	Action string `yaml:"action" json:"action,omitempty"`
}
