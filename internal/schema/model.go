// Package schema implements the Model: a field schema with validators,
// default values and associations, persisted through an optional proxy.
package schema

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/event"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/proxy"
	"github.com/pitabwire/uibind/model"
)

// Model validates records against a schema and synchronizes them with a
// remote collection. A Model is safe for concurrent use; its events fire on
// the calling goroutine.
type Model struct {
	def     model.ModelDefinition
	proxy   *proxy.Proxy
	events  *event.Bus[model.ModelEventKind, model.ModelEvent]
	logger  *zap.Logger
	redact  *observability.Redactor
	metrics *observability.Metrics

	mu      sync.RWMutex
	current model.Record
	data    []model.Record
}

// Option configures a Model.
type Option func(*Model)

// WithProxy binds the model to a remote collection.
func WithProxy(p *proxy.Proxy) Option {
	return func(m *Model) { m.proxy = p }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithMetrics records validation failures.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Model) { m.metrics = metrics }
}

// WithCurrent seeds the current record.
func WithCurrent(r model.Record) Option {
	return func(m *Model) { m.current = r }
}

// New creates a Model for def. An empty id property defaults to "id".
func New(def model.ModelDefinition, opts ...Option) *Model {
	if def.IDProperty == "" {
		def.IDProperty = model.DefaultIDProperty
	}
	m := &Model{
		def:    def,
		events: event.New[model.ModelEventKind, model.ModelEvent](),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("model", def.Name))
	m.redact = observability.NewRedactor(sensitiveFields(def.Fields)...)
	return m
}

// sensitiveFields names the fields marked sensitive in their config. Their
// values never reach the logs.
func sensitiveFields(fields []model.FieldSpec) []string {
	var out []string
	for _, f := range fields {
		if v, _ := f.Config["sensitive"].(bool); v {
			out = append(out, f.Name)
		}
	}
	return out
}

// Name returns the model name.
func (m *Model) Name() string { return m.def.Name }

// Definition returns the model definition.
func (m *Model) Definition() model.ModelDefinition { return m.def }

// Fields returns the schema in declaration order.
func (m *Model) Fields() []model.FieldSpec { return m.def.Fields }

// IDProperty returns the name of the id field.
func (m *Model) IDProperty() string { return m.def.IDProperty }

// Proxy returns the bound proxy, or nil.
func (m *Model) Proxy() *proxy.Proxy { return m.proxy }

// On subscribes fn to kind and returns the unsubscribe function.
func (m *Model) On(kind model.ModelEventKind, fn func(model.ModelEvent)) (off func()) {
	return m.events.On(kind, fn)
}

func (m *Model) fire(ev model.ModelEvent) {
	m.events.Fire(ev.Kind, ev)
}

// Validate checks record against the schema. It never fails; an invalid
// record yields IsValid false and fires validationFail.
func (m *Model) Validate(record model.Record) model.ValidationResult {
	errs := validateRecord(m.def.Fields, m.def.Validators, record)
	if len(errs) == 0 {
		return model.ValidationResult{IsValid: true, Errors: errs}
	}
	m.metrics.RecordValidationFailure(m.def.Name)
	m.logger.Debug("validation failed",
		zap.Strings("fields", slices.Sorted(maps.Keys(errs))),
		m.redact.Field("record", record),
	)
	m.fire(model.ModelEvent{Kind: model.ModelValidationFail, Errors: errs})
	return model.ValidationResult{IsValid: false, Errors: errs}
}

// Load reads a page of the collection and caches it as the model data.
func (m *Model) Load(ctx context.Context, q model.QuerySpec) (model.LoadResult, error) {
	if m.proxy == nil {
		return model.LoadResult{}, model.NewNoProxyError(m.def.Name)
	}
	ctx, span := observability.StartSpan(ctx, "model.load",
		observability.AttrModel.String(m.def.Name),
	)
	res, err := m.load(ctx, q)
	observability.EndSpanWithError(span, err)
	return res, err
}

func (m *Model) load(ctx context.Context, q model.QuerySpec) (model.LoadResult, error) {
	m.fire(model.ModelEvent{Kind: model.ModelBeforeLoad, Query: &q})

	raw, err := m.proxy.Read(ctx, q)
	if err != nil {
		return model.LoadResult{}, m.fail("load", err)
	}
	data, total := m.proxy.UnwrapList(raw)

	m.mu.Lock()
	m.data = slices.Clone(data)
	m.mu.Unlock()

	res := model.LoadResult{Data: data, Total: total, Raw: raw}
	m.fire(model.ModelEvent{Kind: model.ModelAfterLoad, Result: &res})
	return res, nil
}

// LoadByID reads one record and makes it the current record.
func (m *Model) LoadByID(ctx context.Context, id any) (model.Record, error) {
	if m.proxy == nil {
		return nil, model.NewNoProxyError(m.def.Name)
	}
	ctx, span := observability.StartSpan(ctx, "model.load_by_id",
		observability.AttrModel.String(m.def.Name),
		observability.AttrRecordID.String(model.IDString(id)),
	)
	rec, err := m.loadByID(ctx, id)
	observability.EndSpanWithError(span, err)
	return rec, err
}

func (m *Model) loadByID(ctx context.Context, id any) (model.Record, error) {
	m.fire(model.ModelEvent{Kind: model.ModelBeforeLoad, ID: id})

	raw, err := m.proxy.ReadOne(ctx, id)
	if err != nil {
		return nil, m.fail("load_by_id", err)
	}
	rec, _ := m.proxy.UnwrapOne(raw)

	m.mu.Lock()
	m.current = rec
	m.mu.Unlock()

	m.fire(model.ModelEvent{Kind: model.ModelAfterLoad, ID: id, Record: rec})
	return rec, nil
}

// Save validates record and creates it, or updates it when it carries an
// id. Validation failures return model.ValidationErrors without a remote
// call.
func (m *Model) Save(ctx context.Context, record model.Record) (model.Record, error) {
	if m.proxy == nil {
		return nil, model.NewNoProxyError(m.def.Name)
	}
	if res := m.Validate(record); !res.IsValid {
		return nil, res.Errors
	}
	ctx, span := observability.StartSpan(ctx, "model.save",
		observability.AttrModel.String(m.def.Name),
	)
	rec, err := m.save(ctx, record)
	observability.EndSpanWithError(span, err)
	return rec, err
}

func (m *Model) save(ctx context.Context, record model.Record) (model.Record, error) {
	m.fire(model.ModelEvent{Kind: model.ModelBeforeSave, Record: record})

	body := m.proxy.Wrap(record)
	var (
		raw any
		err error
	)
	if id, ok := record.ID(m.def.IDProperty); ok {
		m.logger.Debug("updating record",
			zap.String("id", model.IDString(id)),
			m.redact.Field("record", record),
		)
		raw, err = m.proxy.Update(ctx, id, body)
	} else {
		m.logger.Debug("creating record", m.redact.Field("record", record))
		raw, err = m.proxy.Create(ctx, body)
	}
	if err != nil {
		return nil, m.fail("save", err)
	}

	saved, ok := m.proxy.UnwrapWritten(raw)
	if !ok {
		saved = record.Clone()
	}

	m.mu.Lock()
	m.current = saved
	m.mu.Unlock()

	m.fire(model.ModelEvent{Kind: model.ModelAfterSave, Record: saved})
	return saved, nil
}

// Destroy deletes the record with id, or the current record when id is
// nil, and returns the raw response.
func (m *Model) Destroy(ctx context.Context, id any) (any, error) {
	if m.proxy == nil {
		return nil, model.NewNoProxyError(m.def.Name)
	}
	if !model.Truthy(id) {
		m.mu.RLock()
		id, _ = m.current.ID(m.def.IDProperty)
		m.mu.RUnlock()
	}
	if id == nil {
		return nil, model.NewMissingIDError(m.def.Name)
	}

	ctx, span := observability.StartSpan(ctx, "model.destroy",
		observability.AttrModel.String(m.def.Name),
		observability.AttrRecordID.String(model.IDString(id)),
	)
	resp, err := m.destroy(ctx, id)
	observability.EndSpanWithError(span, err)
	return resp, err
}

func (m *Model) destroy(ctx context.Context, id any) (any, error) {
	m.fire(model.ModelEvent{Kind: model.ModelBeforeDestroy, ID: id})

	resp, err := m.proxy.Destroy(ctx, id)
	if err != nil {
		return nil, m.fail("destroy", err)
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.fire(model.ModelEvent{Kind: model.ModelAfterDestroy, ID: id, Response: resp})
	return resp, nil
}

func (m *Model) fail(op string, err error) error {
	m.logger.Error("remote operation failed", zap.String("op", op), zap.Error(err))
	m.fire(model.ModelEvent{Kind: model.ModelError, Err: err})
	return err
}

// Create returns a new unpersisted record seeded with the default values.
func (m *Model) Create() model.Record {
	return m.def.DefaultValues.Clone()
}

// Current returns the record last loaded by id or saved, or nil.
func (m *Model) Current() model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrent replaces the current record.
func (m *Model) SetCurrent(r model.Record) {
	m.mu.Lock()
	m.current = r
	m.mu.Unlock()
}

// Data returns the records of the last collection load.
func (m *Model) Data() []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data)
}

// ToForm returns the values a form bound to this model starts with: the
// current record, or a new one.
func (m *Model) ToForm() model.Record {
	if cur := m.Current(); cur != nil {
		return cur
	}
	return m.Create()
}

// ProcessAssociations normalizes associated data in a copy of record:
// hasMany values become record lists and hasOne/belongsTo values become
// records. Values of other shapes are left untouched.
func (m *Model) ProcessAssociations(record model.Record) model.Record {
	if record == nil || len(m.def.Associations) == 0 {
		return record
	}
	out := record.Clone()
	for _, a := range m.def.Associations {
		v, ok := record[a.Name]
		if !ok || v == nil {
			continue
		}
		switch a.Kind {
		case model.HasMany:
			if isList(v) {
				out[a.Name] = model.ToRecords(v)
			}
		case model.HasOne, model.BelongsTo:
			if r, ok := model.ToRecord(v); ok {
				out[a.Name] = r
			}
		}
	}
	return out
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []model.Record, []map[string]any:
		return true
	}
	return false
}
