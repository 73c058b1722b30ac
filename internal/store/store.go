// Package store implements the Store: an ordered, paginated record
// collection that loads from its own proxy, from its model, or from local
// data, and supports in-memory mutation.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/event"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/proxy"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/internal/schema"
	"github.com/pitabwire/uibind/model"
)

// DefaultPageSize applies when a store declares no page size.
const DefaultPageSize = 25

// Load sources reported in metrics and spans.
const (
	SourceProxy = "proxy"
	SourceModel = "model"
	SourceLocal = "local"
	SourceNone  = "none"
)

// Store holds one page of a collection plus the criteria used to load it.
//
// State is mutex-protected, but overlapping Load calls are not ordered: the
// last one to complete wins. Callers that load and then read the page back
// hold Exclusive around both steps.
type Store struct {
	id      string
	model   *schema.Model
	proxy   *proxy.Proxy
	engine  *query.Engine
	events  *event.Bus[model.StoreEventKind, model.StoreEvent]
	logger  *zap.Logger
	metrics *observability.Metrics

	autoLoad     bool
	remoteSort   bool
	remoteFilter bool

	loadMu sync.Mutex

	mu          sync.RWMutex
	local       []model.Record // full local source; data is the visible page
	data        []model.Record
	total       int
	currentPage int
	pageSize    int
	loading     bool
	sorters     []model.Sorter
	filters     []model.Filter
	groupers    []model.Grouper
}

// Option configures a Store.
type Option func(*Store)

// WithModel binds the store to a model. The model supplies the id property
// and, when the store has no proxy, the data source.
func WithModel(m *schema.Model) Option {
	return func(s *Store) { s.model = m }
}

// WithProxy gives the store its own remote source.
func WithProxy(p *proxy.Proxy) Option {
	return func(s *Store) { s.proxy = p }
}

// WithEngine sets the engine used for local queries.
func WithEngine(e *query.Engine) Option {
	return func(s *Store) { s.engine = e }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records load metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithDefaultPageSize overrides DefaultPageSize for stores declaring none.
func WithDefaultPageSize(n int) Option {
	return func(s *Store) {
		if s.pageSize == 0 && n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a Store from def. Declared data seeds the local source and
// the total. AutoLoad is not acted on here; see Store.AutoLoad.
func New(def model.StoreDefinition, opts ...Option) *Store {
	s := &Store{
		id:           def.ID,
		events:       event.New[model.StoreEventKind, model.StoreEvent](),
		logger:       zap.NewNop(),
		autoLoad:     def.AutoLoad,
		remoteSort:   boolOr(def.RemoteSort, true),
		remoteFilter: boolOr(def.RemoteFilter, true),
		currentPage:  1,
		pageSize:     def.PageSize,
		sorters:      append([]model.Sorter(nil), def.Sorters...),
		filters:      append([]model.Filter(nil), def.Filters...),
		groupers:     append([]model.Grouper(nil), def.Groupers...),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.engine == nil {
		s.engine = query.NewEngine("")
	}
	s.logger = s.logger.With(zap.String("store", def.ID))
	s.seed(def.Data)
	return s
}

// NewWithData creates a Store seeded with data in place of the declared
// data.
func NewWithData(def model.StoreDefinition, data []model.Record, opts ...Option) *Store {
	def.Data = data
	return New(def, opts...)
}

func (s *Store) seed(data []model.Record) {
	s.local = make([]model.Record, len(data))
	copy(s.local, data)
	s.data = make([]model.Record, len(data))
	copy(s.data, data)
	s.total = len(data)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// ID returns the store identifier.
func (s *Store) ID() string { return s.id }

// Model returns the bound model, or nil.
func (s *Store) Model() *schema.Model { return s.model }

// Proxy returns the store's own proxy, or nil.
func (s *Store) Proxy() *proxy.Proxy { return s.proxy }

// AutoLoad reports whether the owner should load the store once built.
func (s *Store) AutoLoad() bool { return s.autoLoad }

// RemoteSort reports whether sorters are sent to the remote source.
func (s *Store) RemoteSort() bool { return s.remoteSort }

// RemoteFilter reports whether filters are sent to the remote source.
func (s *Store) RemoteFilter() bool { return s.remoteFilter }

// IDProperty returns the id field of the bound model, or "id".
func (s *Store) IDProperty() string {
	if s.model != nil {
		return s.model.IDProperty()
	}
	return model.DefaultIDProperty
}

// On subscribes fn to kind and returns the unsubscribe function.
func (s *Store) On(kind model.StoreEventKind, fn func(model.StoreEvent)) (off func()) {
	return s.events.On(kind, fn)
}

func (s *Store) fire(ev model.StoreEvent) {
	s.events.Fire(ev.Kind, ev)
}

// Data returns a copy of the visible records.
func (s *Store) Data() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot() []model.Record {
	out := make([]model.Record, len(s.data))
	copy(out, s.data)
	return out
}

// Total returns the size of the whole collection as of the last load or
// mutation.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// CurrentPage returns the 1-based page of the last load.
func (s *Store) CurrentPage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPage
}

// PageSize returns the page size.
func (s *Store) PageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageSize
}

// SetPageSize changes the page size used by later loads.
func (s *Store) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// Exclusive runs fn holding the store's load lock. Load does not take the
// lock itself, so fn may call it.
func (s *Store) Exclusive(fn func()) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	fn()
}

// Loading reports whether a load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// ToGrid returns the data and total a grid binds to.
func (s *Store) ToGrid() model.LoadResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.LoadResult{Data: s.snapshot(), Total: s.total}
}

// Load fetches a page. params.Page and params.PageSize default to the
// current page and the page size; their sorters and filters are appended to
// the store's own. The source is, in order: the store's proxy, the model's
// proxy, the local data. Local queries always apply the criteria.
func (s *Store) Load(ctx context.Context, params model.QuerySpec) (model.LoadResult, error) {
	ctx, span := observability.StartSpan(ctx, "store.load",
		observability.AttrStore.String(s.id),
	)
	start := time.Now()
	res, source, err := s.load(ctx, params)
	span.SetAttributes(observability.AttrLoadFrom.String(source))
	observability.EndSpanWithError(span, err)

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreLoad(s.id, source, status, time.Since(start))
	return res, err
}

func (s *Store) load(ctx context.Context, params model.QuerySpec) (model.LoadResult, string, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.fire(model.StoreEvent{Kind: model.StoreBeforeLoad, Params: &params})

	req, local, source := s.request(params)

	var (
		res model.LoadResult
		err error
	)
	switch source {
	case SourceProxy:
		var raw any
		raw, err = s.proxy.Read(ctx, req)
		if err == nil {
			data, total := s.proxy.UnwrapList(raw)
			res = model.LoadResult{Data: data, Total: total, Raw: raw}
		}
	case SourceModel:
		res, err = s.model.Load(ctx, req)
	case SourceLocal:
		page, total := s.engine.Apply(local, req)
		res = model.LoadResult{Data: page, Total: total}
		res.Raw = map[string]any{"data": page, "total": total}
	default:
		err = model.NewNoDataSourceError(s.id)
	}

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.data = slices.Clone(res.Data)
		s.total = res.Total
		if params.Page > 0 {
			s.currentPage = params.Page
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("store load failed", zap.String("source", source), zap.Error(err))
		s.fire(model.StoreEvent{Kind: model.StoreLoadError, Params: &req, Err: err})
		return model.LoadResult{}, source, err
	}
	s.logger.Debug("store loaded",
		zap.String("source", source),
		zap.Int("records", len(res.Data)),
		zap.Int("total", res.Total),
	)
	s.fire(model.StoreEvent{
		Kind:   model.StoreLoad,
		Params: &req,
		Data:   res.Data,
		Total:  res.Total,
		Raw:    res.Raw,
	})
	return res, source, nil
}

// request builds the effective query for params and picks the source. For
// the local source it also returns a copy of the local records.
func (s *Store) request(params model.QuerySpec) (model.QuerySpec, []model.Record, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := model.QuerySpec{
		Page:     params.Page,
		PageSize: params.PageSize,
		Extra:    params.Extra,
	}
	if req.Page <= 0 {
		req.Page = s.currentPage
	}
	if req.PageSize <= 0 {
		req.PageSize = s.pageSize
	}

	source := SourceNone
	switch {
	case s.proxy != nil:
		source = SourceProxy
	case s.model != nil && s.model.Proxy() != nil:
		source = SourceModel
	case len(s.local) > 0:
		source = SourceLocal
	}

	if source == SourceLocal || s.remoteSort {
		req.Sorters = append(req.Sorters, s.sorters...)
	}
	if source == SourceLocal || s.remoteFilter {
		req.Filters = append(req.Filters, s.filters...)
	}
	req.Sorters = append(req.Sorters, params.Sorters...)
	req.Filters = append(req.Filters, params.Filters...)

	var local []model.Record
	if source == SourceLocal {
		local = make([]model.Record, len(s.local))
		copy(local, s.local)
	}
	return req, local, source
}

// Add appends records and grows the total. A record whose id is already
// held is merged into the held record instead, so ids stay unique.
func (s *Store) Add(records ...model.Record) []model.Record {
	s.fire(model.StoreEvent{Kind: model.StoreBeforeAdd, Records: records})

	idProp := s.IDProperty()
	s.mu.Lock()
	for _, r := range records {
		id, ok := r[idProp]
		if !ok || id == nil {
			s.data = append(s.data, r)
			s.local = append(s.local, r)
			s.total++
			continue
		}
		if i := indexByID(s.data, idProp, id); i >= 0 {
			s.data[i] = s.data[i].Merge(r)
		} else {
			s.data = append(s.data, r)
			s.total++
		}
		if j := indexByID(s.local, idProp, id); j >= 0 {
			s.local[j] = s.local[j].Merge(r)
		} else {
			s.local = append(s.local, r)
		}
	}
	data, total := s.snapshot(), s.total
	s.mu.Unlock()

	s.fire(model.StoreEvent{Kind: model.StoreAdd, Records: records, Data: data, Total: total})
	s.fire(model.StoreEvent{Kind: model.StoreDataChanged, Data: data, Total: total})
	return records
}

// Remove deletes the records matching items by id. An item is a record or
// a bare id value. Unknown ids are ignored; the events fire regardless.
func (s *Store) Remove(items ...any) []any {
	records := make([]model.Record, 0, len(items))
	ids := make([]any, len(items))
	idProp := s.IDProperty()
	for i, item := range items {
		if r, ok := model.ToRecord(item); ok {
			records = append(records, r)
			ids[i] = r[idProp]
			continue
		}
		ids[i] = item
	}
	s.fire(model.StoreEvent{Kind: model.StoreBeforeRemove, Records: records})

	s.mu.Lock()
	var removed int
	s.data, removed = without(s.data, idProp, ids)
	s.local, _ = without(s.local, idProp, ids)
	s.total -= removed
	data, total := s.snapshot(), s.total
	s.mu.Unlock()

	s.fire(model.StoreEvent{Kind: model.StoreRemove, Records: records, Data: data, Total: total})
	s.fire(model.StoreEvent{Kind: model.StoreDataChanged, Data: data, Total: total})
	return items
}

func without(records []model.Record, idProp string, ids []any) ([]model.Record, int) {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if containsID(ids, r[idProp]) {
			continue
		}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

func containsID(ids []any, id any) bool {
	for _, candidate := range ids {
		if candidate != nil && model.SameID(candidate, id) {
			return true
		}
	}
	return false
}

// Update merges each record into the stored record with the same id and
// returns the merged records. Events after beforeUpdate fire only when at
// least one record matched.
func (s *Store) Update(records ...model.Record) []model.Record {
	s.fire(model.StoreEvent{Kind: model.StoreBeforeUpdate, Records: records})

	idProp := s.IDProperty()
	var updated []model.Record

	s.mu.Lock()
	for _, r := range records {
		id := r[idProp]
		i := indexByID(s.data, idProp, id)
		if i < 0 {
			continue
		}
		merged := s.data[i].Merge(r)
		s.data[i] = merged
		if j := indexByID(s.local, idProp, id); j >= 0 {
			s.local[j] = s.local[j].Merge(r)
		}
		updated = append(updated, merged)
	}
	data, total := s.snapshot(), s.total
	s.mu.Unlock()

	if len(updated) == 0 {
		return updated
	}
	s.fire(model.StoreEvent{Kind: model.StoreUpdate, Records: updated, Data: data, Total: total})
	s.fire(model.StoreEvent{Kind: model.StoreDataChanged, Data: data, Total: total})
	return updated
}

func indexByID(records []model.Record, idProp string, id any) int {
	for i, r := range records {
		if model.SameID(r[idProp], id) {
			return i
		}
	}
	return -1
}

// Find returns the first visible record whose property equals value.
func (s *Store) Find(property string, value any) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.findIndex(property, value); i >= 0 {
		return s.data[i], true
	}
	return nil, false
}

// FindIndex returns the position of the first visible record whose
// property equals value, or -1.
func (s *Store) FindIndex(property string, value any) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findIndex(property, value)
}

func (s *Store) findIndex(property string, value any) int {
	for i, r := range s.data {
		v, ok := r[property]
		if ok && query.Equal(v, value) {
			return i
		}
	}
	return -1
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	s.data = []model.Record{}
	s.local = nil
	s.total = 0
	s.mu.Unlock()
	s.fire(model.StoreEvent{Kind: model.StoreDataChanged, Data: []model.Record{}})
}

// Sorters returns a copy of the sort criteria.
func (s *Store) Sorters() []model.Sorter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Sorter(nil), s.sorters...)
}

// Filters returns a copy of the filter criteria.
func (s *Store) Filters() []model.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Filter(nil), s.filters...)
}

// Groupers returns the grouping configuration.
func (s *Store) Groupers() []model.Grouper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Grouper(nil), s.groupers...)
}

// AddFilter appends a filter. The store is not reloaded.
func (s *Store) AddFilter(f model.Filter) *Store {
	s.mu.Lock()
	s.filters = append(s.filters, f)
	s.mu.Unlock()
	return s
}

// RemoveFilter drops every filter on property.
func (s *Store) RemoveFilter(property string) *Store {
	s.mu.Lock()
	out := s.filters[:0:0]
	for _, f := range s.filters {
		if f.Property != property {
			out = append(out, f)
		}
	}
	s.filters = out
	s.mu.Unlock()
	return s
}

// ClearFilters drops every filter.
func (s *Store) ClearFilters() *Store {
	s.mu.Lock()
	s.filters = nil
	s.mu.Unlock()
	return s
}

// AddSorter appends a sorter. The store is not reloaded.
func (s *Store) AddSorter(sorter model.Sorter) *Store {
	s.mu.Lock()
	s.sorters = append(s.sorters, sorter)
	s.mu.Unlock()
	return s
}

// RemoveSorter drops every sorter on property.
func (s *Store) RemoveSorter(property string) *Store {
	s.mu.Lock()
	out := s.sorters[:0:0]
	for _, so := range s.sorters {
		if so.Property != property {
			out = append(out, so)
		}
	}
	s.sorters = out
	s.mu.Unlock()
	return s
}

// ClearSorters drops every sorter.
func (s *Store) ClearSorters() *Store {
	s.mu.Lock()
	s.sorters = nil
	s.mu.Unlock()
	return s
}
