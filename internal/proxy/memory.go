package proxy

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

// MemoryCollection is an in-process record collection that answers the
// remote API contract. It backs "memory" proxies and tests.
type MemoryCollection struct {
	mu         sync.RWMutex
	idProperty string
	records    []model.Record
	engine     *query.Engine
}

// NewMemoryCollection creates a collection seeded with copies of seed.
func NewMemoryCollection(idProperty string, engine *query.Engine, seed ...model.Record) *MemoryCollection {
	if idProperty == "" {
		idProperty = model.DefaultIDProperty
	}
	if engine == nil {
		engine = query.NewEngine("")
	}
	c := &MemoryCollection{idProperty: idProperty, engine: engine}
	for _, r := range seed {
		c.records = append(c.records, r.Clone())
	}
	return c
}

// Len returns the number of stored records.
func (c *MemoryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *MemoryCollection) indexOf(id any) int {
	for i, r := range c.records {
		if model.SameID(r[c.idProperty], id) {
			return i
		}
	}
	return -1
}

// MemoryTransport serves a MemoryCollection with the envelope conventions of
// one proxy configuration.
type MemoryTransport struct {
	coll   *MemoryCollection
	reader model.ReaderConfig
	writer model.WriterConfig
	params model.ParamNames
}

// NewMemoryTransport binds coll to cfg's reader, writer and parameter names.
func NewMemoryTransport(coll *MemoryCollection, cfg model.ProxyConfig) *MemoryTransport {
	cfg = WithDefaults(cfg)
	return &MemoryTransport{coll: coll, reader: *cfg.Reader, writer: *cfg.Writer, params: cfg.Params}
}

// Do implements Transport.
func (t *MemoryTransport) Do(ctx context.Context, req Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewTransportError(0, model.NewBackendTimeoutError())
	}
	switch {
	case req.Method == http.MethodGet && req.ID == nil:
		return t.list(req)
	case req.Method == http.MethodGet:
		return t.get(req.ID)
	case req.Method == http.MethodPost:
		return t.create(req.Body)
	case req.Method == http.MethodPut:
		return t.update(req.ID, req.Body)
	case req.Method == http.MethodDelete:
		return t.destroy(req.ID)
	}
	return nil, model.NewTransportError(http.StatusMethodNotAllowed,
		fmt.Errorf("method %s not supported", req.Method))
}

func (t *MemoryTransport) list(req Request) (any, error) {
	q, err := query.Decode(t.params, req.Query)
	if err != nil {
		return nil, model.NewTransportError(http.StatusBadRequest, err)
	}
	t.coll.mu.RLock()
	all := make([]model.Record, len(t.coll.records))
	for i, r := range t.coll.records {
		all[i] = r.Clone()
	}
	t.coll.mu.RUnlock()

	page, total := t.coll.engine.Apply(all, q)
	return Envelope(t.reader, page, total), nil
}

func (t *MemoryTransport) get(id any) (any, error) {
	t.coll.mu.RLock()
	defer t.coll.mu.RUnlock()
	i := t.coll.indexOf(id)
	if i < 0 {
		return nil, notFound(id)
	}
	return Wrap(t.reader.Root, map[string]any(t.coll.records[i].Clone())), nil
}

func (t *MemoryTransport) create(body any) (any, error) {
	rec, err := t.unwrapBody(body)
	if err != nil {
		return nil, err
	}
	if _, ok := rec.ID(t.coll.idProperty); !ok {
		rec[t.coll.idProperty] = uuid.NewString()
	}

	t.coll.mu.Lock()
	defer t.coll.mu.Unlock()
	if t.coll.indexOf(rec[t.coll.idProperty]) >= 0 {
		return nil, model.NewTransportError(http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("record %v already exists", rec[t.coll.idProperty])))
	}
	t.coll.records = append(t.coll.records, rec)
	return Wrap(t.writer.Root, map[string]any(rec.Clone())), nil
}

func (t *MemoryTransport) update(id, body any) (any, error) {
	rec, err := t.unwrapBody(body)
	if err != nil {
		return nil, err
	}

	t.coll.mu.Lock()
	defer t.coll.mu.Unlock()
	i := t.coll.indexOf(id)
	if i < 0 {
		return nil, notFound(id)
	}
	rec[t.coll.idProperty] = t.coll.records[i][t.coll.idProperty]
	t.coll.records[i] = rec
	return Wrap(t.writer.Root, map[string]any(rec.Clone())), nil
}

func (t *MemoryTransport) destroy(id any) (any, error) {
	t.coll.mu.Lock()
	defer t.coll.mu.Unlock()
	i := t.coll.indexOf(id)
	if i < 0 {
		return nil, notFound(id)
	}
	t.coll.records = append(t.coll.records[:i], t.coll.records[i+1:]...)
	return map[string]any{"success": true, t.coll.idProperty: id}, nil
}

func (t *MemoryTransport) unwrapBody(body any) (model.Record, error) {
	payload := body
	if v, ok := Lookup(body, t.writer.Root); ok {
		payload = v
	}
	rec, ok := model.ToRecord(payload)
	if !ok {
		return nil, model.NewTransportError(http.StatusBadRequest,
			model.NewBadRequestError("request body must be an object"))
	}
	return rec.Clone(), nil
}

func notFound(id any) error {
	return model.NewTransportError(http.StatusNotFound,
		model.NewNotFoundError(fmt.Sprintf("record %v not found", model.IDString(id))))
}
