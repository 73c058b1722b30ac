// Package proxy implements the remote-access half of a Model or Store: it
// encodes collection queries, talks to a transport (REST over HTTP, an
// in-process memory collection or a Postgres table) and translates between
// wire envelopes and bare records.
package proxy

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

// Default envelope paths of the reader.
const (
	DefaultReaderRoot    = "data"
	DefaultTotalProperty = "total"
	DefaultTimeout       = 30 * time.Second
)

// Request is one call against a remote collection. ID is nil for collection
// requests (list and create).
type Request struct {
	Method string
	ID     any
	Query  url.Values
	Body   any
}

// Transport executes requests against one remote collection and returns the
// decoded response payload.
type Transport interface {
	Do(ctx context.Context, req Request) (any, error)
}

// Proxy binds a transport to the envelope and parameter conventions of one
// remote collection.
type Proxy struct {
	name      string
	cfg       model.ProxyConfig
	transport Transport
}

// New creates a Proxy over transport. Reader and parameter defaults are
// applied to cfg.
func New(name string, cfg model.ProxyConfig, transport Transport) *Proxy {
	return &Proxy{name: name, cfg: WithDefaults(cfg), transport: transport}
}

// WithDefaults fills unset reader paths, parameter names, kind and timeout.
func WithDefaults(cfg model.ProxyConfig) model.ProxyConfig {
	if cfg.Kind == "" {
		cfg.Kind = model.ProxyREST
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	reader := model.ReaderConfig{Root: DefaultReaderRoot, TotalProperty: DefaultTotalProperty}
	if cfg.Reader != nil {
		reader = *cfg.Reader
	}
	cfg.Reader = &reader
	if cfg.Writer == nil {
		cfg.Writer = &model.WriterConfig{}
	}
	cfg.Params = query.ParamNamesOrDefault(cfg.Params)
	return cfg
}

// Name identifies the proxy in logs and metrics.
func (p *Proxy) Name() string { return p.name }

// Config returns the effective configuration.
func (p *Proxy) Config() model.ProxyConfig { return p.cfg }

// Reader returns the response unwrap rules.
func (p *Proxy) Reader() model.ReaderConfig { return *p.cfg.Reader }

// Writer returns the request wrap rules.
func (p *Proxy) Writer() model.WriterConfig { return *p.cfg.Writer }

// Read lists the collection.
func (p *Proxy) Read(ctx context.Context, q model.QuerySpec) (any, error) {
	values, err := query.Encode(p.cfg.Params, q)
	if err != nil {
		return nil, model.NewBadRequestError(err.Error())
	}
	return p.transport.Do(ctx, Request{Method: http.MethodGet, Query: values})
}

// ReadOne fetches a single resource.
func (p *Proxy) ReadOne(ctx context.Context, id any) (any, error) {
	return p.transport.Do(ctx, Request{Method: http.MethodGet, ID: id})
}

// Create posts a new resource. body is sent as given; wrap it with Wrap first.
func (p *Proxy) Create(ctx context.Context, body any) (any, error) {
	return p.transport.Do(ctx, Request{Method: http.MethodPost, Body: body})
}

// Update replaces the resource with the given id.
func (p *Proxy) Update(ctx context.Context, id, body any) (any, error) {
	return p.transport.Do(ctx, Request{Method: http.MethodPut, ID: id, Body: body})
}

// Destroy deletes the resource with the given id and returns the raw response.
func (p *Proxy) Destroy(ctx context.Context, id any) (any, error) {
	return p.transport.Do(ctx, Request{Method: http.MethodDelete, ID: id})
}

// UnwrapList extracts records and total from a list response. A missing root
// falls back to the whole payload and a missing total to the record count.
func (p *Proxy) UnwrapList(raw any) ([]model.Record, int) {
	r := p.Reader()
	payload := raw
	if v, ok := Lookup(raw, r.Root); ok {
		payload = v
	}
	data := model.ToRecords(payload)
	total := len(data)
	if v, ok := Lookup(raw, r.TotalProperty); ok {
		if f, ok := model.ToFloat(v); ok {
			total = int(f)
		}
	}
	return data, total
}

// UnwrapOne extracts a single record from a read response using the reader
// root only.
func (p *Proxy) UnwrapOne(raw any) (model.Record, bool) {
	if v, ok := Lookup(raw, p.Reader().Root); ok {
		return model.ToRecord(v)
	}
	return model.ToRecord(raw)
}

// Wrap places a record under the writer root.
func (p *Proxy) Wrap(record model.Record) any {
	return Wrap(p.Writer().Root, map[string]any(record))
}

// UnwrapWritten extracts the saved record from a create or update response
// using the writer root.
func (p *Proxy) UnwrapWritten(raw any) (model.Record, bool) {
	if v, ok := Lookup(raw, p.Writer().Root); ok {
		return model.ToRecord(v)
	}
	return model.ToRecord(raw)
}
