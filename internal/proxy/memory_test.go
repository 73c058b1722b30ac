package proxy

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/model"
)

func newMemoryProxy(cfg model.ProxyConfig, seed ...model.Record) (*Proxy, *MemoryCollection) {
	coll := NewMemoryCollection("id", query.NewEngine("en"), seed...)
	cfg = WithDefaults(cfg)
	return New("mem", cfg, NewMemoryTransport(coll, cfg)), coll
}

func TestMemoryTransport_listAppliesQuery(t *testing.T) {
	p, _ := newMemoryProxy(model.ProxyConfig{},
		model.Record{"id": 1, "name": "delta", "team": "a"},
		model.Record{"id": 2, "name": "alpha", "team": "b"},
		model.Record{"id": 3, "name": "charlie", "team": "a"},
		model.Record{"id": 4, "name": "bravo", "team": "a"},
	)

	raw, err := p.Read(context.Background(), model.QuerySpec{
		Page:     1,
		PageSize: 2,
		Sorters:  []model.Sorter{{Property: "name"}},
		Filters:  []model.Filter{{Property: "team", Value: "a"}},
	})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	data, total := p.UnwrapList(raw)
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(data))
	}
	if data[0]["name"] != "bravo" || data[1]["name"] != "charlie" {
		t.Errorf("names = %v, %v, want bravo, charlie", data[0]["name"], data[1]["name"])
	}
}

func TestMemoryTransport_crudRoundTrip(t *testing.T) {
	p, coll := newMemoryProxy(model.ProxyConfig{Writer: &model.WriterConfig{Root: "record"}})
	ctx := context.Background()

	raw, err := p.Create(ctx, p.Wrap(model.Record{"name": "Ana"}))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	created, ok := p.UnwrapWritten(raw)
	if !ok {
		t.Fatalf("UnwrapWritten(%v) failed", raw)
	}
	id := created["id"]
	if id == nil || id == "" {
		t.Fatal("created record has no id")
	}
	if coll.Len() != 1 {
		t.Errorf("Len() = %d, want 1", coll.Len())
	}

	raw, err = p.Update(ctx, id, p.Wrap(model.Record{"name": "Bea"}))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	updated, _ := p.UnwrapWritten(raw)
	if updated["id"] != id || updated["name"] != "Bea" {
		t.Errorf("updated = %v", updated)
	}

	raw, err = p.ReadOne(ctx, id)
	if err != nil {
		t.Fatalf("ReadOne error: %v", err)
	}
	one, ok := p.UnwrapOne(raw)
	if !ok || one["name"] != "Bea" {
		t.Errorf("ReadOne = %v, %v", one, ok)
	}

	if _, err := p.Destroy(ctx, id); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}
	if coll.Len() != 0 {
		t.Errorf("Len() = %d, want 0", coll.Len())
	}
}

func TestMemoryTransport_errors(t *testing.T) {
	p, _ := newMemoryProxy(model.ProxyConfig{}, model.Record{"id": "x"})
	ctx := context.Background()

	_, err := p.ReadOne(ctx, "missing")
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.StatusCode != http.StatusNotFound {
		t.Errorf("ReadOne(missing) error = %v, want 404 envelope", err)
	}
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ReadOne(missing) error = %v, want NOT_FOUND", err)
	}

	_, err = p.Create(ctx, map[string]any{"id": "x"})
	if !errors.As(err, &env) || env.StatusCode != http.StatusConflict {
		t.Errorf("Create(duplicate) error = %v, want 409 envelope", err)
	}

	if _, err := p.Create(ctx, "not an object"); !errors.Is(err, model.ErrTransport) {
		t.Errorf("Create(non-object) error = %v, want TRANSPORT_ERROR", err)
	}
	if _, err := p.Destroy(ctx, "missing"); !errors.Is(err, model.ErrTransport) {
		t.Errorf("Destroy(missing) error = %v, want TRANSPORT_ERROR", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Read(cancelled, model.QuerySpec{}); !errors.Is(err, model.ErrTransport) {
		t.Errorf("Read(cancelled) error = %v, want TRANSPORT_ERROR", err)
	}
}

func TestMemoryTransport_seedIsCopied(t *testing.T) {
	seed := model.Record{"id": 1, "name": "orig"}
	p, _ := newMemoryProxy(model.ProxyConfig{}, seed)
	seed["name"] = "changed"

	raw, err := p.ReadOne(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadOne error: %v", err)
	}
	if rec, _ := p.UnwrapOne(raw); rec["name"] != "orig" {
		t.Errorf("name = %v, want orig", rec["name"])
	}
}
