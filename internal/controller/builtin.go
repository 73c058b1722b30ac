package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/pitabwire/uibind/internal/schema"
	"github.com/pitabwire/uibind/internal/store"
	"github.com/pitabwire/uibind/model"
)

// Names of the standard actions returned by Builtins.
const (
	ActionStoreLoad     = "store.load"
	ActionStoreClear    = "store.clear"
	ActionModelSave     = "model.save"
	ActionModelDestroy  = "model.destroy"
	ActionModelValidate = "model.validate"
)

// Builtins returns the standard data actions. The first argument names the
// store or model; the second carries the query, record or ID.
func Builtins() map[string]Action {
	return map[string]Action{
		ActionStoreLoad:     storeLoad,
		ActionStoreClear:    storeClear,
		ActionModelSave:     modelSave,
		ActionModelDestroy:  modelDestroy,
		ActionModelValidate: modelValidate,
	}
}

// MergeActions returns a new map holding base overlaid with extra.
func MergeActions(base, extra map[string]Action) map[string]Action {
	out := make(map[string]Action, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

func storeLoad(ctx context.Context, c *Controller, args ...any) (any, error) {
	s, err := storeArg(c, args)
	if err != nil {
		return nil, err
	}
	var q model.QuerySpec
	if len(args) > 1 {
		if q, err = decodeArg[model.QuerySpec](args[1]); err != nil {
			return nil, err
		}
	}
	var res model.LoadResult
	s.Exclusive(func() { res, err = s.Load(ctx, q) })
	return res, err
}

func storeClear(_ context.Context, c *Controller, args ...any) (any, error) {
	s, err := storeArg(c, args)
	if err != nil {
		return nil, err
	}
	s.Clear()
	return true, nil
}

func modelSave(ctx context.Context, c *Controller, args ...any) (any, error) {
	m, err := modelArg(c, args)
	if err != nil {
		return nil, err
	}
	record, err := recordArg(args)
	if err != nil {
		return nil, err
	}
	saved, err := m.Save(ctx, record)
	if err != nil {
		return nil, err
	}
	c.syncStores(m, saved)
	return saved, nil
}

func modelDestroy(ctx context.Context, c *Controller, args ...any) (any, error) {
	m, err := modelArg(c, args)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 || args[1] == nil {
		return nil, model.NewMissingIDError(m.Name())
	}
	id := args[1]
	if r, ok := model.ToRecord(id); ok {
		if id, ok = r.ID(idPropertyOf(m)); !ok {
			return nil, model.NewMissingIDError(m.Name())
		}
	}
	if _, err := m.Destroy(ctx, id); err != nil {
		return nil, err
	}
	for _, s := range c.storesOf(m) {
		s.Remove(id)
	}
	return true, nil
}

func modelValidate(_ context.Context, c *Controller, args ...any) (any, error) {
	m, err := modelArg(c, args)
	if err != nil {
		return nil, err
	}
	record, err := recordArg(args)
	if err != nil {
		return nil, err
	}
	return m.Validate(record), nil
}

func storeArg(c *Controller, args []any) (*store.Store, error) {
	id, ok := nameArg(args)
	if !ok {
		return nil, model.NewBadRequestError("first argument must be a store id")
	}
	s, found := c.Store(id)
	if !found {
		return nil, model.NewNotFoundError(fmt.Sprintf("store %s not found", id))
	}
	return s, nil
}

func modelArg(c *Controller, args []any) (*schema.Model, error) {
	name, ok := nameArg(args)
	if !ok {
		return nil, model.NewBadRequestError("first argument must be a model name")
	}
	m, found := c.Model(name)
	if !found {
		return nil, model.NewUnknownModelError(name)
	}
	return m, nil
}

func nameArg(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok && s != ""
}

func recordArg(args []any) (model.Record, error) {
	if len(args) < 2 || args[1] == nil {
		return model.Record{}, nil
	}
	if r, ok := model.ToRecord(args[1]); ok {
		return r, nil
	}
	return nil, model.NewBadRequestError("second argument must be a record")
}

// decodeArg converts a loosely typed argument, such as a decoded JSON
// object, into T.
func decodeArg[T any](v any) (T, error) {
	var out T
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, model.NewBadRequestError(fmt.Sprintf("invalid argument: %v", err))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, model.NewBadRequestError(fmt.Sprintf("invalid argument: %v", err))
	}
	return out, nil
}

// storesOf returns the stores bound to m, ordered by store ID.
func (c *Controller) storesOf(m *schema.Model) []*store.Store {
	var out []*store.Store
	for _, id := range c.StoreIDs() {
		if s := c.stores[id]; s.Model() == m {
			out = append(out, s)
		}
	}
	return out
}

// syncStores merges a saved record into every store bound to m, adding it
// where it is not yet present.
func (c *Controller) syncStores(m *schema.Model, saved model.Record) {
	idProp := idPropertyOf(m)
	id, ok := saved.ID(idProp)
	if !ok {
		return
	}
	for _, s := range c.storesOf(m) {
		if s.FindIndex(idProp, id) >= 0 {
			s.Update(saved)
		} else {
			s.Add(saved)
		}
	}
}
