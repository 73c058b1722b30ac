package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/schema"
	"github.com/pitabwire/uibind/internal/store"
	"github.com/pitabwire/uibind/model"
)

// FormOptions binds a form to a model and optionally a store.
type FormOptions struct {
	ModelName string
	StoreName string
	// BeforeSubmit vetoes a submit by returning false.
	BeforeSubmit func(values model.Record) bool
	AfterSave    func(saved model.Record)
	AfterLoad    func(loaded model.Record)
}

// FormHandlers are the callbacks a form view invokes.
type FormHandlers struct {
	// OnSubmit saves values through the bound model and syncs the bound
	// store. A vetoed submit returns nil, nil.
	OnSubmit func(ctx context.Context, values model.Record) (model.Record, error)
	// OnLoad loads the record named by params["id"], or a fresh record.
	OnLoad func(ctx context.Context, params model.Record) (model.Record, error)
}

// FormHandlers builds the submit and load callbacks for the named form.
// Unknown model or store names leave the handlers unbound to them.
func (c *Controller) FormHandlers(formName string, opts FormOptions) FormHandlers {
	m := c.modelOrNil(opts.ModelName)
	s := c.storeOrNil(opts.StoreName)
	logger := c.logger.With(zap.String("form", formName))

	submit := func(ctx context.Context, values model.Record) (model.Record, error) {
		if opts.BeforeSubmit != nil && !opts.BeforeSubmit(values) {
			return nil, nil
		}

		var saved model.Record
		if m != nil {
			var err error
			saved, err = m.Save(ctx, values)
			if err != nil {
				logger.Error("form submit failed", zap.Error(err))
				return nil, err
			}
		}

		if s != nil && saved != nil {
			idProp := idPropertyOf(m)
			if id, ok := saved.ID(idProp); ok {
				if s.FindIndex(idProp, id) >= 0 {
					s.Update(saved)
				} else {
					s.Add(saved)
				}
			}
		}

		if opts.AfterSave != nil {
			opts.AfterSave(saved)
		}
		return saved, nil
	}

	load := func(ctx context.Context, params model.Record) (model.Record, error) {
		var loaded model.Record
		if m != nil {
			if id, ok := params.ID(model.DefaultIDProperty); ok {
				var err error
				loaded, err = m.LoadByID(ctx, id)
				if err != nil {
					logger.Error("form load failed", zap.Error(err))
					return nil, err
				}
			} else {
				loaded = m.Create()
			}
		}
		if opts.AfterLoad != nil {
			opts.AfterLoad(loaded)
		}
		return loaded, nil
	}

	return FormHandlers{OnSubmit: submit, OnLoad: load}
}

// GridOptions binds a grid to a store and optionally a model.
type GridOptions struct {
	StoreName   string
	ModelName   string
	AfterLoad   func(result model.LoadResult)
	AfterDelete func(deleted model.Record)
	AfterEdit   func(edited model.Record)
	AfterAdd    func(added model.Record)
}

// GridHandlers are the callbacks a grid view invokes.
type GridHandlers struct {
	OnLoad   func(ctx context.Context, params model.QuerySpec) (model.LoadResult, error)
	OnDelete func(ctx context.Context, record model.Record) (bool, error)
	OnEdit   func(record model.Record) model.Record
	OnAdd    func() model.Record
}

// GridHandlers builds the load, delete, edit and add callbacks for the
// named grid. Load and delete fail with NOT_FOUND when the store is unknown.
func (c *Controller) GridHandlers(gridName string, opts GridOptions) GridHandlers {
	s := c.storeOrNil(opts.StoreName)
	m := c.modelOrNil(opts.ModelName)
	logger := c.logger.With(zap.String("grid", gridName))

	missingStore := func() error {
		return model.NewNotFoundError(fmt.Sprintf("no store bound to grid %s", gridName))
	}

	load := func(ctx context.Context, params model.QuerySpec) (model.LoadResult, error) {
		if s == nil {
			return model.LoadResult{}, missingStore()
		}
		result, err := s.Load(ctx, params)
		if err != nil {
			logger.Error("grid load failed", zap.Error(err))
			return model.LoadResult{}, err
		}
		if opts.AfterLoad != nil {
			opts.AfterLoad(result)
		}
		return result, nil
	}

	remove := func(ctx context.Context, record model.Record) (bool, error) {
		if s == nil {
			return false, missingStore()
		}
		id, ok := record.ID(idPropertyOf(m))
		if !ok {
			return false, model.NewMissingIDError(opts.ModelName)
		}
		if m != nil {
			if _, err := m.Destroy(ctx, id); err != nil {
				logger.Error("grid delete failed", zap.Error(err))
				return false, err
			}
		}
		s.Remove(record)
		if opts.AfterDelete != nil {
			opts.AfterDelete(record)
		}
		return true, nil
	}

	edit := func(record model.Record) model.Record {
		if opts.AfterEdit != nil {
			opts.AfterEdit(record)
		}
		return record
	}

	add := func() model.Record {
		added := model.Record{}
		if m != nil {
			added = m.Create()
		}
		if opts.AfterAdd != nil {
			opts.AfterAdd(added)
		}
		return added
	}

	return GridHandlers{OnLoad: load, OnDelete: remove, OnEdit: edit, OnAdd: add}
}

func (c *Controller) modelOrNil(name string) *schema.Model {
	if name == "" {
		return nil
	}
	return c.models[name]
}

func (c *Controller) storeOrNil(id string) *store.Store {
	if id == "" {
		return nil
	}
	return c.stores[id]
}

func idPropertyOf(m *schema.Model) string {
	if m == nil {
		return model.DefaultIDProperty
	}
	return m.IDProperty()
}
