package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/internal/observability"
	"github.com/pitabwire/uibind/internal/query"
	"github.com/pitabwire/uibind/internal/render"
	"github.com/pitabwire/uibind/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// storeParams names the query parameters of store reads. The page size
// travels as pageSize, matching the grid pagination props.
var storeParams = model.ParamNames{Limit: "pageSize"}

type handlers struct {
	controller *controller.Controller
	resolver   *render.Resolver
	logger     *zap.Logger
}

func (h *handlers) log(ctx context.Context) *zap.Logger {
	return observability.LoggerFrom(ctx, h.logger)
}

type viewIndex struct {
	Views  []string                `json:"views"`
	Routes []model.RouteDefinition `json:"routes"`
}

// listViews returns the view IDs and the routes carried for the host router.
func (h *handlers) listViews(w http.ResponseWriter, _ *http.Request) {
	routes := h.controller.Routes()
	if routes == nil {
		routes = []model.RouteDefinition{}
	}
	WriteJSON(w, http.StatusOK, viewIndex{Views: h.controller.ViewIDs(), Routes: routes})
}

// getView loads every store the view references, then resolves the view.
// A store that fails to load renders with its current data. The stores stay
// locked until the view is resolved so concurrent loads cannot swap pages.
func (h *handlers) getView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "viewId")
	desc, ok := h.controller.View(id)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("view %s not found", id))
		return
	}

	storeIDs := referencedStores(desc, nil)
	var c model.Component
	h.exclusive(storeIDs, func() {
		for _, storeID := range storeIDs {
			s, ok := h.controller.Store(storeID)
			if !ok {
				continue
			}
			if _, err := s.Load(ctx, model.QuerySpec{}); err != nil {
				level := zap.WarnLevel
				if errors.Is(err, model.ErrNoDataSource) {
					level = zap.DebugLevel
				}
				h.log(ctx).Log(level, "view store not loaded",
					zap.String("view", id), zap.String("store", storeID), zap.Error(err))
			}
		}
		c = h.resolver.Resolve(ctx, desc)
	})

	WriteJSON(w, http.StatusOK, c)
}

// exclusive runs fn holding the load lock of each known store in ids. Locks
// are taken in sorted order.
func (h *handlers) exclusive(ids []string, fn func()) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	var run func(i int)
	run = func(i int) {
		if i == len(sorted) {
			fn()
			return
		}
		s, ok := h.controller.Store(sorted[i])
		if !ok {
			run(i + 1)
			return
		}
		s.Exclusive(func() { run(i + 1) })
	}
	run(0)
}

// referencedStores collects the distinct "store" props of a descriptor tree
// in depth-first order.
func referencedStores(d model.NodeDescriptor, acc []string) []string {
	if id := d.StringProp("store"); id != "" && !slices.Contains(acc, id) {
		acc = append(acc, id)
	}
	for _, child := range d.Nodes() {
		acc = referencedStores(child, acc)
	}
	return acc
}

// getForm resolves the form derived from a model. With ?id= the record is
// loaded first and becomes the initial values.
func (h *handlers) getForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "modelName")
	q := r.URL.Query()

	desc, err := h.controller.FormConfig(name, controller.FormConfigOptions{
		Title:   q.Get("title"),
		Layout:  q.Get("layout"),
		Exclude: splitList(q.Get("exclude")),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	if storeID := q.Get("store"); storeID != "" {
		desc.Props["store"] = storeID
	}

	var loaded model.Record
	if id := q.Get("id"); id != "" {
		form := h.controller.FormHandlers(name, controller.FormOptions{ModelName: name})
		loaded, err = form.OnLoad(ctx, model.Record{model.DefaultIDProperty: id})
		if err != nil {
			WriteError(w, err)
			return
		}
	}

	c := h.resolver.Resolve(ctx, desc)
	if loaded != nil {
		c.Props["initialValues"] = loaded
	}
	WriteJSON(w, http.StatusOK, c)
}

// getGrid loads the requested store page and resolves the grid derived from
// a model. The store stays locked until the grid holds its page.
func (h *handlers) getGrid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "modelName")
	q := r.URL.Query()
	storeID := q.Get("store")

	desc, err := h.controller.GridConfig(name, controller.GridConfigOptions{
		Title:     q.Get("title"),
		StoreName: storeID,
		Exclude:   splitList(q.Get("exclude")),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	if storeID == "" {
		WriteJSON(w, http.StatusOK, h.resolver.Resolve(ctx, desc))
		return
	}

	s, ok := h.controller.Store(storeID)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("store %s not found", storeID))
		return
	}
	params, err := query.Decode(storeParams, q)
	if err != nil {
		WriteError(w, err)
		return
	}
	delete(params.Extra, "store")
	delete(params.Extra, "title")
	delete(params.Extra, "exclude")
	if len(params.Extra) == 0 {
		params.Extra = nil
	}

	var c model.Component
	s.Exclusive(func() {
		if _, err = s.Load(ctx, params); err != nil {
			return
		}
		c = h.resolver.Resolve(ctx, desc)
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// getStoreData loads one page of a store.
func (h *handlers) getStoreData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "storeId")
	s, ok := h.controller.Store(id)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("store %s not found", id))
		return
	}
	params, err := query.Decode(storeParams, r.URL.Query())
	if err != nil {
		WriteError(w, err)
		return
	}
	var res model.LoadResult
	s.Exclusive(func() { res, err = s.Load(r.Context(), params) })
	if err != nil {
		WriteError(w, err)
		return
	}
	if res.Data == nil {
		res.Data = []model.Record{}
	}
	WriteJSON(w, http.StatusOK, res)
}

// validateRecord validates a record against a model without saving it.
func (h *handlers) validateRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "modelName")
	m, ok := h.controller.Model(name)
	if !ok {
		WriteError(w, model.NewUnknownModelError(name))
		return
	}
	var record model.Record
	if err := decodeBody(r, &record); err != nil {
		WriteError(w, err)
		return
	}
	if record == nil {
		record = model.Record{}
	}
	res := m.Validate(record)
	if res.Errors == nil {
		res.Errors = model.ValidationErrors{}
	}
	WriteJSON(w, http.StatusOK, res)
}

type actionRequest struct {
	Args []any `json:"args"`
}

type actionResponse struct {
	Action string `json:"action"`
	Result any    `json:"result"`
}

// dispatchAction runs a registered action. X-Idempotency-Key makes the call
// at most once per key; replays are flagged with X-Idempotent-Replayed.
func (h *handlers) dispatchAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "action")
	if !h.controller.HasAction(name) {
		WriteNotFound(w, fmt.Sprintf("action %s not found", name))
		return
	}

	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	var key string
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		key = rctx.IdempotencyKey
	}
	result, replayed, err := h.controller.DispatchOnce(ctx, key, name, req.Args...)
	if err != nil {
		h.log(ctx).Warn("action failed", zap.String("action", name), zap.Error(err))
		WriteError(w, err)
		return
	}
	if replayed {
		w.Header().Set("X-Idempotent-Replayed", "true")
	}
	WriteJSON(w, http.StatusOK, actionResponse{Action: name, Result: result})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewBadRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
