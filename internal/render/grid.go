package render

import (
	"context"

	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/model"
)

// Grid feature defaults.
var defaultFeatures = map[string]bool{
	"pagination": true,
	"filter":     true,
	"sort":       true,
	"selection":  false,
	"rowActions": true,
}

func renderGrid(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	b = b.bindStore(desc).bindModel(desc)
	if b.Model == nil && b.Store != nil {
		b.Model = b.Store.Model()
	}
	if b.Controller != nil && b.Store != nil && b.Grid == nil {
		name := desc.StringProp("id")
		if name == "" {
			name = b.Store.ID()
		}
		opts := controller.GridOptions{StoreName: b.Store.ID()}
		if b.Model != nil {
			opts.ModelName = b.Model.Name()
		}
		h := b.Controller.GridHandlers(name, opts)
		b.Grid = &h
	}

	features := gridFeatures(desc.Prop("features"))

	props := cloneProps(desc.Props)
	props["features"] = features
	props["columns"] = gridColumns(desc.Prop("columns"), desc.Prop("actions"), features, b)
	delete(props, "actions")
	setDefault(props, "rowKey", rowKey(b))
	if features["selection"] {
		props["rowSelection"] = map[string]any{"enabled": true}
	}
	if tb := toolbar(desc.Prop("toolbar"), b); len(tb) > 0 {
		props["toolbar"] = tb
	} else {
		delete(props, "toolbar")
	}

	if b.Store != nil {
		props["store"] = b.Store.ID()
		props["data"] = b.Store.Data()
		if features["pagination"] {
			props["pagination"] = map[string]any{
				"current":  b.Store.CurrentPage(),
				"pageSize": b.Store.PageSize(),
				"total":    b.Store.Total(),
			}
		} else {
			props["pagination"] = false
		}
	}
	if b.Grid != nil {
		grid := *b.Grid
		setDefault(props, "onLoad", model.Handler(func(ctx context.Context, args ...any) (any, error) {
			return grid.OnLoad(ctx, queryArg(args))
		}))
	}

	return model.Component{Type: "grid", Props: props, Children: r.Children(ctx, desc, b)}
}

func gridFeatures(v any) map[string]bool {
	out := make(map[string]bool, len(defaultFeatures))
	for k, def := range defaultFeatures {
		out[k] = def
	}
	if m, ok := asMap(v); ok {
		for k, val := range m {
			out[k] = asBool(val, out[k])
		}
	}
	return out
}

func rowKey(b Binding) string {
	if b.Model != nil {
		return b.Model.IDProperty()
	}
	if b.Store != nil {
		return b.Store.IDProperty()
	}
	return model.DefaultIDProperty
}

// gridColumns drops hidden columns, applies the sort and filter features
// and appends an actions column when row actions are configured.
func gridColumns(columns, actions any, features map[string]bool, b Binding) []map[string]any {
	var out []map[string]any
	for _, col := range asMaps(columns) {
		if asBool(col["hidden"], false) {
			continue
		}
		dataIndex := asString(col["dataIndex"])
		c := map[string]any{
			"title":     col["title"],
			"dataIndex": dataIndex,
			"key":       dataIndex,
			"align":     "left",
			"sorter":    features["sort"] && asBool(col["sortable"], true),
			"filter":    features["filter"] && asBool(col["filterable"], true),
		}
		for _, k := range []string{"width", "align", "fixed", "type", "render"} {
			if v, ok := col[k]; ok && v != nil {
				c[k] = v
			}
		}
		out = append(out, c)
	}

	acts := asMaps(actions)
	if features["rowActions"] && len(acts) > 0 {
		out = append(out, map[string]any{
			"title":   "Actions",
			"key":     "actions",
			"fixed":   "right",
			"width":   120,
			"actions": rowActions(acts, b),
		})
	}
	return out
}

func rowActions(actions []map[string]any, b Binding) []map[string]any {
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		act := cloneProps(a)
		kind := asString(a["type"])
		switch kind {
		case "edit":
			setDefault(act, "tooltip", "Edit")
			if b.Grid != nil {
				onEdit := b.Grid.OnEdit
				act["onClick"] = model.Handler(func(_ context.Context, args ...any) (any, error) {
					return onEdit(recordArg(args)), nil
				})
			}
		case "delete":
			setDefault(act, "tooltip", "Delete")
			setDefault(act, "confirm", "Are you sure you want to delete this record?")
			setDefault(act, "danger", true)
			if b.Grid != nil {
				onDelete := b.Grid.OnDelete
				act["onClick"] = model.Handler(func(ctx context.Context, args ...any) (any, error) {
					return onDelete(ctx, recordArg(args))
				})
			}
		}
		if _, bound := act["onClick"].(model.Handler); !bound {
			if h, ok := actionHandler(a, b); ok {
				act["onClick"] = h
			}
		}
		delete(act, "action")
		out = append(out, act)
	}
	return out
}

// actionHandler binds an "action" name to the controller.
func actionHandler(a map[string]any, b Binding) (model.Handler, bool) {
	name := asString(a["action"])
	if name == "" || b.Controller == nil {
		return nil, false
	}
	c := b.Controller
	return func(ctx context.Context, args ...any) (any, error) {
		return c.Dispatch(ctx, name, args...)
	}, true
}

func toolbar(v any, b Binding) []map[string]any {
	items := asMaps(v)
	if len(items) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		t := cloneProps(item)
		switch asString(item["type"]) {
		case "add":
			setDefault(t, "text", "Add")
			setDefault(t, "buttonType", "primary")
			if b.Grid != nil {
				onAdd := b.Grid.OnAdd
				t["onClick"] = model.Handler(func(context.Context, ...any) (any, error) {
					return onAdd(), nil
				})
			}
		case "reload":
			setDefault(t, "text", "Reload")
			if b.Grid != nil && b.Store != nil {
				onLoad, s := b.Grid.OnLoad, b.Store
				t["onClick"] = model.Handler(func(ctx context.Context, _ ...any) (any, error) {
					return onLoad(ctx, model.QuerySpec{Page: s.CurrentPage(), PageSize: s.PageSize()})
				})
			}
		}
		if _, bound := t["onClick"].(model.Handler); !bound {
			if h, ok := actionHandler(item, b); ok {
				t["onClick"] = h
			}
		}
		delete(t, "action")
		out = append(out, t)
	}
	return out
}

// queryArg reads a load request from a QuerySpec or from a decoded map with
// page and pageSize keys.
func queryArg(args []any) model.QuerySpec {
	if len(args) == 0 {
		return model.QuerySpec{}
	}
	switch x := args[0].(type) {
	case model.QuerySpec:
		return x
	case *model.QuerySpec:
		if x != nil {
			return *x
		}
	}
	m, ok := asMap(args[0])
	if !ok {
		return model.QuerySpec{}
	}
	return model.QuerySpec{
		Page:     asInt(m["page"], 0),
		PageSize: asInt(m["pageSize"], 0),
	}
}
