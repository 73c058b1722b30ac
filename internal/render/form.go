package render

import (
	"context"
	"fmt"

	"github.com/pitabwire/uibind/internal/controller"
	"github.com/pitabwire/uibind/model"
)

// Default gutter and column span of "row" layout items.
const (
	DefaultRowGutter = 16
	DefaultColSpan   = 24
)

func renderForm(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	b = b.bindModel(desc).bindStore(desc)
	if b.Controller != nil && b.Model != nil && b.Form == nil {
		name := desc.StringProp("id")
		if name == "" {
			name = b.Model.Name()
		}
		opts := controller.FormOptions{ModelName: b.Model.Name()}
		if b.Store != nil {
			opts.StoreName = b.Store.ID()
		}
		h := b.Controller.FormHandlers(name, opts)
		b.Form = &h
	}

	props := cloneProps(desc.Props)
	delete(props, "items")
	setDefault(props, "layout", "vertical")
	setDefault(props, "labelCol", map[string]any{"span": 8})
	setDefault(props, "wrapperCol", map[string]any{"span": 16})
	if b.Model != nil {
		props["model"] = b.Model.Name()
		props["initialValues"] = b.Model.ToForm()
	}
	if b.Form != nil {
		form := *b.Form
		setDefault(props, "onSubmit", model.Handler(func(ctx context.Context, args ...any) (any, error) {
			return form.OnSubmit(ctx, recordArg(args))
		}))
		setDefault(props, "onLoad", model.Handler(func(ctx context.Context, args ...any) (any, error) {
			return form.OnLoad(ctx, recordArg(args))
		}))
	}
	props["buttons"] = formButtons(ctx, r, desc, b)

	nodes := desc.Nodes()
	if extra := descriptors(desc.Prop("items")); len(extra) > 0 {
		nodes = append(append([]model.NodeDescriptor(nil), nodes...), extra...)
	}
	children := make([]model.Component, 0, len(nodes))
	for _, item := range nodes {
		if isRow(item) {
			children = append(children, formRow(ctx, r, item, b))
			continue
		}
		children = append(children, formItem(ctx, r, item, b))
	}

	return model.Component{Type: "form", Props: props, Children: children}
}

func isRow(d model.NodeDescriptor) bool {
	return d.Type == "row" || d.StringProp("layout") == "row"
}

func formRow(ctx context.Context, r *Resolver, row model.NodeDescriptor, b Binding) model.Component {
	cols := row.Nodes()
	children := make([]model.Component, len(cols))
	for i, col := range cols {
		children[i] = model.Component{
			Type:     "col",
			Props:    map[string]any{"span": asInt(col.Prop("span"), DefaultColSpan)},
			Children: []model.Component{formItem(ctx, r, col, b)},
		}
	}
	return model.Component{
		Type:     "row",
		Props:    map[string]any{"gutter": asInt(row.Prop("gutter"), DefaultRowGutter)},
		Children: children,
	}
}

// formItem wraps a field node with its label, name and validation rules.
func formItem(ctx context.Context, r *Resolver, item model.NodeDescriptor, b Binding) model.Component {
	props := map[string]any{
		"name":  item.Prop("name"),
		"label": item.Prop("label"),
		"rules": Rules(validators(item.Prop("validators"))),
	}
	field := item
	if len(item.Props) > 0 {
		field.Props = cloneProps(item.Props)
		delete(field.Props, "validators")
	}
	return model.Component{
		Type:     "formItem",
		Props:    props,
		Children: []model.Component{r.ResolveWith(ctx, field, b)},
	}
}

// Rules maps validator specs to host form rules. Unknown kinds map to an
// empty rule.
func Rules(specs []model.ValidatorSpec) []map[string]any {
	out := make([]map[string]any, 0, len(specs))
	for _, v := range specs {
		out = append(out, rule(v))
	}
	return out
}

func rule(v model.ValidatorSpec) map[string]any {
	msg := func(def string) string {
		if v.Message != "" {
			return v.Message
		}
		return def
	}
	switch v.Kind {
	case model.ValidateRequired:
		return map[string]any{"required": true, "message": msg("This field is required")}
	case model.ValidateEmail:
		return map[string]any{"type": "email", "message": msg("Invalid e-mail")}
	case model.ValidateLength:
		return map[string]any{"len": v.Len, "message": msg(fmt.Sprintf("This field must have %d characters", v.Len))}
	case model.ValidateMin:
		bound := boundOf(v.Min)
		return map[string]any{"min": bound, "message": msg(fmt.Sprintf("The minimum value is %v", bound))}
	case model.ValidateMax:
		bound := boundOf(v.Max)
		return map[string]any{"max": bound, "message": msg(fmt.Sprintf("The maximum value is %v", bound))}
	case model.ValidateCustom:
		return map[string]any{"validator": v.Fn, "message": msg("Custom validation failed")}
	}
	return map[string]any{}
}

func boundOf(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// formButtons resolves the configured buttons, or the default Save and
// Reset pair.
func formButtons(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) []model.Component {
	configured := buttonDescriptors(desc.Prop("buttons"))
	if len(configured) > 0 {
		out := make([]model.Component, len(configured))
		for i, btn := range configured {
			if btn.Type == "" {
				btn.Type = "button"
			}
			out[i] = r.ResolveWith(ctx, btn, b)
		}
		return out
	}

	save := model.Component{
		Type:  "button",
		Props: map[string]any{"type": "primary", "htmlType": "submit", "text": "Save"},
	}
	reset := model.Component{
		Type:  "button",
		Props: map[string]any{"type": "default", "htmlType": "button", "text": "Reset"},
	}
	m := b.Model
	reset.Props["onClick"] = model.Handler(func(context.Context, ...any) (any, error) {
		if m == nil {
			return model.Record{}, nil
		}
		return m.Create(), nil
	})
	return []model.Component{save, reset}
}

// buttonDescriptors reads button nodes. In map form "type" is the button
// style, not the node tag.
func buttonDescriptors(v any) []model.NodeDescriptor {
	if typed, ok := v.([]model.NodeDescriptor); ok {
		return typed
	}
	items := asMaps(v)
	out := make([]model.NodeDescriptor, 0, len(items))
	for _, m := range items {
		props := cloneProps(m)
		d := model.NodeDescriptor{Type: "button"}
		if l, ok := props["listeners"]; ok {
			d.Listeners = listeners(l)
			delete(props, "listeners")
		}
		delete(props, "xtype")
		d.Props = props
		out = append(out, d)
	}
	return out
}

func recordArg(args []any) model.Record {
	if len(args) == 0 {
		return nil
	}
	r, _ := model.ToRecord(args[0])
	return r
}
