package render

import (
	"context"

	"github.com/pitabwire/uibind/model"
)

func renderPanel(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	b = b.bindModel(desc).bindStore(desc)
	props := cloneProps(desc.Props)
	delete(props, "items")
	return model.Component{Type: "panel", Props: props, Children: r.Children(ctx, desc, b)}
}

// renderPrimitive passes props through and resolves nested nodes.
func renderPrimitive(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	return model.Component{Type: desc.Type, Props: cloneProps(desc.Props), Children: r.Children(ctx, desc, b)}
}

func renderButton(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	c := renderPrimitive(ctx, r, desc, b)
	setDefault(c.Props, "type", "default")
	setDefault(c.Props, "htmlType", "button")
	if _, bound := c.Props["onClick"].(model.Handler); !bound {
		if h, ok := actionHandler(desc.Props, b); ok {
			c.Props["onClick"] = h
		}
	}
	delete(c.Props, "action")
	return c
}

// renderSelect fills options from a bound store, mapping each record's
// valueField (default "id") and displayField (default "name").
func renderSelect(ctx context.Context, r *Resolver, desc model.NodeDescriptor, b Binding) model.Component {
	c := renderPrimitive(ctx, r, desc, b)
	setDefault(c.Props, "allowClear", true)
	setDefault(c.Props, "showSearch", true)
	setDefault(c.Props, "optionFilterProp", "label")

	if desc.StringProp("store") == "" {
		return c
	}
	sb := b.bindStore(desc)
	if sb.Store == nil {
		return c
	}
	valueField := desc.StringProp("valueField")
	if valueField == "" {
		valueField = sb.Store.IDProperty()
	}
	displayField := desc.StringProp("displayField")
	if displayField == "" {
		displayField = "name"
	}
	data := sb.Store.Data()
	options := make([]map[string]any, len(data))
	for i, rec := range data {
		options[i] = map[string]any{"value": rec[valueField], "label": rec[displayField]}
	}
	c.Props["options"] = options
	return c
}
