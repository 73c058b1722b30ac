package controller

import (
	"fmt"
	"slices"

	"github.com/pitabwire/uibind/model"
)

// FormConfigOptions shapes a derived form descriptor.
type FormConfigOptions struct {
	Title string
	// Layout defaults to "vertical".
	Layout     string
	Width      any
	Buttons    []model.NodeDescriptor
	ExtraItems []model.NodeDescriptor
	// Exclude names fields left out of the form.
	Exclude []string
}

// GridConfigOptions shapes a derived grid descriptor.
type GridConfigOptions struct {
	Title     string
	StoreName string
	// Features toggles grid features such as pagination or selection.
	Features     map[string]bool
	Toolbar      []model.NodeDescriptor
	Actions      []any
	ExtraColumns []map[string]any
	Exclude      []string
}

// FormConfig derives a form descriptor from the fields of the named model:
// one item per field, in schema order, followed by opts.ExtraItems.
func (c *Controller) FormConfig(modelName string, opts FormConfigOptions) (model.NodeDescriptor, error) {
	m, ok := c.models[modelName]
	if !ok {
		return model.NodeDescriptor{}, model.NewUnknownModelError(modelName)
	}

	items := make([]model.NodeDescriptor, 0, len(m.Fields())+len(opts.ExtraItems))
	for _, f := range m.Fields() {
		if slices.Contains(opts.Exclude, f.Name) {
			continue
		}
		items = append(items, formItem(f))
	}
	items = append(items, opts.ExtraItems...)

	layout := opts.Layout
	if layout == "" {
		layout = "vertical"
	}
	props := map[string]any{
		"layout": layout,
		"model":  modelName,
	}
	if opts.Title != "" {
		props["title"] = opts.Title
	}
	if opts.Width != nil {
		props["width"] = opts.Width
	}
	if len(opts.Buttons) > 0 {
		props["buttons"] = opts.Buttons
	}
	return model.NodeDescriptor{Type: "form", Props: props, Items: items}, nil
}

// FieldNodeType maps a field type to the descriptor type that edits it.
func FieldNodeType(t model.FieldType) string {
	switch t {
	case model.FieldBoolean:
		return "checkbox"
	case model.FieldDate:
		return "datepicker"
	case model.FieldSelect:
		return "select"
	default:
		return "input"
	}
}

func formItem(f model.FieldSpec) model.NodeDescriptor {
	label := f.LabelOrName()
	validators := slices.Clone(f.Validators)
	hasRequired := slices.ContainsFunc(validators, func(v model.ValidatorSpec) bool {
		return v.Kind == model.ValidateRequired
	})
	if f.Required && !hasRequired {
		validators = append(validators, model.ValidatorSpec{
			Kind:    model.ValidateRequired,
			Message: fmt.Sprintf("The field %s is required", label),
		})
	}

	props := map[string]any{
		"name":       f.Name,
		"label":      label,
		"validators": validators,
	}
	for k, v := range f.Config {
		if k == "sensitive" {
			continue
		}
		props[k] = v
	}
	return model.NodeDescriptor{Type: FieldNodeType(f.TypeOrDefault()), Props: props}
}

// GridConfig derives a grid descriptor from the fields of the named model:
// one column per field, in schema order, followed by opts.ExtraColumns.
func (c *Controller) GridConfig(modelName string, opts GridConfigOptions) (model.NodeDescriptor, error) {
	m, ok := c.models[modelName]
	if !ok {
		return model.NodeDescriptor{}, model.NewUnknownModelError(modelName)
	}

	columns := make([]map[string]any, 0, len(m.Fields())+len(opts.ExtraColumns))
	for _, f := range m.Fields() {
		if slices.Contains(opts.Exclude, f.Name) {
			continue
		}
		columns = append(columns, gridColumn(f))
	}
	columns = append(columns, opts.ExtraColumns...)

	props := map[string]any{
		"model":   modelName,
		"columns": columns,
	}
	if opts.Title != "" {
		props["title"] = opts.Title
	}
	if _, ok := c.stores[opts.StoreName]; ok {
		props["store"] = opts.StoreName
	}
	features := make(map[string]any, len(opts.Features))
	for k, v := range opts.Features {
		features[k] = v
	}
	props["features"] = features
	if len(opts.Toolbar) > 0 {
		props["toolbar"] = opts.Toolbar
	}
	if len(opts.Actions) > 0 {
		props["actions"] = opts.Actions
	}
	return model.NodeDescriptor{Type: "grid", Props: props}, nil
}

func gridColumn(f model.FieldSpec) map[string]any {
	col := map[string]any{
		"dataIndex":  f.Name,
		"title":      f.LabelOrName(),
		"type":       string(f.TypeOrDefault()),
		"sortable":   boolOr(f.Sortable, true),
		"filterable": boolOr(f.Filterable, true),
		"hidden":     f.Hidden,
	}
	if f.Width != "" {
		col["width"] = f.Width
	}
	return col
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
