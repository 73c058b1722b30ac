// Package openapi loads OpenAPI specifications and derives model field
// specs from their component schemas.
package openapi

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/uibind/model"
)

// SpecSource describes an OpenAPI spec file to load.
type SpecSource struct {
	ServiceID string
	SpecPath  string
}

// Index holds the component schemas of every loaded spec, keyed by service.
type Index struct {
	schemas map[string]openapi3.Schemas
}

// NewIndex creates an empty OpenAPI index.
func NewIndex() *Index {
	return &Index{schemas: make(map[string]openapi3.Schemas)}
}

// Load parses OpenAPI specs from the given sources and indexes their
// component schemas. External references are refused.
func (idx *Index) Load(specs []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range specs {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("openapi: loading %s (%s): %w", src.ServiceID, src.SpecPath, err)
		}
		if err := idx.add(src.ServiceID, doc); err != nil {
			return err
		}
	}
	return nil
}

// LoadData indexes a spec held in memory.
func (idx *Index) LoadData(serviceID string, data []byte) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("openapi: loading %s: %w", serviceID, err)
	}
	return idx.add(serviceID, doc)
}

func (idx *Index) add(serviceID string, doc *openapi3.T) error {
	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("openapi: validating %s: %w", serviceID, err)
	}
	schemas := openapi3.Schemas{}
	if doc.Components != nil {
		schemas = doc.Components.Schemas
	}
	idx.schemas[serviceID] = schemas
	return nil
}

// Services returns the IDs of all loaded services, sorted.
func (idx *Index) Services() []string {
	out := make([]string, 0, len(idx.schemas))
	for id := range idx.schemas {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// SchemaNames returns the component schema names of a service, sorted.
func (idx *Index) SchemaNames(serviceID string) []string {
	schemas := idx.schemas[serviceID]
	out := make([]string, 0, len(schemas))
	for name := range schemas {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// HasSchema reports whether the service declares the named component schema.
func (idx *Index) HasSchema(serviceID, name string) bool {
	_, ok := idx.lookup(serviceID, name)
	return ok
}

func (idx *Index) lookup(serviceID, name string) (*openapi3.Schema, bool) {
	ref, ok := idx.schemas[serviceID][name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, false
	}
	return ref.Value, true
}

// Fields derives field specs from an object schema. Properties are returned
// sorted by name.
func (idx *Index) Fields(serviceID, name string) ([]model.FieldSpec, error) {
	schema, ok := idx.lookup(serviceID, name)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("schema %s not found in service %s", name, serviceID))
	}
	if !schema.Type.Is(openapi3.TypeObject) && len(schema.Properties) == 0 {
		return nil, model.NewBadRequestError(fmt.Sprintf("schema %s/%s is not an object", serviceID, name))
	}

	names := make([]string, 0, len(schema.Properties))
	for prop := range schema.Properties {
		names = append(names, prop)
	}
	slices.Sort(names)

	fields := make([]model.FieldSpec, 0, len(names))
	for _, prop := range names {
		ref := schema.Properties[prop]
		if ref == nil || ref.Value == nil {
			continue
		}
		fields = append(fields, fieldFromSchema(prop, ref.Value, slices.Contains(schema.Required, prop)))
	}
	return fields, nil
}

func fieldFromSchema(name string, s *openapi3.Schema, required bool) model.FieldSpec {
	f := model.FieldSpec{
		Name:     name,
		Label:    s.Title,
		Required: required,
		Hidden:   s.ReadOnly,
	}
	if f.Label == "" {
		f.Label = humanize(name)
	}

	switch {
	case len(s.Enum) > 0:
		f.Type = model.FieldSelect
		options := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			options[i] = map[string]any{"value": v, "label": fmt.Sprint(v)}
		}
		f.Config = map[string]any{"options": options}
	case s.Type.Is(openapi3.TypeString) && (s.Format == "date" || s.Format == "date-time"):
		f.Type = model.FieldDate
	case s.Type.Is(openapi3.TypeInteger), s.Type.Is(openapi3.TypeNumber):
		f.Type = model.FieldNumber
	case s.Type.Is(openapi3.TypeBoolean):
		f.Type = model.FieldBoolean
	default:
		f.Type = model.FieldString
	}

	if s.Format == "email" {
		f.Validators = append(f.Validators, model.ValidatorSpec{Kind: model.ValidateEmail})
	}
	if s.MaxLength != nil && *s.MaxLength == s.MinLength && s.MinLength > 0 {
		f.Validators = append(f.Validators, model.ValidatorSpec{Kind: model.ValidateLength, Len: int(s.MinLength)})
	}
	if s.Min != nil {
		f.Validators = append(f.Validators, model.ValidatorSpec{Kind: model.ValidateMin, Min: s.Min})
	}
	if s.Max != nil {
		f.Validators = append(f.Validators, model.ValidatorSpec{Kind: model.ValidateMax, Max: s.Max})
	}
	return f
}

// humanize turns snake_case or camelCase property names into a label.
func humanize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
			continue
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			r += 'a' - 'A'
		case i == 0 && r >= 'a' && r <= 'z':
			r -= 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
