package definition

import (
	"fmt"
	"strings"

	"github.com/pitabwire/uibind/internal/openapi"
	"github.com/pitabwire/uibind/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// MaxPageSize bounds a store's declared page size.
const MaxPageSize = 200

// Validator validates definitions structurally, referentially, and against
// OpenAPI component schemas.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// refs holds the IDs declared across all definitions. References resolve
// across applications since the registry is global.
type refs struct {
	models map[string]bool
	stores map[string]bool
	views  map[string]bool
}

func collectRefs(defs []model.AppDefinition) refs {
	r := refs{models: map[string]bool{}, stores: map[string]bool{}, views: map[string]bool{}}
	for _, def := range defs {
		for _, m := range def.Models {
			r.models[m.Name] = true
		}
		for _, s := range def.Stores {
			r.stores[s.ID] = true
		}
		for _, v := range def.Views {
			r.views[v.ID] = true
		}
	}
	return r
}

// Validate checks all definitions. The index may be nil to skip schema
// reference checks.
func (v *Validator) Validate(defs []model.AppDefinition, index *openapi.Index) []VError {
	var errs []VError
	r := collectRefs(defs)
	seen := map[string]string{}
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateApp(prefix, def, r, seen, index)...)
	}
	return errs
}

func (v *Validator) validateApp(prefix string, def model.AppDefinition, r refs, seen map[string]string, index *openapi.Index) []VError {
	var errs []VError

	if def.App == "" {
		errs = append(errs, VError{Path: prefix + ".app", Code: "REQUIRED", Message: "app is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}

	dup := func(path, kind, id string) []VError {
		key := kind + ":" + id
		if first, ok := seen[key]; ok {
			return []VError{{Path: path, Code: "DUPLICATE", Message: fmt.Sprintf("%s %q already declared at %s", kind, id, first)}}
		}
		seen[key] = path
		return nil
	}

	for i, m := range def.Models {
		mp := fmt.Sprintf("%s.models[%d]", prefix, i)
		if m.Name != "" {
			errs = append(errs, dup(mp+".name", "model", m.Name)...)
		}
		errs = append(errs, v.validateModel(mp, m, r, index)...)
	}
	for i, s := range def.Stores {
		sp := fmt.Sprintf("%s.stores[%d]", prefix, i)
		if s.ID != "" {
			errs = append(errs, dup(sp+".id", "store", s.ID)...)
		}
		errs = append(errs, v.validateStore(sp, s, r)...)
	}
	for i, view := range def.Views {
		vp := fmt.Sprintf("%s.views[%d]", prefix, i)
		if view.ID == "" {
			errs = append(errs, VError{Path: vp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else {
			errs = append(errs, dup(vp+".id", "view", view.ID)...)
		}
		errs = append(errs, v.validateNode(vp+".root", view.Root, r)...)
	}
	for i, route := range def.Routes {
		rp := fmt.Sprintf("%s.routes[%d]", prefix, i)
		if route.Path == "" {
			errs = append(errs, VError{Path: rp + ".path", Code: "REQUIRED", Message: "path is required"})
		}
		if route.ViewID != "" && !r.views[route.ViewID] {
			errs = append(errs, VError{Path: rp + ".view", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("view %q not found", route.ViewID)})
		}
	}

	return errs
}

func (v *Validator) validateModel(prefix string, m model.ModelDefinition, r refs, index *openapi.Index) []VError {
	var errs []VError

	if m.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if len(m.Fields) == 0 && m.SchemaRef == nil {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "fields or schema_ref is required"})
	}

	names := make(map[string]bool, len(m.Fields))
	for i, f := range m.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, VError{Path: fp + ".name", Code: "REQUIRED", Message: "field name is required"})
		} else if names[f.Name] {
			errs = append(errs, VError{Path: fp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("field %q declared twice", f.Name)})
		}
		names[f.Name] = true
		if !f.Type.Valid() {
			errs = append(errs, VError{Path: fp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", f.Type)})
		}
		for j, vs := range f.Validators {
			errs = append(errs, validateValidator(fmt.Sprintf("%s.validators[%d]", fp, j), vs)...)
		}
	}

	if m.Proxy != nil {
		errs = append(errs, validateProxy(prefix+".proxy", *m.Proxy)...)
	}

	for i, a := range m.Associations {
		ap := fmt.Sprintf("%s.associations[%d]", prefix, i)
		switch a.Kind {
		case model.HasMany, model.BelongsTo, model.HasOne:
		default:
			errs = append(errs, VError{Path: ap + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid association type %q", a.Kind)})
		}
		if a.Name == "" {
			errs = append(errs, VError{Path: ap + ".name", Code: "REQUIRED", Message: "association name is required"})
		}
		if a.Model != "" && !r.models[a.Model] {
			errs = append(errs, VError{Path: ap + ".model", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("model %q not found", a.Model)})
		}
	}

	if ref := m.SchemaRef; ref != nil {
		if ref.ServiceID == "" || ref.Schema == "" {
			errs = append(errs, VError{Path: prefix + ".schema_ref", Code: "REQUIRED", Message: "schema_ref needs service_id and schema"})
		} else if index != nil && !index.HasSchema(ref.ServiceID, ref.Schema) {
			errs = append(errs, VError{
				Path:    prefix + ".schema_ref",
				Code:    "SCHEMA_NOT_FOUND",
				Message: fmt.Sprintf("schema %q not found in service %q", ref.Schema, ref.ServiceID),
			})
		}
	}

	return errs
}

func validateValidator(prefix string, vs model.ValidatorSpec) []VError {
	switch {
	case !vs.Kind.Valid():
		return []VError{{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid validator type %q", vs.Kind)}}
	case vs.Kind == model.ValidateLength && vs.Len <= 0:
		return []VError{{Path: prefix + ".len", Code: "RANGE", Message: "len must be positive"}}
	case vs.Kind == model.ValidateMin && vs.Min == nil:
		return []VError{{Path: prefix + ".min", Code: "REQUIRED", Message: "min is required"}}
	case vs.Kind == model.ValidateMax && vs.Max == nil:
		return []VError{{Path: prefix + ".max", Code: "REQUIRED", Message: "max is required"}}
	case vs.Kind == model.ValidateCustom && vs.Fn == nil:
		return []VError{{Path: prefix + ".type", Code: "UNSUPPORTED", Message: "custom validators must be registered in code"}}
	}
	return nil
}

func validateProxy(prefix string, p model.ProxyConfig) []VError {
	var errs []VError
	switch p.Kind {
	case "", model.ProxyREST:
		if p.BaseURL == "" {
			errs = append(errs, VError{Path: prefix + ".url", Code: "REQUIRED", Message: "url is required for rest proxies"})
		}
	case model.ProxyMemory:
	case model.ProxyPostgres:
		if p.Table == "" {
			errs = append(errs, VError{Path: prefix + ".table", Code: "REQUIRED", Message: "table is required for postgres proxies"})
		}
	default:
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid proxy type %q", p.Kind)})
	}
	if p.Timeout < 0 {
		errs = append(errs, VError{Path: prefix + ".timeout", Code: "RANGE", Message: "timeout must not be negative"})
	}
	return errs
}

func (v *Validator) validateStore(prefix string, s model.StoreDefinition, r refs) []VError {
	var errs []VError

	if s.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if s.ModelName != "" && !r.models[s.ModelName] {
		errs = append(errs, VError{Path: prefix + ".model", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("model %q not found", s.ModelName)})
	}
	if s.PageSize < 0 || s.PageSize > MaxPageSize {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: fmt.Sprintf("page_size must be 0-%d", MaxPageSize)})
	}
	if s.Proxy != nil {
		errs = append(errs, validateProxy(prefix+".proxy", *s.Proxy)...)
	}

	for i, so := range s.Sorters {
		sp := fmt.Sprintf("%s.sorters[%d]", prefix, i)
		if so.Property == "" {
			errs = append(errs, VError{Path: sp + ".property", Code: "REQUIRED", Message: "property is required"})
		}
		if so.Direction != "" && !strings.EqualFold(string(so.Direction), string(model.ASC)) &&
			!strings.EqualFold(string(so.Direction), string(model.DESC)) {
			errs = append(errs, VError{Path: sp + ".direction", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid direction %q", so.Direction)})
		}
	}
	for i, f := range s.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Property == "" {
			errs = append(errs, VError{Path: fp + ".property", Code: "REQUIRED", Message: "property is required"})
		}
		switch f.OperatorOrDefault() {
		case model.OpEq, model.OpGt, model.OpGte, model.OpLt, model.OpLte, model.OpNe, model.OpLike, model.OpIn:
		default:
			errs = append(errs, VError{Path: fp + ".operator", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid operator %q", f.Operator)})
		}
	}

	return errs
}

// validateNode walks a descriptor tree. Unknown node types are not errors
// since they resolve to a placeholder at render time.
func (v *Validator) validateNode(prefix string, n model.NodeDescriptor, r refs) []VError {
	var errs []VError

	if n.Type == "" {
		errs = append(errs, VError{Path: prefix + ".type", Code: "REQUIRED", Message: "type is required"})
	}
	if name := n.StringProp("model"); name != "" && !r.models[name] {
		errs = append(errs, VError{Path: prefix + ".props.model", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("model %q not found", name)})
	}
	if id := n.StringProp("store"); id != "" && !r.stores[id] {
		errs = append(errs, VError{Path: prefix + ".props.store", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("store %q not found", id)})
	}
	for i, c := range n.Children {
		errs = append(errs, v.validateNode(fmt.Sprintf("%s.children[%d]", prefix, i), c, r)...)
	}
	for i, c := range n.Items {
		errs = append(errs, v.validateNode(fmt.Sprintf("%s.items[%d]", prefix, i), c, r)...)
	}
	return errs
}
