package definition

import (
	"testing"

	"github.com/pitabwire/uibind/model"
)

func validApp() model.AppDefinition {
	return model.AppDefinition{
		App:     "crm",
		Version: "1.0.0",
		Models: []model.ModelDefinition{
			{
				Name:  "contact",
				Proxy: &model.ProxyConfig{Kind: model.ProxyREST, BaseURL: "https://crm.example.com/contacts"},
				Fields: []model.FieldSpec{
					{Name: "id", Type: model.FieldNumber, Hidden: true},
					{Name: "name", Required: true},
					{Name: "email", Validators: []model.ValidatorSpec{{Kind: model.ValidateEmail}}},
				},
				Associations: []model.Association{{Kind: model.HasMany, Name: "notes", Model: "note"}},
			},
			{
				Name:   "note",
				Proxy:  &model.ProxyConfig{Kind: model.ProxyPostgres, Table: "notes"},
				Fields: []model.FieldSpec{{Name: "body"}},
			},
		},
		Stores: []model.StoreDefinition{
			{
				ID:        "contacts",
				ModelName: "contact",
				PageSize:  25,
				Sorters:   []model.Sorter{{Property: "name", Direction: "desc"}},
				Filters:   []model.Filter{{Property: "name", Operator: model.OpLike, Value: "a"}},
			},
		},
		Views: []model.ViewDefinition{
			{
				ID: "contacts.list",
				Root: model.NodeDescriptor{
					Type:  "panel",
					Items: []model.NodeDescriptor{{Type: "grid", Props: map[string]any{"store": "contacts", "model": "contact"}}},
				},
			},
		},
		Routes: []model.RouteDefinition{{Path: "/contacts", ViewID: "contacts.list"}},
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func hasPath(errs []VError, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestValidator_valid(t *testing.T) {
	errs := NewValidator().Validate([]model.AppDefinition{validApp()}, nil)
	if len(errs) > 0 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 0", len(errs))
	}
}

func TestValidator_testdata(t *testing.T) {
	defs, err := NewLoader().LoadAll([]string{"testdata/crm", "testdata/catalog"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	errs := NewValidator().Validate(defs, productIndex(t))
	if len(errs) > 0 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("Validate() returned %d errors, want 0", len(errs))
	}
}

func TestValidator_errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.AppDefinition)
		path   string
		code   string
	}{
		{"missing app", func(d *model.AppDefinition) { d.App = "" }, "definitions[0].app", "REQUIRED"},
		{"missing version", func(d *model.AppDefinition) { d.Version = "" }, "definitions[0].version", "REQUIRED"},
		{"missing model name", func(d *model.AppDefinition) { d.Models[1].Name = "" }, "definitions[0].models[1].name", "REQUIRED"},
		{"no fields", func(d *model.AppDefinition) { d.Models[1].Fields = nil }, "definitions[0].models[1].fields", "REQUIRED"},
		{"duplicate field", func(d *model.AppDefinition) {
			d.Models[0].Fields = append(d.Models[0].Fields, model.FieldSpec{Name: "name"})
		}, "definitions[0].models[0].fields[3].name", "DUPLICATE"},
		{"bad field type", func(d *model.AppDefinition) { d.Models[0].Fields[1].Type = "money" }, "definitions[0].models[0].fields[1].type", "INVALID_ENUM"},
		{"bad validator", func(d *model.AppDefinition) {
			d.Models[0].Fields[2].Validators[0].Kind = "regex"
		}, "definitions[0].models[0].fields[2].validators[0].type", "INVALID_ENUM"},
		{"length without len", func(d *model.AppDefinition) {
			d.Models[0].Fields[2].Validators[0] = model.ValidatorSpec{Kind: model.ValidateLength}
		}, "definitions[0].models[0].fields[2].validators[0].len", "RANGE"},
		{"min without bound", func(d *model.AppDefinition) {
			d.Models[0].Fields[2].Validators[0] = model.ValidatorSpec{Kind: model.ValidateMin}
		}, "definitions[0].models[0].fields[2].validators[0].min", "REQUIRED"},
		{"custom from yaml", func(d *model.AppDefinition) {
			d.Models[0].Fields[2].Validators[0] = model.ValidatorSpec{Kind: model.ValidateCustom}
		}, "definitions[0].models[0].fields[2].validators[0].type", "UNSUPPORTED"},
		{"rest without url", func(d *model.AppDefinition) { d.Models[0].Proxy.BaseURL = "" }, "definitions[0].models[0].proxy.url", "REQUIRED"},
		{"postgres without table", func(d *model.AppDefinition) { d.Models[1].Proxy.Table = "" }, "definitions[0].models[1].proxy.table", "REQUIRED"},
		{"bad proxy type", func(d *model.AppDefinition) { d.Models[1].Proxy.Kind = "ftp" }, "definitions[0].models[1].proxy.type", "INVALID_ENUM"},
		{"negative timeout", func(d *model.AppDefinition) { d.Models[0].Proxy.Timeout = -1 }, "definitions[0].models[0].proxy.timeout", "RANGE"},
		{"bad association", func(d *model.AppDefinition) { d.Models[0].Associations[0].Kind = "manyToMany" }, "definitions[0].models[0].associations[0].type", "INVALID_ENUM"},
		{"association ref", func(d *model.AppDefinition) { d.Models[0].Associations[0].Model = "ghost" }, "definitions[0].models[0].associations[0].model", "REF_NOT_FOUND"},
		{"incomplete schema_ref", func(d *model.AppDefinition) {
			d.Models[1].SchemaRef = &model.SchemaRef{ServiceID: "crm-svc"}
		}, "definitions[0].models[1].schema_ref", "REQUIRED"},
		{"duplicate model", func(d *model.AppDefinition) {
			d.Models = append(d.Models, model.ModelDefinition{Name: "note", Fields: []model.FieldSpec{{Name: "x"}}})
		}, "definitions[0].models[2].name", "DUPLICATE"},
		{"missing store id", func(d *model.AppDefinition) { d.Stores[0].ID = "" }, "definitions[0].stores[0].id", "REQUIRED"},
		{"store model ref", func(d *model.AppDefinition) { d.Stores[0].ModelName = "ghost" }, "definitions[0].stores[0].model", "REF_NOT_FOUND"},
		{"page size", func(d *model.AppDefinition) { d.Stores[0].PageSize = MaxPageSize + 1 }, "definitions[0].stores[0].page_size", "RANGE"},
		{"sorter direction", func(d *model.AppDefinition) { d.Stores[0].Sorters[0].Direction = "UP" }, "definitions[0].stores[0].sorters[0].direction", "INVALID_ENUM"},
		{"sorter property", func(d *model.AppDefinition) { d.Stores[0].Sorters[0].Property = "" }, "definitions[0].stores[0].sorters[0].property", "REQUIRED"},
		{"filter operator", func(d *model.AppDefinition) { d.Stores[0].Filters[0].Operator = "~" }, "definitions[0].stores[0].filters[0].operator", "INVALID_ENUM"},
		{"missing view id", func(d *model.AppDefinition) { d.Views[0].ID = "" }, "definitions[0].views[0].id", "REQUIRED"},
		{"missing node type", func(d *model.AppDefinition) { d.Views[0].Root.Items[0].Type = "" }, "definitions[0].views[0].root.items[0].type", "REQUIRED"},
		{"node store ref", func(d *model.AppDefinition) {
			d.Views[0].Root.Items[0].Props["store"] = "ghost"
		}, "definitions[0].views[0].root.items[0].props.store", "REF_NOT_FOUND"},
		{"node model ref", func(d *model.AppDefinition) {
			d.Views[0].Root.Children = []model.NodeDescriptor{{Type: "form", Props: map[string]any{"model": "ghost"}}}
		}, "definitions[0].views[0].root.children[0].props.model", "REF_NOT_FOUND"},
		{"route path", func(d *model.AppDefinition) { d.Routes[0].Path = "" }, "definitions[0].routes[0].path", "REQUIRED"},
		{"route view", func(d *model.AppDefinition) { d.Routes[0].ViewID = "ghost" }, "definitions[0].routes[0].view", "REF_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validApp()
			tt.mutate(&def)
			errs := NewValidator().Validate([]model.AppDefinition{def}, nil)
			if !hasPath(errs, tt.path) || !hasCode(errs, tt.code) {
				t.Errorf("Validate() = %v, want %s at %s", errs, tt.code, tt.path)
			}
		})
	}
}

func TestValidator_unknownNodeTypeAllowed(t *testing.T) {
	def := validApp()
	def.Views[0].Root.Items = append(def.Views[0].Root.Items, model.NodeDescriptor{Type: "carousel"})
	if errs := NewValidator().Validate([]model.AppDefinition{def}, nil); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidator_crossAppReferences(t *testing.T) {
	billing := model.AppDefinition{
		App:     "billing",
		Version: "1.0.0",
		Stores:  []model.StoreDefinition{{ID: "billing.contacts", ModelName: "contact"}},
	}
	errs := NewValidator().Validate([]model.AppDefinition{validApp(), billing}, nil)
	if len(errs) != 0 {
		t.Errorf("Validate() = %v, want store to resolve a model of another app", errs)
	}

	dupe := validApp()
	dupe.App = "crm2"
	errs = NewValidator().Validate([]model.AppDefinition{validApp(), dupe}, nil)
	if !hasPath(errs, "definitions[1].models[0].name") || !hasPath(errs, "definitions[1].stores[0].id") {
		t.Errorf("Validate() = %v, want DUPLICATE across apps", errs)
	}
}

func TestValidator_schemaRef(t *testing.T) {
	idx := productIndex(t)
	def := validApp()
	def.Models[1].SchemaRef = &model.SchemaRef{ServiceID: "catalog-svc", Schema: "Product"}
	if errs := NewValidator().Validate([]model.AppDefinition{def}, idx); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}

	def.Models[1].SchemaRef.Schema = "Ghost"
	errs := NewValidator().Validate([]model.AppDefinition{def}, idx)
	if !hasCode(errs, "SCHEMA_NOT_FOUND") {
		t.Errorf("Validate() = %v, want SCHEMA_NOT_FOUND", errs)
	}
}

func TestVError_Error(t *testing.T) {
	e := VError{Path: "definitions[0].app", Code: "REQUIRED", Message: "app is required"}
	if got := e.Error(); got != "definitions[0].app: app is required" {
		t.Errorf("Error() = %q", got)
	}
}
