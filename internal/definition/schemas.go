package definition

import (
	"fmt"

	"github.com/pitabwire/uibind/internal/openapi"
	"github.com/pitabwire/uibind/model"
)

// ApplySchemas fills the fields of every model that references an OpenAPI
// schema and declares none of its own. Declared fields are kept as-is.
func ApplySchemas(defs []model.AppDefinition, index *openapi.Index) error {
	for i := range defs {
		for j := range defs[i].Models {
			m := &defs[i].Models[j]
			if m.SchemaRef == nil || len(m.Fields) > 0 {
				continue
			}
			if index == nil {
				return fmt.Errorf("model %s: schema_ref set but no OpenAPI specs loaded", m.Name)
			}
			fields, err := index.Fields(m.SchemaRef.ServiceID, m.SchemaRef.Schema)
			if err != nil {
				return fmt.Errorf("model %s: %w", m.Name, err)
			}
			m.Fields = fields
		}
	}
	return nil
}
