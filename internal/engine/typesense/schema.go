package typesense

import "github.com/kailas-cloud/crmdex/internal/domain"

// CollectionSchema is the engine's create-collection request body.
type CollectionSchema struct {
	Name                string        `json:"name"`
	Fields              []FieldSchema `json:"fields"`
	DefaultSortingField string        `json:"default_sorting_field,omitempty"`
}

// FieldSchema is a single field in the engine schema.
type FieldSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
	Facet    bool   `json:"facet"`
	Index    bool   `json:"index"`
}

// BuildSchema synthesizes an engine schema from the entity definition:
// id and tenant_id always, unit_id only for unit-scoped entities, plus every
// field flagged indexed or searchable with its declared type mapped to the
// engine's native type.
func BuildSchema(name string, def domain.EntityDefinition) CollectionSchema {
	fields := []FieldSchema{
		{Name: "id", Type: "string", Index: true},
		{Name: "tenant_id", Type: "string", Optional: true, Facet: true, Index: true},
	}
	if !def.TenantScoped() {
		fields = append(fields, FieldSchema{
			Name: "unit_id", Type: "string", Optional: true, Facet: true, Index: true,
		})
	}

	for _, f := range def.Fields {
		if !f.Indexed && !f.Searchable {
			continue
		}
		native := mapFieldType(f.Type)
		fields = append(fields, FieldSchema{
			Name:     f.Name,
			Type:     native,
			Optional: !f.Required,
			Facet:    native == "string",
			Index:    true,
		})
	}

	return CollectionSchema{
		Name:                name,
		Fields:              fields,
		DefaultSortingField: defaultSortingField(fields),
	}
}

// mapFieldType maps a declared entity field type to the engine's native type.
func mapFieldType(t domain.FieldType) string {
	switch t {
	case domain.FieldString, domain.FieldEmail, domain.FieldURL, domain.FieldText:
		return "string"
	case domain.FieldNumber:
		return "int32"
	case domain.FieldBoolean:
		return "bool"
	case domain.FieldDate:
		return "int64" // epoch seconds
	default:
		return "string"
	}
}

// defaultSortingField prefers a non-optional created_at/updated_at mapped to
// int64, then any other non-optional numeric field, else none (the engine
// permits sortless collections).
func defaultSortingField(fields []FieldSchema) string {
	for _, f := range fields {
		if f.Optional {
			continue
		}
		if (f.Name == "created_at" || f.Name == "updated_at") && f.Type == "int64" {
			return f.Name
		}
	}
	for _, f := range fields {
		if f.Optional {
			continue
		}
		if f.Type == "int32" || f.Type == "int64" {
			return f.Name
		}
	}
	return ""
}
