package domain

import "strings"

// FieldType is the declared type of an entity field.
type FieldType string

// Entity field types.
const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldDate      FieldType = "date"
	FieldEmail     FieldType = "email"
	FieldURL       FieldType = "url"
	FieldText      FieldType = "text"
	FieldJSON      FieldType = "json"
	FieldReference FieldType = "reference"
)

// EntityScope controls how an entity's data is partitioned.
type EntityScope string

// Entity scopes. The zero value means unit-scoped.
const (
	ScopeUnit   EntityScope = ""
	ScopeTenant EntityScope = "tenant"
)

// FieldDefinition declares a single field of an entity schema.
type FieldDefinition struct {
	Name            string    `bson:"name" yaml:"name"`
	Type            FieldType `bson:"type" yaml:"type"`
	Required        bool      `bson:"required" yaml:"required"`
	Indexed         bool      `bson:"indexed" yaml:"indexed"`
	Searchable      bool      `bson:"searchable" yaml:"searchable"`
	Embeddable      bool      `bson:"embeddable" yaml:"embeddable"`
	ReferenceEntity string    `bson:"reference_entity,omitempty" yaml:"reference_entity"`
}

// EntityDefinition declares a configurable record type with its field schema.
type EntityDefinition struct {
	Name   string            `bson:"name" yaml:"name"`
	Scope  EntityScope       `bson:"scope,omitempty" yaml:"scope"`
	Fields []FieldDefinition `bson:"fields" yaml:"fields"`
}

// TenantScoped reports whether the entity is stored once per tenant and
// shared across units.
func (e EntityDefinition) TenantScoped() bool {
	return e.Scope == ScopeTenant
}

// Field returns the field definition with the given name.
func (e EntityDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// EmbeddableFields returns the names of fields that contribute to the
// vector-search embedding: those flagged embeddable with type string or text,
// in declaration order. A field of any other type is never embeddable even if
// flagged.
func (e EntityDefinition) EmbeddableFields() []string {
	var names []string
	for _, f := range e.Fields {
		if !f.Embeddable {
			continue
		}
		if f.Type != FieldString && f.Type != FieldText {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// ConcatFields joins the named document values with a single space, skipping
// missing, nil, and empty-string entries.
func ConcatFields(doc map[string]any, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		v, ok := doc[name]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
