package types

// EntityType is a named schema describing a set of typed properties.
type EntityType struct {
	ID         string               `json:"id"`   // UUID v7, generated on creation.
	Name       string               `json:"name"` // Unique across all types.
	Color      string               `json:"color"`
	Properties []PropertyDefinition `json:"properties"` // Ordered; names unique within the type.
}

// Property returns the definition with the given name, or nil.
func (t *EntityType) Property(name string) *PropertyDefinition {
	for i := range t.Properties {
		if t.Properties[i].Name == name {
			return &t.Properties[i]
		}
	}
	return nil
}

// HasProperty reports whether the type defines a property named name.
func (t *EntityType) HasProperty(name string) bool {
	return t.Property(name) != nil
}

// Normalize replaces a nil property list with an empty one so stored records
// always carry an array.
func (t *EntityType) Normalize() {
	if t.Properties == nil {
		t.Properties = []PropertyDefinition{}
	}
}

// TypeInput is everything needed to create an entity type except its id.
type TypeInput struct {
	Name       string
	Color      string
	Properties []PropertyDefinition
}

// TypeUpdate is a partial update to an entity type. Nil fields are left
// unchanged. A non-nil Properties slice replaces the whole list; an empty
// non-nil slice clears it.
type TypeUpdate struct {
	Name       *string
	Color      *string
	Properties []PropertyDefinition
}
