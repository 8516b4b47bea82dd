package types

// PropertyKind names the variant of a PropertyType.
type PropertyKind string

// Property kinds. The set is closed.
const (
	KindText      PropertyKind = "text"
	KindNumber    PropertyKind = "number"
	KindDate      PropertyKind = "date"
	KindBoolean   PropertyKind = "boolean"
	KindReference PropertyKind = "reference"
	KindEnum      PropertyKind = "enum"
)

// validKinds is the set of recognized property kinds.
var validKinds = map[PropertyKind]bool{
	KindText:      true,
	KindNumber:    true,
	KindDate:      true,
	KindBoolean:   true,
	KindReference: true,
	KindEnum:      true,
}

// IsValidKind reports whether k is one of the property kinds.
func IsValidKind(k PropertyKind) bool {
	return validKinds[k]
}

// PropertyType is the declared type of a property. TypeID is set only for
// reference types and Values only for enum types.
type PropertyType struct {
	Kind   PropertyKind `json:"kind"`
	TypeID string       `json:"typeId,omitempty"`
	Values []string     `json:"values,omitempty"`
}

// TextType returns the text property type.
func TextType() PropertyType { return PropertyType{Kind: KindText} }

// NumberType returns the number property type.
func NumberType() PropertyType { return PropertyType{Kind: KindNumber} }

// DateType returns the date property type.
func DateType() PropertyType { return PropertyType{Kind: KindDate} }

// BooleanType returns the boolean property type.
func BooleanType() PropertyType { return PropertyType{Kind: KindBoolean} }

// ReferenceTo returns a reference property type targeting typeID.
func ReferenceTo(typeID string) PropertyType {
	return PropertyType{Kind: KindReference, TypeID: typeID}
}

// EnumOf returns an enum property type over values.
func EnumOf(values ...string) PropertyType {
	return PropertyType{Kind: KindEnum, Values: values}
}

// IsScalar reports whether the type needs no further validation beyond its
// kind (text, number, date, boolean).
func (p PropertyType) IsScalar() bool {
	switch p.Kind {
	case KindText, KindNumber, KindDate, KindBoolean:
		return true
	}
	return false
}

// Reference describes a property that points at other instances.
type Reference struct {
	TypeID   string `json:"typeId"`
	Multiple bool   `json:"multiple"`
}

// PropertyDefinition is one named, typed field of an entity type. Required is
// advisory: the store accepts instances that omit required properties.
type PropertyDefinition struct {
	Name      string       `json:"name"`
	Type      PropertyType `json:"type"`
	Required  bool         `json:"required"`
	Reference *Reference   `json:"reference,omitempty"`
}

// IsReference reports whether the property's values are instance ids, either
// because its type is a reference or because it carries a reference
// descriptor.
func (d PropertyDefinition) IsReference() bool {
	return d.Type.Kind == KindReference || d.Reference != nil
}

// TargetTypeID returns the type that reference values point at, preferring
// the descriptor over the type's TypeID.
func (d PropertyDefinition) TargetTypeID() string {
	if d.Reference != nil && d.Reference.TypeID != "" {
		return d.Reference.TypeID
	}
	return d.Type.TypeID
}

// Multiple reports whether the property holds a list of ids.
func (d PropertyDefinition) Multiple() bool {
	return d.Reference != nil && d.Reference.Multiple
}
