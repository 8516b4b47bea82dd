package types

// Standard collection names provisioned by the storage engine.
const (
	EntityTypesCollection     = "entityTypes"
	EntityInstancesCollection = "entityInstances"
	ReferencesCollection      = "references"
)

// Secondary index names.
const (
	// IndexByName is the unique index on EntityType.Name.
	IndexByName = "by-name"
	// IndexByType is the non-unique index on EntityInstance.TypeID.
	IndexByType = "by-type"
	// IndexByFrom and IndexByTo index the references collection.
	IndexByFrom = "by-from"
	IndexByTo   = "by-to"
)

// StandardCollectionNames lists all collections in provisioning order.
var StandardCollectionNames = []string{
	EntityTypesCollection,
	EntityInstancesCollection,
	ReferencesCollection,
}

// ReferenceRecord is a document of the references collection, keyed by
// (FromID, ToID).
type ReferenceRecord struct {
	FromID       string `json:"fromId"`
	ToID         string `json:"toId"`
	PropertyName string `json:"propertyName,omitempty"`
	TypeID       string `json:"typeId,omitempty"`
}

// ImportStats counts the outcome of importing one collection.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
