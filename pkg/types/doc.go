// Package types defines the entity data model, the storage engine contracts
// (Engine, Tx, Collection), collection and index names, and the standard
// error values for the entitydb storage layer.
//
// Entity types are named schemas; entity instances are records whose
// properties are held as tagged Values keyed by property name. Schema
// conformance is advisory: the storage layer does not reject instances whose
// properties differ from what their type declares.
package types
