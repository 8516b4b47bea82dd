package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// indexSpec describes a secondary index: the document field it reads and the
// column it is materialized into.
type indexSpec struct {
	name    string
	keyPath string
	column  string
	unique  bool
}

// collectionSpec describes how a collection maps onto a SQLite table.
// Documents are stored whole in the doc column; key and index fields are
// copied out of the document into their own columns on every write.
type collectionSpec struct {
	name       string
	table      string
	keyPaths   []string
	keyColumns []string
	indexes    []indexSpec
	// record returns a pointer to a zero document of the collection's type.
	record func() any
}

// collectionSpecs lists the provisioned collections in load order.
var collectionSpecs = []collectionSpec{
	{
		name:       types.EntityTypesCollection,
		table:      "entity_types",
		keyPaths:   []string{"id"},
		keyColumns: []string{"id"},
		indexes: []indexSpec{
			{name: types.IndexByName, keyPath: "name", column: "name", unique: true},
		},
		record: func() any { return &types.EntityType{} },
	},
	{
		name:       types.EntityInstancesCollection,
		table:      "entity_instances",
		keyPaths:   []string{"id"},
		keyColumns: []string{"id"},
		indexes: []indexSpec{
			{name: types.IndexByType, keyPath: "typeId", column: "type_id"},
		},
		record: func() any { return &types.EntityInstance{} },
	},
	{
		name:       types.ReferencesCollection,
		table:      "instance_references",
		keyPaths:   []string{"fromId", "toId"},
		keyColumns: []string{"from_id", "to_id"},
		indexes: []indexSpec{
			{name: types.IndexByFrom, keyPath: "fromId", column: "from_id"},
			{name: types.IndexByTo, keyPath: "toId", column: "to_id"},
		},
		record: func() any { return &types.ReferenceRecord{} },
	},
}

func lookupSpec(name string) (*collectionSpec, bool) {
	for i := range collectionSpecs {
		if collectionSpecs[i].name == name {
			return &collectionSpecs[i], true
		}
	}
	return nil, false
}

func (s *collectionSpec) index(name string) (*indexSpec, bool) {
	for i := range s.indexes {
		if s.indexes[i].name == name {
			return &s.indexes[i], true
		}
	}
	return nil, false
}

// dataColumns returns the non-key columns written alongside doc. An index
// whose column is also a key column is not repeated.
func (s *collectionSpec) dataColumns() []string {
	var cols []string
	for _, ix := range s.indexes {
		if s.isKeyColumn(ix.column) || containsString(cols, ix.column) {
			continue
		}
		cols = append(cols, ix.column)
	}
	return cols
}

func (s *collectionSpec) isKeyColumn(col string) bool {
	return containsString(s.keyColumns, col)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// createTableDDL returns the CREATE TABLE and CREATE INDEX statements for s.
func (s *collectionSpec) createTableDDL() []string {
	var cols []string
	for _, k := range s.keyColumns {
		cols = append(cols, k+" TEXT NOT NULL")
	}
	for _, c := range s.dataColumns() {
		cols = append(cols, c+" TEXT")
	}
	cols = append(cols, "doc TEXT NOT NULL")
	cols = append(cols, "PRIMARY KEY ("+strings.Join(s.keyColumns, ", ")+")")

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", s.table, strings.Join(cols, ",\n    ")),
	}
	for _, ix := range s.indexes {
		kind := "INDEX"
		if ix.unique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE %s IF NOT EXISTS %s ON %s(%s)",
			kind, indexName(s, &ix), s.table, ix.column,
		))
	}
	return stmts
}

func indexName(s *collectionSpec, ix *indexSpec) string {
	return "idx_" + s.table + "_" + strings.ReplaceAll(ix.name, "-", "_")
}

// Provisioning bookkeeping tables.
const (
	createStoreMeta = `CREATE TABLE IF NOT EXISTS store_meta (
    name TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    updated_at TEXT NOT NULL
)`

	createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`
)
