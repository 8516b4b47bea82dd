// Package entitydb is the entry point to the store: it opens the engine,
// exposes the type registry and instance repository, and adds validation
// and aggregate operations that span both.
package entitydb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/entitydb/internal/entitytypes"
	"github.com/mesh-intelligence/entitydb/internal/instances"
	"github.com/mesh-intelligence/entitydb/internal/query"
	"github.com/mesh-intelligence/entitydb/internal/sqlite"
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Version is the release version reported by the CLI.
const Version = "0.1.0"

// DB composes the storage engine with the type registry and the instance
// repository.
type DB struct {
	backend   *sqlite.Backend
	Types     *entitytypes.Registry
	Instances *instances.Repository
	logger    *zap.SugaredLogger
}

// New returns a DB that is not yet initialized.
func New(logger *zap.SugaredLogger) *DB {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	backend := sqlite.NewBackend(logger)
	return &DB{
		backend:   backend,
		Types:     entitytypes.NewRegistry(backend, logger),
		Instances: instances.NewRepository(backend, logger),
		logger:    logger,
	}
}

// Initialize opens the backing storage. It is safe to call more than once.
func (db *DB) Initialize(config types.Config) error {
	return db.backend.Open(config)
}

// Close releases the backing storage.
func (db *DB) Close() error {
	return db.backend.Close()
}

// Engine returns the underlying storage engine.
func (db *DB) Engine() types.Engine {
	return db.backend
}

// Path returns the database file path, or "" before Initialize.
func (db *DB) Path() string {
	return db.backend.Path()
}

// ValidatePropertyType reports whether pt is well formed. Scalar kinds are
// always valid; a reference must name an existing type; an enum needs at
// least one value and no empty values.
func (db *DB) ValidatePropertyType(ctx context.Context, pt types.PropertyType) (bool, error) {
	switch {
	case pt.IsScalar():
		return true, nil
	case pt.Kind == types.KindReference:
		if pt.TypeID == "" {
			return false, nil
		}
		target, err := db.Types.GetType(ctx, pt.TypeID)
		if err != nil {
			return false, err
		}
		return target != nil, nil
	case pt.Kind == types.KindEnum:
		if len(pt.Values) == 0 {
			return false, nil
		}
		for _, v := range pt.Values {
			if v == "" {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// ValidateProperty reports whether def has a name and a valid type.
func (db *DB) ValidateProperty(ctx context.Context, def types.PropertyDefinition) (bool, error) {
	if def.Name == "" || def.Type.Kind == "" {
		return false, nil
	}
	return db.ValidatePropertyType(ctx, def.Type)
}

// ValidateType checks a type definition before it is created. It returns an
// error wrapping ErrValidationFailed that names the first problem found.
func (db *DB) ValidateType(ctx context.Context, in types.TypeInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: type name is required", types.ErrValidationFailed)
	}
	seen := make(map[string]bool, len(in.Properties))
	for _, def := range in.Properties {
		if seen[def.Name] {
			return fmt.Errorf("%w: property %q defined twice", types.ErrValidationFailed, def.Name)
		}
		seen[def.Name] = true
		ok, err := db.ValidateProperty(ctx, def)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: property %q has an invalid %s type", types.ErrValidationFailed, def.Name, def.Type.Kind)
		}
	}
	return nil
}

// CreateTypeAndInstance creates a type and a first instance of it in one
// transaction. If either write fails neither is stored.
func (db *DB) CreateTypeAndInstance(ctx context.Context, in types.TypeInput, props types.Properties) (*types.EntityType, *types.EntityInstance, error) {
	et := entitytypes.NewType(in)
	inst := &types.EntityInstance{Properties: types.Properties{}}
	inst.Properties.Merge(props)

	err := db.backend.TransactMulti(ctx,
		[]string{types.EntityTypesCollection, types.EntityInstancesCollection}, types.ReadWrite,
		func(tx types.Tx) error {
			tc, err := tx.Collection(types.EntityTypesCollection)
			if err != nil {
				return err
			}
			ic, err := tx.Collection(types.EntityInstancesCollection)
			if err != nil {
				return err
			}
			if err := entitytypes.InsertType(tc, et); err != nil {
				return err
			}
			inst.TypeID = et.ID
			return instances.InsertInstance(tc, ic, inst, db.Instances.Now())
		})
	if err != nil {
		return nil, nil, err
	}
	db.logger.Debugw("type and instance created", "type", et.ID, "instance", inst.ID)
	return et, inst, nil
}

// StorageUsage counts the types and the instances whose type exists, from
// one consistent read.
func (db *DB) StorageUsage(ctx context.Context) (types.StorageUsage, error) {
	var usage types.StorageUsage
	err := db.backend.TransactMulti(ctx,
		[]string{types.EntityTypesCollection, types.EntityInstancesCollection}, types.ReadOnly,
		func(tx types.Tx) error {
			tc, err := tx.Collection(types.EntityTypesCollection)
			if err != nil {
				return err
			}
			ic, err := tx.Collection(types.EntityInstancesCollection)
			if err != nil {
				return err
			}
			var all []types.EntityType
			if err := tc.GetAll(&all); err != nil {
				return err
			}
			usage.TypeCount = len(all)
			for _, et := range all {
				n, err := ic.CountByIndex(types.IndexByType, et.ID)
				if err != nil {
					return err
				}
				usage.InstanceCount += n
			}
			return nil
		})
	return usage, err
}

// RelatedInstances follows the reference properties of an instance and
// returns the instances they point at, keyed by property name. Ids that no
// longer resolve are dropped. It fails with ErrNotFound when the instance or
// its type is missing.
func (db *DB) RelatedInstances(ctx context.Context, instanceID string) (map[string][]types.EntityInstance, error) {
	related := map[string][]types.EntityInstance{}
	err := db.backend.TransactMulti(ctx,
		[]string{types.EntityTypesCollection, types.EntityInstancesCollection}, types.ReadOnly,
		func(tx types.Tx) error {
			tc, err := tx.Collection(types.EntityTypesCollection)
			if err != nil {
				return err
			}
			ic, err := tx.Collection(types.EntityInstancesCollection)
			if err != nil {
				return err
			}

			var inst types.EntityInstance
			found, err := ic.Get(&inst, instanceID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: instance %s", types.ErrNotFound, instanceID)
			}
			var et types.EntityType
			if found, err = tc.Get(&et, inst.TypeID); err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: type %s", types.ErrNotFound, inst.TypeID)
			}

			for _, def := range et.Properties {
				if !def.IsReference() {
					continue
				}
				v, ok := inst.Properties[def.Name]
				if !ok || v.IsZero() {
					continue
				}
				ids := v.RefIDs()
				if s, isText := v.AsText(); isText && s != "" {
					ids = []string{s}
				}
				resolved := []types.EntityInstance{}
				for _, id := range ids {
					var target types.EntityInstance
					ok, err := ic.Get(&target, id)
					if err != nil {
						return err
					}
					if ok {
						resolved = append(resolved, target)
					}
				}
				if v.Kind() == types.ValueRefs || len(resolved) > 0 {
					related[def.Name] = resolved
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return related, nil
}

// FilterInstances returns the instances of typeID matching every entry of
// where.
func (db *DB) FilterInstances(ctx context.Context, typeID string, where map[string]types.Value) ([]types.EntityInstance, error) {
	all, err := db.Instances.GetInstancesByType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	return query.Filter(all, where), nil
}

// GroupInstances buckets the instances of typeID by a property value.
func (db *DB) GroupInstances(ctx context.Context, typeID, property string) ([]types.InstanceGroup, error) {
	all, err := db.Instances.GetInstancesByType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	return query.GroupBy(all, property), nil
}

// PropertyStats summarizes a property across the instances of typeID.
func (db *DB) PropertyStats(ctx context.Context, typeID, property string) (types.PropertyStats, error) {
	all, err := db.Instances.GetInstancesByType(ctx, typeID)
	if err != nil {
		return types.PropertyStats{}, err
	}
	return query.PropertyStats(all, property), nil
}

// Export writes every collection to dir as NDJSON.
func (db *DB) Export(ctx context.Context, dir string) error {
	return db.backend.Export(ctx, dir)
}

// Import loads NDJSON collections from dir.
func (db *DB) Import(ctx context.Context, dir string) (map[string]types.ImportStats, error) {
	return db.backend.Import(ctx, dir)
}
