// Package instances implements the instance repository: CRUD, merge
// updates and scans over entity instances.
package instances

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Repository manages the entityInstances collection.
type Repository struct {
	engine types.Engine
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewRepository returns a repository backed by engine.
func NewRepository(engine types.Engine, logger *zap.SugaredLogger) *Repository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Repository{engine: engine, logger: logger.Named("instances"), now: time.Now}
}

// SetClock replaces the time source used for metadata stamps.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// InsertInstance stamps inst with a fresh id and timestamps and adds it to
// instances. typesColl is used to check that inst.TypeID exists; both handles
// must belong to the same read-write transaction.
func InsertInstance(typesColl, instances types.Collection, inst *types.EntityInstance, now time.Time) error {
	var et types.EntityType
	found, err := typesColl.Get(&et, inst.TypeID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: type %s", types.ErrNotFound, inst.TypeID)
	}
	inst.ID = types.NewID()
	if inst.Properties == nil {
		inst.Properties = types.Properties{}
	}
	ms := now.UnixMilli()
	inst.Metadata = types.Metadata{Created: ms, Modified: ms}
	return instances.Add(inst)
}

// Now returns the repository's current time.
func (r *Repository) Now() time.Time {
	return r.now()
}

// CreateInstance stores a new instance of typeID. It fails with ErrNotFound
// when the type does not exist.
func (r *Repository) CreateInstance(ctx context.Context, typeID string, props types.Properties) (*types.EntityInstance, error) {
	inst := &types.EntityInstance{TypeID: typeID, Properties: cleanProperties(props)}
	err := r.engine.TransactMulti(ctx,
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
			return InsertInstance(tc, ic, inst, r.now())
		})
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("instance created", "id", inst.ID, "type", typeID)
	return inst, nil
}

// GetInstance returns the instance with id, or nil when there is none.
func (r *Repository) GetInstance(ctx context.Context, id string) (*types.EntityInstance, error) {
	var inst types.EntityInstance
	var found bool
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadOnly, func(c types.Collection) error {
		var err error
		found, err = c.Get(&inst, id)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	normalize(&inst)
	return &inst, nil
}

// GetInstancesByType returns every instance of typeID in insertion order.
func (r *Repository) GetInstancesByType(ctx context.Context, typeID string) ([]types.EntityInstance, error) {
	var out []types.EntityInstance
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadOnly, func(c types.Collection) error {
		return c.GetAllByIndex(&out, types.IndexByType, typeID)
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		normalize(&out[i])
	}
	return out, nil
}

// GetAllInstances returns every instance of every type in insertion order.
func (r *Repository) GetAllInstances(ctx context.Context) ([]types.EntityInstance, error) {
	var out []types.EntityInstance
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadOnly, func(c types.Collection) error {
		return c.GetAll(&out)
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		normalize(&out[i])
	}
	return out, nil
}

// UpdateProperties merges props into the instance's properties: new keys are
// added, existing keys overwritten, other keys kept, and zero values remove
// their key. Modified always advances, even within one millisecond.
func (r *Repository) UpdateProperties(ctx context.Context, id string, props types.Properties) (*types.EntityInstance, error) {
	var inst types.EntityInstance
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadWrite, func(c types.Collection) error {
		found, err := c.Get(&inst, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: instance %s", types.ErrNotFound, id)
		}
		normalize(&inst)
		inst.Properties.Merge(props)
		inst.Metadata.Modified = max(r.now().UnixMilli(), inst.Metadata.Modified+1)
		return c.Put(&inst)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("instance updated", "id", id, "properties", len(props))
	return &inst, nil
}

// UpdateInstance is UpdateProperties.
func (r *Repository) UpdateInstance(ctx context.Context, id string, props types.Properties) (*types.EntityInstance, error) {
	return r.UpdateProperties(ctx, id, props)
}

// DeleteInstance removes the instance with id. It fails with ErrNotFound
// when there is none.
func (r *Repository) DeleteInstance(ctx context.Context, id string) error {
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadWrite, func(c types.Collection) error {
		var inst types.EntityInstance
		found, err := c.Get(&inst, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: instance %s", types.ErrNotFound, id)
		}
		return c.Delete(id)
	})
	if err != nil {
		return err
	}
	r.logger.Debugw("instance deleted", "id", id)
	return nil
}

// SearchInstances scans all instances and returns, in scan order, those with
// at least one property whose string form contains query, ignoring case. An
// empty query matches every instance that has a property.
func (r *Repository) SearchInstances(ctx context.Context, query string) ([]types.EntityInstance, error) {
	all, err := r.GetAllInstances(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	out := []types.EntityInstance{}
	for _, inst := range all {
		for _, v := range inst.Properties {
			if strings.Contains(strings.ToLower(v.String()), needle) {
				out = append(out, inst)
				break
			}
		}
	}
	return out, nil
}

// GetInstancesByPropertyValue returns the instances of typeID whose property
// equals value.
func (r *Repository) GetInstancesByPropertyValue(ctx context.Context, typeID, property string, value types.Value) ([]types.EntityInstance, error) {
	all, err := r.GetInstancesByType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	out := []types.EntityInstance{}
	for _, inst := range all {
		if v, ok := inst.Properties[property]; ok && v.Equal(value) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// cleanProperties copies props without zero values.
func cleanProperties(props types.Properties) types.Properties {
	out := types.Properties{}
	out.Merge(props)
	return out
}

func normalize(inst *types.EntityInstance) {
	if inst.Properties == nil {
		inst.Properties = types.Properties{}
	}
}
