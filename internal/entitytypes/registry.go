// Package entitytypes implements the type registry: CRUD over entity type
// definitions with unique names.
package entitytypes

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Registry manages the entityTypes collection.
type Registry struct {
	engine types.Engine
	logger *zap.SugaredLogger
}

// NewRegistry returns a registry backed by engine.
func NewRegistry(engine types.Engine, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{engine: engine, logger: logger.Named("types")}
}

// InsertType assigns t a fresh id and adds it to c, the entityTypes handle of
// an open read-write transaction. It fails with ErrDuplicateName when the
// name is taken.
func InsertType(c types.Collection, t *types.EntityType) error {
	var existing types.EntityType
	found, err := c.GetByIndex(&existing, types.IndexByName, t.Name)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %q", types.ErrDuplicateName, t.Name)
	}
	t.ID = types.NewID()
	t.Normalize()
	return c.Add(t)
}

// NewType builds an unsaved type from in. The property list is copied.
func NewType(in types.TypeInput) *types.EntityType {
	return &types.EntityType{Name: in.Name, Color: in.Color, Properties: clone(in.Properties)}
}

// CreateType stores a new type built from in and returns it with its
// generated id.
func (r *Registry) CreateType(ctx context.Context, in types.TypeInput) (*types.EntityType, error) {
	t := NewType(in)
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadWrite, func(c types.Collection) error {
		return InsertType(c, t)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("type created", "id", t.ID, "name", t.Name)
	return t, nil
}

// GetType returns the type with id, or nil when there is none.
func (r *Registry) GetType(ctx context.Context, id string) (*types.EntityType, error) {
	var t types.EntityType
	var found bool
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadOnly, func(c types.Collection) error {
		var err error
		found, err = c.Get(&t, id)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	t.Normalize()
	return &t, nil
}

// GetTypeByName returns the type named name, or nil when there is none.
func (r *Registry) GetTypeByName(ctx context.Context, name string) (*types.EntityType, error) {
	var t types.EntityType
	var found bool
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadOnly, func(c types.Collection) error {
		var err error
		found, err = c.GetByIndex(&t, types.IndexByName, name)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	t.Normalize()
	return &t, nil
}

// GetAllTypes returns every type in insertion order.
func (r *Registry) GetAllTypes(ctx context.Context) ([]types.EntityType, error) {
	var all []types.EntityType
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadOnly, func(c types.Collection) error {
		return c.GetAll(&all)
	})
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].Normalize()
	}
	return all, nil
}

// UpdateType applies upd to the type with id. Renaming to a name held by
// another type fails with ErrDuplicateName. Properties, when given, replace
// the whole list.
func (r *Registry) UpdateType(ctx context.Context, id string, upd types.TypeUpdate) (*types.EntityType, error) {
	return r.mutate(ctx, id, func(c types.Collection, t *types.EntityType) error {
		if upd.Name != nil && *upd.Name != t.Name {
			var other types.EntityType
			found, err := c.GetByIndex(&other, types.IndexByName, *upd.Name)
			if err != nil {
				return err
			}
			if found && other.ID != t.ID {
				return fmt.Errorf("%w: %q", types.ErrDuplicateName, *upd.Name)
			}
			t.Name = *upd.Name
		}
		if upd.Color != nil {
			t.Color = *upd.Color
		}
		if upd.Properties != nil {
			t.Properties = clone(upd.Properties)
		}
		return nil
	})
}

// AddProperty appends def to the type's property list. It fails with
// ErrDuplicatePropertyName when the type already has a property of that
// name.
func (r *Registry) AddProperty(ctx context.Context, typeID string, def types.PropertyDefinition) (*types.EntityType, error) {
	return r.mutate(ctx, typeID, func(_ types.Collection, t *types.EntityType) error {
		if t.HasProperty(def.Name) {
			return fmt.Errorf("%w: %q on type %s", types.ErrDuplicatePropertyName, def.Name, t.ID)
		}
		t.Properties = append(t.Properties, def)
		return nil
	})
}

// RemoveProperty drops the named property from the type. Removing a
// property the type does not have is not an error.
func (r *Registry) RemoveProperty(ctx context.Context, typeID, name string) (*types.EntityType, error) {
	return r.mutate(ctx, typeID, func(_ types.Collection, t *types.EntityType) error {
		kept := t.Properties[:0]
		for _, p := range t.Properties {
			if p.Name != name {
				kept = append(kept, p)
			}
		}
		t.Properties = kept
		return nil
	})
}

// DeleteType removes the type with id. Instances of the type are left in
// place; callers check GetTypeInstanceCount first if they care.
func (r *Registry) DeleteType(ctx context.Context, id string) error {
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadWrite, func(c types.Collection) error {
		var t types.EntityType
		found, err := c.Get(&t, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: type %s", types.ErrNotFound, id)
		}
		return c.Delete(id)
	})
	if err != nil {
		return err
	}
	r.logger.Debugw("type deleted", "id", id)
	return nil
}

// GetTypeInstanceCount returns how many instances reference the type.
func (r *Registry) GetTypeInstanceCount(ctx context.Context, id string) (int, error) {
	var n int
	err := r.engine.Transact(ctx, types.EntityInstancesCollection, types.ReadOnly, func(c types.Collection) error {
		var err error
		n, err = c.CountByIndex(types.IndexByType, id)
		return err
	})
	return n, err
}

// mutate loads the type, applies fn, and stores the result in one
// transaction.
func (r *Registry) mutate(ctx context.Context, id string, fn func(c types.Collection, t *types.EntityType) error) (*types.EntityType, error) {
	var t types.EntityType
	err := r.engine.Transact(ctx, types.EntityTypesCollection, types.ReadWrite, func(c types.Collection) error {
		found, err := c.Get(&t, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: type %s", types.ErrNotFound, id)
		}
		t.Normalize()
		if err := fn(c, &t); err != nil {
			return err
		}
		return c.Put(&t)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("type updated", "id", t.ID)
	return &t, nil
}

// clone copies props deeply enough that the caller's slice, enum values and
// reference descriptors are never shared with a stored type.
func clone(props []types.PropertyDefinition) []types.PropertyDefinition {
	out := make([]types.PropertyDefinition, len(props))
	for i, p := range props {
		p.Type.Values = slices.Clone(p.Type.Values)
		if p.Reference != nil {
			ref := *p.Reference
			p.Reference = &ref
		}
		out[i] = p
	}
	return out
}
