package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/pkg/entitydb"
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// noArgs and exactArgs report argument count mistakes as user errors.
func noArgs(cmd *cobra.Command, args []string) error {
	return exactArgs(0)(cmd, args)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return userError(err)
		}
		return nil
	}
}

// propKinds maps --prop kind names to property kinds.
var propKinds = map[string]types.PropertyKind{
	"text":    types.KindText,
	"number":  types.KindNumber,
	"date":    types.KindDate,
	"boolean": types.KindBoolean,
	"bool":    types.KindBoolean,
	"ref":     types.KindReference,
	"refs":    types.KindReference,
	"enum":    types.KindEnum,
}

// parsePropSpec parses "name:kind[:arg][!]". A trailing "!" marks the
// property required. ref and refs take a target type id or name, enum takes
// "|"-separated values. Reference targets are returned unresolved.
func parsePropSpec(spec string) (types.PropertyDefinition, error) {
	var def types.PropertyDefinition
	if strings.HasSuffix(spec, "!") {
		def.Required = true
		spec = strings.TrimSuffix(spec, "!")
	}
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return def, userErrorf("property %q: want name:kind[:arg]", spec)
	}
	def.Name = parts[0]
	kind, ok := propKinds[parts[1]]
	if !ok {
		return def, userErrorf("property %q: unknown kind %q", def.Name, parts[1])
	}
	arg := ""
	if len(parts) == 3 {
		arg = parts[2]
	}

	switch parts[1] {
	case "ref", "refs":
		if arg == "" {
			return def, userErrorf("property %q: %s needs a target type", def.Name, parts[1])
		}
		def.Type = types.ReferenceTo(arg)
		def.Reference = &types.Reference{TypeID: arg, Multiple: parts[1] == "refs"}
	case "enum":
		var values []string
		if arg != "" {
			values = strings.Split(arg, "|")
		}
		def.Type = types.EnumOf(values...)
	default:
		if arg != "" {
			return def, userErrorf("property %q: %s takes no argument", def.Name, parts[1])
		}
		def.Type = types.PropertyType{Kind: kind}
	}
	return def, nil
}

// resolveReferenceTargets replaces reference targets given by type name
// with the type's id. Unknown targets are left for validation to reject.
func resolveReferenceTargets(ctx context.Context, db *entitydb.DB, defs []types.PropertyDefinition) error {
	for i := range defs {
		if !defs[i].IsReference() {
			continue
		}
		et, err := lookupType(ctx, db, defs[i].TargetTypeID())
		if err != nil {
			if exitCode(err) == exitUserError {
				continue
			}
			return err
		}
		defs[i].Type.TypeID = et.ID
		if defs[i].Reference != nil {
			defs[i].Reference.TypeID = et.ID
		}
	}
	return nil
}

// parseAssignment splits "key=value".
func parseAssignment(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", userErrorf("%q: want key=value", s)
	}
	return k, v, nil
}

// coerceAssignments turns key=value pairs into typed values using et's
// property definitions. Keys the type does not declare become text.
func coerceAssignments(et *types.EntityType, pairs []string) (types.Properties, error) {
	props := types.Properties{}
	for _, pair := range pairs {
		k, raw, err := parseAssignment(pair)
		if err != nil {
			return nil, err
		}
		v, err := types.CoerceValue(et.Property(k), raw)
		if err != nil {
			return nil, userError(err)
		}
		props[k] = v
	}
	return props, nil
}

// lookupType finds a type by id, then by name.
func lookupType(ctx context.Context, db *entitydb.DB, key string) (*types.EntityType, error) {
	et, err := db.Types.GetType(ctx, key)
	if err != nil {
		return nil, err
	}
	if et != nil {
		return et, nil
	}
	et, err = db.Types.GetTypeByName(ctx, key)
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, fmt.Errorf("%w: type %q", types.ErrNotFound, key)
	}
	return et, nil
}

// lookupInstance finds an instance by id.
func lookupInstance(ctx context.Context, db *entitydb.DB, id string) (*types.EntityInstance, error) {
	inst, err := db.Instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %q", types.ErrNotFound, id)
	}
	return inst, nil
}
