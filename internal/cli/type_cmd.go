package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

func newTypeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "type",
		Short: "Manage entity types",
	}
	cmd.AddCommand(
		newTypeCreateCmd(a),
		newTypeGetCmd(a),
		newTypeListCmd(a),
		newTypeRenameCmd(a),
		newTypeAddPropCmd(a),
		newTypeRemovePropCmd(a),
		newTypeDeleteCmd(a),
		newTypeCountCmd(a),
	)
	return cmd
}

func newTypeCreateCmd(a *app) *cobra.Command {
	var color string
	var props []string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an entity type",
		Long: `Create an entity type with optional properties.

Each --prop is name:kind[:arg][!] where kind is text, number, date, boolean,
ref:<type>, refs:<type> or enum:<a|b|c>. A trailing ! marks the property
required.

Example:
  entitydb type create Person --prop name:text! --prop age:number
  entitydb type create Book --prop author:ref:Person --prop status:enum:draft|published`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			in := types.TypeInput{Name: args[0], Color: color}
			for _, spec := range props {
				def, err := parsePropSpec(spec)
				if err != nil {
					return err
				}
				in.Properties = append(in.Properties, def)
			}
			if err := resolveReferenceTargets(ctx, db, in.Properties); err != nil {
				return err
			}
			if err := db.ValidateType(ctx, in); err != nil {
				return err
			}
			et, err := db.Types.CreateType(ctx, in)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, et)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created type %s (%s)\n", et.Name, et.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.Flags().StringArrayVar(&props, "prop", nil, "property as name:kind[:arg][!] (repeatable)")
	return cmd
}

func newTypeGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|name>",
		Short: "Show an entity type",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			et, err := lookupType(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, et)
			}
			printType(cmd, et)
			return nil
		},
	}
}

func newTypeListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entity types",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			all, err := db.Types.GetAllTypes(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, all)
			}
			printTypes(cmd, all)
			return nil
		},
	}
}

func newTypeRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id|name> <new-name>",
		Short: "Rename an entity type",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			if args[1] == "" {
				return fmt.Errorf("%w: type name is required", types.ErrValidationFailed)
			}
			et, err := lookupType(ctx, db, args[0])
			if err != nil {
				return err
			}
			name := args[1]
			et, err = db.Types.UpdateType(ctx, et.ID, types.TypeUpdate{Name: &name})
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, et)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed type %s to %s\n", et.ID, et.Name)
			return nil
		},
	}
}

func newTypeAddPropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-prop <id|name> <name:kind[:arg][!]>",
		Short: "Add a property to an entity type",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			et, err := lookupType(ctx, db, args[0])
			if err != nil {
				return err
			}
			def, err := parsePropSpec(args[1])
			if err != nil {
				return err
			}
			defs := []types.PropertyDefinition{def}
			if err := resolveReferenceTargets(ctx, db, defs); err != nil {
				return err
			}
			ok, err := db.ValidateProperty(ctx, defs[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: property %q has an invalid %s type", types.ErrValidationFailed, def.Name, def.Type.Kind)
			}
			et, err = db.Types.AddProperty(ctx, et.ID, defs[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, et)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added property %s to %s\n", def.Name, et.Name)
			return nil
		},
	}
}

func newTypeRemovePropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-prop <id|name> <property>",
		Short: "Remove a property from an entity type",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			et, err := lookupType(ctx, db, args[0])
			if err != nil {
				return err
			}
			et, err = db.Types.RemoveProperty(ctx, et.ID, args[1])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, et)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed property %s from %s\n", args[1], et.Name)
			return nil
		},
	}
}

func newTypeDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete an entity type",
		Long: `Delete an entity type. A type that still has instances is only deleted
with --force, which deletes those instances first.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			et, err := lookupType(ctx, db, args[0])
			if err != nil {
				return err
			}
			n, err := db.Types.GetTypeInstanceCount(ctx, et.ID)
			if err != nil {
				return err
			}
			if n > 0 && !force {
				return userErrorf("type %s has %d instance(s); rerun with --force to delete them too", et.Name, n)
			}
			if n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Deleting %d instance(s) of %s\n", n, et.Name)
				insts, err := db.Instances.GetInstancesByType(ctx, et.ID)
				if err != nil {
					return err
				}
				for _, inst := range insts {
					if err := db.Instances.DeleteInstance(ctx, inst.ID); err != nil {
						return err
					}
				}
			}
			if err := db.Types.DeleteType(ctx, et.ID); err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, map[string]any{"deleted": et.ID, "instancesDeleted": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted type %s\n", et.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "also delete the type's instances")
	return cmd
}

func newTypeCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <id|name>",
		Short: "Count the instances of an entity type",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.open()
			if err != nil {
				return err
			}
			et, err := lookupType(ctx, db, args[0])
			if err != nil {
				return err
			}
			n, err := db.Types.GetTypeInstanceCount(ctx, et.ID)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, map[string]any{"typeId": et.ID, "count": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
