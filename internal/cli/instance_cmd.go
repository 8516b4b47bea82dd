package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

func newInstanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instance",
		Aliases: []string{"inst"},
		Short:   "Manage entity instances",
	}
	cmd.AddCommand(
		newInstanceCreateCmd(a),
		newInstanceGetCmd(a),
		newInstanceListCmd(a),
		newInstanceUpdateCmd(a),
		newInstanceDeleteCmd(a),
		newInstanceSearchCmd(a),
		newInstanceFilterCmd(a),
		newInstanceGroupCmd(a),
		newInstanceRelatedCmd(a),
		newInstanceStatsCmd(a),
	)
	return cmd
}

func newInstanceCreateCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create an instance of a type",
		Long: `Create an instance. Values given with --set are converted using the
property's declared type; undeclared properties are stored as text.

Example:
  entitydb instance create Person --set name=Ada --set age=36`,
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
			props, err := coerceAssignments(et, sets)
			if err != nil {
				return err
			}
			inst, err := db.Instances.CreateInstance(ctx, et.ID, props)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, inst)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created instance %s of %s\n", inst.ID, et.Name)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "property value as key=value (repeatable)")
	return cmd
}

func newInstanceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an instance",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			inst, err := lookupInstance(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, inst)
			}
			printInstance(cmd, inst)
			return nil
		},
	}
}

func newInstanceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <type>",
		Short: "List the instances of a type",
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
			list, err := db.Instances.GetInstancesByType(ctx, et.ID)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, list)
			}
			printInstances(cmd, list)
			return nil
		},
	}
}

func newInstanceUpdateCmd(a *app) *cobra.Command {
	var sets, unsets []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Merge property values into an instance",
		Long: `Merge property values into an instance. Properties not named are kept;
--unset removes a property.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(sets) == 0 && len(unsets) == 0 {
				return userErrorf("nothing to update: use --set or --unset")
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			inst, err := lookupInstance(ctx, db, args[0])
			if err != nil {
				return err
			}
			// Coercion follows the type's declarations when the type still exists.
			et, err := db.Types.GetType(ctx, inst.TypeID)
			if err != nil {
				return err
			}
			if et == nil {
				et = &types.EntityType{}
			}
			props, err := coerceAssignments(et, sets)
			if err != nil {
				return err
			}
			for _, k := range unsets {
				props[k] = types.Value{}
			}
			inst, err = db.Instances.UpdateProperties(ctx, inst.ID, props)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, inst)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated instance %s\n", inst.ID)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "property value as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&unsets, "unset", nil, "property to remove (repeatable)")
	return cmd
}

func newInstanceDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an instance",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			if err := db.Instances.DeleteInstance(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted instance %s\n", args[0])
			return nil
		},
	}
}

func newInstanceSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find instances whose property values contain a string",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return userErrorf("search query is empty")
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			list, err := db.Instances.SearchInstances(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, list)
			}
			printInstances(cmd, list)
			return nil
		},
	}
}

func newInstanceFilterCmd(a *app) *cobra.Command {
	var wheres []string
	cmd := &cobra.Command{
		Use:   "filter <type>",
		Short: "List instances of a type matching every --where",
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
			where, err := coerceAssignments(et, wheres)
			if err != nil {
				return err
			}
			list, err := db.FilterInstances(ctx, et.ID, where)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, list)
			}
			printInstances(cmd, list)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&wheres, "where", nil, "required property value as key=value (repeatable)")
	return cmd
}

func newInstanceGroupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group <type> <property>",
		Short: "Group the instances of a type by a property value",
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
			groups, err := db.GroupInstances(ctx, et.ID, args[1])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, groups)
			}
			w := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(w, "%s (%d)\n", g.Key, len(g.Instances))
				for _, inst := range g.Instances {
					fmt.Fprintf(w, "  %s  %s\n", inst.ID, formatProperties(inst.Properties))
				}
			}
			return nil
		},
	}
}

func newInstanceRelatedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "related <id>",
		Short: "Show the instances an instance references",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			related, err := db.RelatedInstances(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, related)
			}
			names := make([]string, 0, len(related))
			for name := range related {
				names = append(names, name)
			}
			sort.Strings(names)
			w := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(w, "%s:\n", name)
				for _, inst := range related[name] {
					fmt.Fprintf(w, "  %s  %s\n", inst.ID, formatProperties(inst.Properties))
				}
			}
			return nil
		},
	}
}

func newInstanceStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <type> <property>",
		Short: "Summarize a property across the instances of a type",
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
			stats, err := db.PropertyStats(ctx, et.ID, args[1])
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, stats)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "property: %s\ncount:    %d\ndistinct: %d\n", stats.Property, stats.Count, stats.Distinct)
			tw := newTable(w)
			for _, b := range stats.Sorted() {
				fmt.Fprintf(tw, "  %s\t%d\n", b.Value, b.Count)
			}
			tw.Flush()
			return nil
		},
	}
}
