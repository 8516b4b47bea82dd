package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return systemError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatPropertyType renders a type the way --prop accepts it.
func formatPropertyType(def types.PropertyDefinition) string {
	s := string(def.Type.Kind)
	switch {
	case def.IsReference() && def.Multiple():
		s = "refs:" + def.TargetTypeID()
	case def.IsReference():
		s = "ref:" + def.TargetTypeID()
	case def.Type.Kind == types.KindEnum:
		s += ":" + strings.Join(def.Type.Values, "|")
	}
	if def.Required {
		s += "!"
	}
	return s
}

func printType(cmd *cobra.Command, et *types.EntityType) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "id:    %s\nname:  %s\ncolor: %s\n", et.ID, et.Name, et.Color)
	if len(et.Properties) == 0 {
		fmt.Fprintln(w, "properties: (none)")
		return
	}
	fmt.Fprintln(w, "properties:")
	tw := newTable(w)
	for _, p := range et.Properties {
		fmt.Fprintf(tw, "  %s\t%s\n", p.Name, formatPropertyType(p))
	}
	tw.Flush()
}

func printTypes(cmd *cobra.Command, all []types.EntityType) {
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tNAME\tPROPERTIES")
	for _, et := range all {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", et.ID, et.Name, len(et.Properties))
	}
	tw.Flush()
}

// formatProperties renders properties as k=v pairs sorted by key.
func formatProperties(props types.Properties) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + props[k].String()
	}
	return strings.Join(parts, " ")
}

func printInstance(cmd *cobra.Command, inst *types.EntityInstance) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "id:       %s\ntype:     %s\ncreated:  %d\nmodified: %d\n",
		inst.ID, inst.TypeID, inst.Metadata.Created, inst.Metadata.Modified)
	fmt.Fprintln(w, "properties:")
	keys := make([]string, 0, len(inst.Properties))
	for k := range inst.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable(w)
	for _, k := range keys {
		v := inst.Properties[k]
		fmt.Fprintf(tw, "  %s\t%s\t(%s)\n", k, v.String(), v.Kind())
	}
	tw.Flush()
}

func printInstances(cmd *cobra.Command, list []types.EntityInstance) {
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tTYPE\tPROPERTIES")
	for _, inst := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", inst.ID, inst.TypeID, formatProperties(inst.Properties))
	}
	tw.Flush()
}
