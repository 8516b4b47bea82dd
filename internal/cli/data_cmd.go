package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

func newUsageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show how many types and instances are stored",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			usage, err := db.StorageUsage(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, usage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "types:     %d\ninstances: %d\n", usage.TypeCount, usage.InstanceCount)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every collection to <dir> as NDJSON",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			if err := db.Export(cmd.Context(), args[0]); err != nil {
				return systemError(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd, map[string]string{"exported": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load NDJSON collections from <dir>",
		Long: `Load <dir>/<collection>.ndjson files into the store. Records are
upserted by id; malformed or conflicting lines are skipped.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			stats, err := db.Import(cmd.Context(), args[0])
			if err != nil {
				return systemError(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd, stats)
			}
			w := cmd.OutOrStdout()
			for _, name := range types.StandardCollectionNames {
				st := stats[name]
				fmt.Fprintf(w, "%s: %d imported, %d skipped\n", name, st.Imported, st.Skipped)
			}
			return nil
		},
	}
}
