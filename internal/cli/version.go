package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/entitydb/internal/sqlite"
	"github.com/mesh-intelligence/entitydb/pkg/entitydb"
)

const modulePath = "github.com/mesh-intelligence/entitydb"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the entitydb version",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "entitydb v%s\nmodule: %s\nschema: %d\n",
				entitydb.Version, modulePath, sqlite.CurrentSchemaVersion())
			return nil
		},
	}
}
