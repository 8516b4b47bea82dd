package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and storage",
		Long:  "Create the configuration directory and config.yaml if missing, then create\nand provision the database in the data directory.",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(a.configDir, 0o755); err != nil {
				return systemError(fmt.Errorf("create config directory: %w", err))
			}
			cfg, err := a.storeConfig()
			if err != nil {
				return systemError(err)
			}
			// Only an explicit --data-dir is pinned in config.yaml.
			pinned := ""
			if a.flags.dataDir != "" {
				pinned = cfg.DataDir
			}
			if _, err := writeConfigIfMissing(a.configDir, pinned); err != nil {
				return systemError(fmt.Errorf("write config: %w", err))
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd, map[string]string{
					"configDir": a.configDir,
					"dataDir":   cfg.DataDir,
					"database":  db.Path(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized entitydb in %s\n", cfg.DataDir)
			return nil
		},
	}
}
