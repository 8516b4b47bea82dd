// Package cli implements the entitydb command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/entitydb/internal/logging"
	"github.com/mesh-intelligence/entitydb/internal/paths"
	"github.com/mesh-intelligence/entitydb/pkg/entitydb"
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by one invocation's commands.
type app struct {
	flags     rootFlags
	configDir string
	config    *viper.Viper
	logger    *zap.SugaredLogger
	db        *entitydb.DB
}

// NewRootCmd creates the top-level "entitydb" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "entitydb",
		Short: "Define entity types and manage their instances",
		Long: "entitydb stores user-defined entity types (named schemas with typed\n" +
			"properties) and instances of those types in a local database.",
		Version: entitydb.Version,
		// Errors are printed once by Run with the matching exit code.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return userError(err)
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newTypeCmd(a))
	root.AddCommand(newInstanceCmd(a))
	root.AddCommand(newUsageCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))

	return root
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	// Post-run hooks are skipped when a command fails.
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// setup resolves directories, loads config.yaml and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return systemError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return systemError(err)
	}
	logger, err := logging.New(cfg.GetString(cfgKeyLogLevel), cfg.GetString(cfgKeyLogFormat))
	if err != nil {
		return userError(fmt.Errorf("config: %w", err))
	}
	a.configDir = configDir
	a.config = cfg
	a.logger = logger.Named("cli")
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		return systemError(err)
	}
	return nil
}

// storeConfig returns the storage configuration for this invocation.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.config.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return types.Config{
		Backend: a.config.GetString(cfgKeyBackend),
		DataDir: dataDir,
	}, nil
}

// open initializes the store on first use.
func (a *app) open() (*entitydb.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, systemError(err)
	}
	db := entitydb.New(a.logger)
	if err := db.Initialize(cfg); err != nil {
		if errors.Is(err, types.ErrBackendEmpty) || errors.Is(err, types.ErrBackendUnknown) {
			return nil, userError(fmt.Errorf("config: %w", err))
		}
		return nil, systemError(fmt.Errorf("open store: %w", err))
	}
	a.db = db
	return db, nil
}

// exitErr carries the exit code chosen for an error.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func userError(err error) error   { return &exitErr{code: exitUserError, err: err} }
func systemError(err error) error { return &exitErr{code: exitSysError, err: err} }

// userErrorf formats a user error.
func userErrorf(format string, args ...any) error {
	return userError(fmt.Errorf(format, args...))
}

// exitCode maps an error to an exit code. Store errors caused by the
// caller's input are user errors; anything unclassified is a system error.
func exitCode(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	for _, target := range []error{
		types.ErrNotFound,
		types.ErrDuplicateName,
		types.ErrDuplicatePropertyName,
		types.ErrValidationFailed,
		types.ErrInvalidKey,
	} {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}
