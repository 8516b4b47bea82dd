// Package sqlite implements the persistent store engine on an embedded
// SQLite database. Collections are tables of JSON documents whose key and
// index fields are copied into indexed columns on every write.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// DatabaseFile is the name of the database inside the data directory.
const DatabaseFile = "entitydb.db"

// Backend implements types.Engine on SQLite.
type Backend struct {
	mu         sync.RWMutex
	db         *sql.DB
	config     types.Config
	path       string
	logger     *zap.SugaredLogger
	migrations []Migration
}

// NewBackend creates a closed backend. Call Open before transacting.
func NewBackend(logger *zap.SugaredLogger) *Backend {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Backend{
		logger:     logger.Named("store"),
		migrations: DefaultMigrations(),
	}
}

// Open opens or creates <DataDir>/entitydb.db and provisions the
// collections. Calling Open on an open backend returns nil.
func (b *Backend) Open(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating data dir: %w", types.ErrStorageUnavailable, err)
	}

	path := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}
	// One connection: a single logical writer, and transactions never
	// observe each other half-done.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("%w: opening %s: %w", types.ErrStorageUnavailable, path, err)
	}
	if err := b.runMigrations(db, b.migrations); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}

	b.db = db
	b.config = config
	b.path = path
	b.logger.Infow("store opened", "path", path, "version", maxMigrationVersion(b.migrations))
	return nil
}

// Close releases the database. Close is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.path = ""
	if err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	b.logger.Debug("store closed")
	return nil
}

// Path returns the database file path, or "" when closed.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// SchemaVersion returns the provisioned version recorded in the store.
func (b *Backend) SchemaVersion() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return 0, types.ErrNotInitialized
	}
	return readStoreVersion(b.db)
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
}

var _ types.Engine = (*Backend)(nil)
