package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// storeName identifies this store in store_meta. Together with the highest
// migration version it forms the provisioning identity.
const storeName = "EntityDB"

// Migration is one provisioning step. Each runs in its own transaction.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

var defaultMigrations = []Migration{
	{
		Version:     1,
		Description: "create entity collections",
		Up: func(tx *sql.Tx) error {
			for _, spec := range collectionSpecs {
				for _, stmt := range spec.createTableDDL() {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("provisioning %s: %w", spec.name, err)
					}
				}
			}
			return nil
		},
	},
}

// DefaultMigrations returns a copy of the built-in migrations.
func DefaultMigrations() []Migration {
	out := make([]Migration, len(defaultMigrations))
	copy(out, defaultMigrations)
	return out
}

// CurrentSchemaVersion is the version a fully provisioned store reports.
func CurrentSchemaVersion() int {
	return maxMigrationVersion(defaultMigrations)
}

// runMigrations brings the store up to the highest version in migrations.
// Migrations at or below the stored version are skipped, so provisioning
// happens once per version for the lifetime of the database file.
func (b *Backend) runMigrations(db *sql.DB, migrations []Migration) error {
	for _, stmt := range []string{createStoreMeta, createSchemaMigrations} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating provisioning tables: %w", err)
		}
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	current, err := readStoreVersion(db)
	if err != nil {
		return err
	}
	target := maxMigrationVersion(ordered)
	if current > target {
		return fmt.Errorf("%w: stored=%d supported=%d", types.ErrSchemaTooNew, current, target)
	}

	for _, m := range ordered {
		if m.Version <= current {
			continue
		}
		b.logger.Debugw("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration v%d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Description, err)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Description, now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO store_meta (name, version, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at`,
			storeName, m.Version, now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("updating store version v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// readStoreVersion returns the provisioned version, or 0 for a new store.
func readStoreVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT version FROM store_meta WHERE name = ?`, storeName).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading store version: %w", err)
	}
	return v, nil
}

func maxMigrationVersion(migrations []Migration) int {
	highest := 0
	for _, m := range migrations {
		if m.Version > highest {
			highest = m.Version
		}
	}
	return highest
}
