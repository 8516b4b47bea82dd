package sqlite

import (
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// isConstraint reports whether err is a SQLite constraint violation
// (primary key, unique index, not null, foreign key).
func isConstraint(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// mapWriteError translates driver errors on writes into the store's
// sentinel errors.
func mapWriteError(collection string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraint(err) {
		return fmt.Errorf("%w: %s: %v", types.ErrConstraint, collection, err)
	}
	return fmt.Errorf("writing %s: %w", collection, err)
}
