package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// tx is a transaction scoped to a fixed set of collections.
type tx struct {
	ctx   context.Context
	sql   *sql.Tx
	mode  types.TxMode
	colls map[string]*collection
	done  atomic.Bool
}

func (t *tx) Mode() types.TxMode { return t.mode }

func (t *tx) Collection(name string) (types.Collection, error) {
	c, ok := t.colls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not in transaction scope", types.ErrUnknownCollection, name)
	}
	return c, nil
}

// Transact runs fn against one collection in a transaction.
func (b *Backend) Transact(ctx context.Context, collection string, mode types.TxMode, fn func(c types.Collection) error) error {
	return b.TransactMulti(ctx, []string{collection}, mode, func(t types.Tx) error {
		c, err := t.Collection(collection)
		if err != nil {
			return err
		}
		return fn(c)
	})
}

// TransactMulti runs fn in a transaction spanning collections. The
// transaction commits only if fn returns nil; otherwise, or if fn panics, it
// is rolled back. fn's error is returned unchanged.
func (b *Backend) TransactMulti(ctx context.Context, collections []string, mode types.TxMode, fn func(t types.Tx) error) (err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return types.ErrNotInitialized
	}
	if len(collections) == 0 {
		return fmt.Errorf("%w: empty transaction scope", types.ErrUnknownCollection)
	}

	t := &tx{ctx: ctx, mode: mode, colls: make(map[string]*collection, len(collections))}
	for _, name := range collections {
		spec, ok := lookupSpec(name)
		if !ok {
			return fmt.Errorf("%w: %q", types.ErrUnknownCollection, name)
		}
		t.colls[name] = &collection{tx: t, spec: spec}
	}

	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	t.sql = sqlTx

	committed := false
	defer func() {
		t.done.Store(true)
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		if err != nil {
			b.logger.Debugw("transaction aborted", "collections", collections, "mode", mode.String(), "error", err)
		}
	}()

	if err = fn(t); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return err
	}
	committed = true
	return nil
}
