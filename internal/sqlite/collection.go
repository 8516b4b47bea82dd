package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// collection is the keyed, indexed handle to one table inside a transaction.
type collection struct {
	tx   *tx
	spec *collectionSpec
}

func (c *collection) Name() string { return c.spec.name }

// check rejects use of the handle after its transaction ended, and writes in
// a read-only transaction.
func (c *collection) check(write bool) error {
	if c.tx.done.Load() {
		return types.ErrTransactionInactive
	}
	if write && c.tx.mode != types.ReadWrite {
		return fmt.Errorf("%w: %s", types.ErrReadOnly, c.spec.name)
	}
	return nil
}

func (c *collection) keyWhere(key []string) (string, []any, error) {
	if len(key) != len(c.spec.keyColumns) {
		return "", nil, fmt.Errorf("%w: %s expects %d key parts, got %d",
			types.ErrInvalidKey, c.spec.name, len(c.spec.keyColumns), len(key))
	}
	conds := make([]string, len(key))
	args := make([]any, len(key))
	for i, col := range c.spec.keyColumns {
		conds[i] = col + " = ?"
		args[i] = key[i]
	}
	return strings.Join(conds, " AND "), args, nil
}

func (c *collection) lookupIndex(name string) (*indexSpec, error) {
	ix, ok := c.spec.index(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no index %q", types.ErrUnknownIndex, c.spec.name, name)
	}
	return ix, nil
}

func (c *collection) Get(dst any, key ...string) (bool, error) {
	if err := c.check(false); err != nil {
		return false, err
	}
	where, args, err := c.keyWhere(key)
	if err != nil {
		return false, err
	}
	return c.getOne(dst, "SELECT doc FROM "+c.spec.table+" WHERE "+where, args...)
}

func (c *collection) GetByIndex(dst any, index, value string) (bool, error) {
	if err := c.check(false); err != nil {
		return false, err
	}
	ix, err := c.lookupIndex(index)
	if err != nil {
		return false, err
	}
	return c.getOne(dst,
		"SELECT doc FROM "+c.spec.table+" WHERE "+ix.column+" = ? ORDER BY rowid LIMIT 1", value)
}

func (c *collection) getOne(dst any, query string, args ...any) (bool, error) {
	var doc string
	err := c.tx.sql.QueryRowContext(c.tx.ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", c.spec.name, err)
	}
	if err := json.Unmarshal([]byte(doc), dst); err != nil {
		return false, fmt.Errorf("decoding %s record: %w", c.spec.name, err)
	}
	return true, nil
}

func (c *collection) GetAll(dst any) error {
	if err := c.check(false); err != nil {
		return err
	}
	return c.getMany(dst, "SELECT doc FROM "+c.spec.table+" ORDER BY rowid")
}

func (c *collection) GetAllByIndex(dst any, index, value string) error {
	if err := c.check(false); err != nil {
		return err
	}
	ix, err := c.lookupIndex(index)
	if err != nil {
		return err
	}
	return c.getMany(dst,
		"SELECT doc FROM "+c.spec.table+" WHERE "+ix.column+" = ? ORDER BY rowid", value)
}

// getMany decodes the selected documents as one JSON array into dst.
func (c *collection) getMany(dst any, query string, args ...any) error {
	docs, err := c.rawDocs(query, args...)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, doc := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(doc)
	}
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		return fmt.Errorf("decoding %s records: %w", c.spec.name, err)
	}
	return nil
}

func (c *collection) rawDocs(query string, args ...any) ([]json.RawMessage, error) {
	rows, err := c.tx.sql.QueryContext(c.tx.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.spec.name, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", c.spec.name, err)
		}
		docs = append(docs, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.spec.name, err)
	}
	return docs, nil
}

func (c *collection) Count() (int, error) {
	if err := c.check(false); err != nil {
		return 0, err
	}
	return c.count("SELECT COUNT(*) FROM " + c.spec.table)
}

func (c *collection) CountByIndex(index, value string) (int, error) {
	if err := c.check(false); err != nil {
		return 0, err
	}
	ix, err := c.lookupIndex(index)
	if err != nil {
		return 0, err
	}
	return c.count("SELECT COUNT(*) FROM "+c.spec.table+" WHERE "+ix.column+" = ?", value)
}

func (c *collection) count(query string, args ...any) (int, error) {
	var n int
	if err := c.tx.sql.QueryRowContext(c.tx.ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.spec.name, err)
	}
	return n, nil
}

func (c *collection) Add(doc any) error {
	return c.write(doc, false)
}

func (c *collection) Put(doc any) error {
	return c.write(doc, true)
}

func (c *collection) write(doc any, upsert bool) error {
	if err := c.check(true); err != nil {
		return err
	}
	rec, err := c.encode(doc)
	if err != nil {
		return err
	}

	cols := append(append([]string{}, c.spec.keyColumns...), c.spec.dataColumns()...)
	cols = append(cols, "doc")
	args := append(append([]any{}, rec.keys...), rec.data...)
	args = append(args, string(rec.doc))

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.spec.table, strings.Join(cols, ", "), placeholders(len(cols)))
	if upsert {
		var sets []string
		for _, col := range cols[len(c.spec.keyColumns):] {
			sets = append(sets, col+" = excluded."+col)
		}
		query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s",
			strings.Join(c.spec.keyColumns, ", "), strings.Join(sets, ", "))
	}

	_, err = c.tx.sql.ExecContext(c.tx.ctx, query, args...)
	return mapWriteError(c.spec.name, err)
}

func (c *collection) Delete(key ...string) error {
	if err := c.check(true); err != nil {
		return err
	}
	where, args, err := c.keyWhere(key)
	if err != nil {
		return err
	}
	_, err = c.tx.sql.ExecContext(c.tx.ctx, "DELETE FROM "+c.spec.table+" WHERE "+where, args...)
	return mapWriteError(c.spec.name, err)
}

// encodedRecord is a document ready to write: its JSON, its key parts and
// the values of its non-key indexed columns.
type encodedRecord struct {
	doc  []byte
	keys []any
	data []any
}

// encode marshals doc and extracts its key and index values. Key fields
// must be present and non-empty. Index fields that are absent or cannot be
// rendered as strings are stored as NULL and so are not indexed.
func (c *collection) encode(doc any) (*encodedRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s record: %w", c.spec.name, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: %s record is not an object", types.ErrInvalidKey, c.spec.name)
	}

	rec := &encodedRecord{doc: raw}
	for _, path := range c.spec.keyPaths {
		s, err := cast.ToStringE(fields[path])
		if err != nil || s == "" || fields[path] == nil {
			return nil, fmt.Errorf("%w: %s record has no %q", types.ErrInvalidKey, c.spec.name, path)
		}
		rec.keys = append(rec.keys, s)
	}
	for _, col := range c.spec.dataColumns() {
		rec.data = append(rec.data, c.indexValue(fields, col))
	}
	return rec, nil
}

func (c *collection) indexValue(fields map[string]any, column string) any {
	for _, ix := range c.spec.indexes {
		if ix.column != column {
			continue
		}
		v, ok := fields[ix.keyPath]
		if !ok || v == nil {
			return nil
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil
		}
		return s
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
