package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/olivere/ndjson"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// ExportExt is the file extension of exported collections.
const ExportExt = ".ndjson"

// ExportFile returns the export file name for a collection.
func ExportFile(collection string) string {
	return collection + ExportExt
}

// Export writes every collection to <dir>/<collection>.ndjson, one document
// per line in insertion order. All collections are read in a single
// transaction so the files form a consistent snapshot. Each file is replaced
// atomically.
func (b *Backend) Export(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}

	snapshot := make(map[string][]json.RawMessage, len(collectionSpecs))
	err := b.TransactMulti(ctx, types.StandardCollectionNames, types.ReadOnly, func(t types.Tx) error {
		for _, spec := range collectionSpecs {
			h, err := t.Collection(spec.name)
			if err != nil {
				return err
			}
			c := h.(*collection)
			if err := c.check(false); err != nil {
				return err
			}
			docs, err := c.rawDocs("SELECT doc FROM " + spec.table + " ORDER BY rowid")
			if err != nil {
				return err
			}
			snapshot[spec.name] = docs
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, spec := range collectionSpecs {
		path := filepath.Join(dir, ExportFile(spec.name))
		if err := writeNDJSON(path, snapshot[spec.name]); err != nil {
			return fmt.Errorf("exporting %s: %w", spec.name, err)
		}
		b.logger.Debugw("exported collection", "collection", spec.name, "records", len(snapshot[spec.name]), "path", path)
	}
	return nil
}

// writeNDJSON atomically writes records using the temp-file, fsync, rename
// pattern.
func writeNDJSON(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ndjson-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	buf := bufio.NewWriter(tmp)
	w := ndjson.NewWriter(buf)
	for _, rec := range records {
		if err := w.Encode(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
	}
	if err := buf.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// readNDJSON returns each well-formed line of path. Lines that do not
// decode are counted in skipped. A missing file yields no records.
func readNDJSON(path string) (records []json.RawMessage, skipped int, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := ndjson.NewReader(f)
	for r.Next() {
		var rec json.RawMessage
		if err := r.Decode(&rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := r.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, skipped, nil
}
