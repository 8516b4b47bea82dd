package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Import loads <dir>/<collection>.ndjson for every collection in one
// read-write transaction. Records are upserted by primary key; records
// already in the store but absent from the files are kept. Malformed lines,
// records that do not decode as the collection's document type, records
// without a usable key, and records that violate a unique index are skipped
// and counted. Missing files are treated as empty.
func (b *Backend) Import(ctx context.Context, dir string) (map[string]types.ImportStats, error) {
	loaded := make(map[string][]json.RawMessage, len(collectionSpecs))
	stats := make(map[string]types.ImportStats, len(collectionSpecs))
	for _, spec := range collectionSpecs {
		records, skipped, err := readNDJSON(filepath.Join(dir, ExportFile(spec.name)))
		if err != nil {
			return nil, fmt.Errorf("importing %s: %w", spec.name, err)
		}
		loaded[spec.name] = records
		stats[spec.name] = types.ImportStats{Skipped: skipped}
	}

	err := b.TransactMulti(ctx, types.StandardCollectionNames, types.ReadWrite, func(t types.Tx) error {
		for _, spec := range collectionSpecs {
			c, err := t.Collection(spec.name)
			if err != nil {
				return err
			}
			st := stats[spec.name]
			for _, rec := range loaded[spec.name] {
				doc := spec.record()
				if err := json.Unmarshal(rec, doc); err != nil {
					b.logger.Debugw("skipping undecodable record", "collection", spec.name, "error", err)
					st.Skipped++
					continue
				}
				err := c.Put(doc)
				switch {
				case err == nil:
					st.Imported++
				case errors.Is(err, types.ErrInvalidKey), errors.Is(err, types.ErrConstraint):
					b.logger.Debugw("skipping record", "collection", spec.name, "error", err)
					st.Skipped++
				default:
					return err
				}
			}
			stats[spec.name] = st
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
