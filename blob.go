package oriondb

import (
	"bufio"
	"context"

	"github.com/hupe1980/oriondb/blobstore"
	"github.com/hupe1980/oriondb/engine"
)

// SaveToStore streams the snapshot into a blob store under the given
// name. The container is identical to the one Save writes, so a shipped
// snapshot restores with LoadFromStore or, copied to disk, with Load.
func (db *Database) SaveToStore(ctx context.Context, bs blobstore.BlobStore, name string) error {
	w, err := bs.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := db.SaveToWriter(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// LoadFromStore restores a database from a snapshot blob. path is
// where subsequent Save calls will write; no local file is created
// until the first Save.
func LoadFromStore(ctx context.Context, bs blobstore.BlobStore, name, path string, optFns ...Option) (*Database, error) {
	opts := applyOptions(optFns)

	blob, err := bs.Open(ctx, name)
	if err != nil {
		opts.logger.LogLoad(name, 0, err)
		return nil, err
	}
	snap, err := engine.ReadSnapshot(bufio.NewReader(blob))
	_ = blob.Close()
	if err != nil {
		opts.logger.LogLoad(name, 0, err)
		return nil, err
	}

	return newFromSnapshot(snap, path, opts)
}
