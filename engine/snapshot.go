package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/oriondb/codec"
	"github.com/hupe1980/oriondb/metadata"
	"github.com/hupe1980/oriondb/model"
)

const (
	// Magic identifies the current snapshot container.
	Magic = "ORIONDB2"

	// MagicLegacy identifies the first container revision. It is
	// accepted on read; writers always emit Magic.
	MagicLegacy = "ORIONDB1"

	// FormatVersion is the current container version.
	FormatVersion = 2

	formatVersionLegacy = 1
)

var (
	// ErrInvalidMagic is returned when the file does not start with a
	// known magic string.
	ErrInvalidMagic = errors.New("engine: invalid snapshot magic")

	// ErrInvalidVersion is returned for an unsupported format version.
	ErrInvalidVersion = errors.New("engine: unsupported snapshot version")
)

// Snapshot is the decoded content of a snapshot container.
type Snapshot struct {
	Config    model.Config
	Store     *RecordStore
	MetaIndex *metadata.InvertedIndex

	// ANNBlob is the opaque index sub-blob. Nil for legacy containers,
	// which carried the graph in a sidecar file; the caller rebuilds
	// the index from the records instead.
	ANNBlob []byte
}

// WriteSnapshot serializes the complete database state:
// magic, format version, config, records in ascending id order, the
// metadata-index sub-blob and the ANN sub-blob, both length-prefixed.
// All scalars are little-endian.
func WriteSnapshot(w io.Writer, cfg model.Config, store *RecordStore, ix *metadata.InvertedIndex, annBlob []byte) error {
	cw := codec.NewWriter(w)

	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	if err := cw.WriteUint32(FormatVersion); err != nil {
		return err
	}

	if err := cw.WriteUint32(cfg.VectorDim); err != nil {
		return err
	}
	if err := cw.WriteUint64(cfg.MaxElements); err != nil {
		return err
	}

	if err := cw.WriteUint64(uint64(store.Count())); err != nil {
		return err
	}
	for _, id := range store.OrderedIDs() {
		rec, _ := store.Get(id)
		if err := cw.WriteUint64(id); err != nil {
			return err
		}
		if err := cw.WriteUint64(uint64(len(rec.Vector))); err != nil {
			return err
		}
		if err := cw.WriteFloat32Slice(rec.Vector); err != nil {
			return err
		}
		if err := metadata.WriteMetadata(cw, rec.Metadata); err != nil {
			return err
		}
	}

	var metaBlob bytes.Buffer
	if err := ix.WriteTo(&metaBlob); err != nil {
		return err
	}
	if err := cw.WriteUint64(uint64(metaBlob.Len())); err != nil {
		return err
	}
	if _, err := w.Write(metaBlob.Bytes()); err != nil {
		return err
	}

	if err := cw.WriteUint64(uint64(len(annBlob))); err != nil {
		return err
	}
	if len(annBlob) > 0 {
		if _, err := w.Write(annBlob); err != nil {
			return err
		}
	}

	return nil
}

// ReadSnapshot decodes a container written by WriteSnapshot, or a
// legacy ORIONDB1 container (which has no embedded ANN sub-blob).
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	cr := codec.NewReader(r)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMagic, err)
	}

	var legacy bool
	switch string(magic) {
	case Magic:
	case MagicLegacy:
		legacy = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	version, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	if legacy && version != formatVersionLegacy {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	if !legacy && version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	var cfg model.Config
	if cfg.VectorDim, err = cr.ReadUint32(); err != nil {
		return nil, err
	}
	if cfg.MaxElements, err = cr.ReadUint64(); err != nil {
		return nil, err
	}

	count, err := cr.ReadUint64()
	if err != nil {
		return nil, err
	}

	store := NewRecordStore()
	for range count {
		id, err := cr.ReadUint64()
		if err != nil {
			return nil, err
		}
		vecLen, err := cr.ReadUint64()
		if err != nil {
			return nil, err
		}
		vec, err := cr.ReadFloat32Slice(int(vecLen))
		if err != nil {
			return nil, err
		}
		meta, err := metadata.ReadMetadata(cr)
		if err != nil {
			return nil, err
		}
		store.Put(id, vec, meta)
	}

	metaSize, err := cr.ReadUint64()
	if err != nil {
		return nil, err
	}
	metaBlob, err := cr.ReadBytes(metaSize)
	if err != nil {
		return nil, err
	}
	ix, err := metadata.ReadInvertedIndex(bytes.NewReader(metaBlob))
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Config:    cfg,
		Store:     store,
		MetaIndex: ix,
	}

	if !legacy {
		annSize, err := cr.ReadUint64()
		if err != nil {
			return nil, err
		}
		if annSize > 0 {
			if snap.ANNBlob, err = cr.ReadBytes(annSize); err != nil {
				return nil, err
			}
		}
	}

	return snap, nil
}
