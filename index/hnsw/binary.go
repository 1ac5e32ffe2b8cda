package hnsw

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/oriondb/codec"
	"github.com/hupe1980/oriondb/index"
)

// blobVersion tags the opaque graph blob so incompatible layouts are
// rejected instead of misparsed.
const blobVersion = 1

// WriteTo serializes the full graph, including soft-deleted nodes, so a
// decoded index answers searches identically to the original.
func (h *Index) WriteTo(w io.Writer) error {
	cw := codec.NewWriter(w)

	if err := cw.WriteUint32(blobVersion); err != nil {
		return err
	}
	if err := cw.WriteUint32(uint32(h.dim)); err != nil {
		return err
	}
	if err := cw.WriteUint64(h.capacity); err != nil {
		return err
	}
	if err := cw.WriteUint32(uint32(h.opts.M)); err != nil {
		return err
	}
	if err := cw.WriteUint32(uint32(h.opts.EFConstruction)); err != nil {
		return err
	}
	if err := cw.WriteUint32(h.entryPoint); err != nil {
		return err
	}
	if err := cw.WriteUint32(uint32(h.maxLevel)); err != nil {
		return err
	}
	if err := cw.WriteUint64(uint64(len(h.nodes))); err != nil {
		return err
	}

	for slot, n := range h.nodes {
		if err := cw.WriteUint64(n.label); err != nil {
			return err
		}
		deleted := uint8(0)
		if h.tombstones.Test(uint(slot)) {
			deleted = 1
		}
		if err := cw.WriteUint8(deleted); err != nil {
			return err
		}
		if err := cw.WriteUint32(uint32(n.layer)); err != nil {
			return err
		}
		if err := cw.WriteFloat32Slice(n.vector); err != nil {
			return err
		}
		if err := cw.WriteUint32(uint32(len(n.connections))); err != nil {
			return err
		}
		for _, conns := range n.connections {
			if err := cw.WriteUint32(uint32(len(conns))); err != nil {
				return err
			}
			for _, c := range conns {
				if err := cw.WriteUint32(c); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// Decode reconstructs a graph from a blob written by WriteTo. The
// resulting capacity is the larger of the persisted capacity and the
// caller's requirement; the persisted dimension must match.
func Decode(r io.Reader, dimension int, capacity uint64, optFns ...func(o *Options)) (*Index, error) {
	cr := codec.NewReader(r)

	version, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != blobVersion {
		return nil, fmt.Errorf("hnsw: unsupported blob version %d", version)
	}

	dim, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(dim) != dimension {
		return nil, &index.ErrDimensionMismatch{Expected: dimension, Actual: int(dim)}
	}

	persistedCap, err := cr.ReadUint64()
	if err != nil {
		return nil, err
	}
	m, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	efConstruction, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	entryPoint, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	maxLevel, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	nodeCount, err := cr.ReadUint64()
	if err != nil {
		return nil, err
	}

	h, err := New(dimension, max(persistedCap, capacity), append(optFns, func(o *Options) {
		o.M = int(m)
		o.EFConstruction = int(efConstruction)
	})...)
	if err != nil {
		return nil, err
	}

	if nodeCount > persistedCap {
		return nil, fmt.Errorf("hnsw: blob node count %d exceeds capacity %d", nodeCount, persistedCap)
	}

	h.entryPoint = entryPoint
	h.maxLevel = int(maxLevel)
	h.nodes = make([]*node, 0, nodeCount)
	h.tombstones = bitset.New(uint(nodeCount))

	for slot := uint64(0); slot < nodeCount; slot++ {
		label, err := cr.ReadUint64()
		if err != nil {
			return nil, err
		}
		deleted, err := cr.ReadUint8()
		if err != nil {
			return nil, err
		}
		layer, err := cr.ReadUint32()
		if err != nil {
			return nil, err
		}
		vec, err := cr.ReadFloat32Slice(dimension)
		if err != nil {
			return nil, err
		}
		levels, err := cr.ReadUint32()
		if err != nil {
			return nil, err
		}
		connections := make([][]uint32, levels)
		for l := range connections {
			count, err := cr.ReadUint32()
			if err != nil {
				return nil, err
			}
			conns := make([]uint32, count)
			for i := range conns {
				if conns[i], err = cr.ReadUint32(); err != nil {
					return nil, err
				}
			}
			connections[l] = conns
		}

		h.nodes = append(h.nodes, &node{
			label:       label,
			vector:      vec,
			layer:       int(layer),
			connections: connections,
		})

		if deleted == 1 {
			h.tombstones.Set(uint(slot))
			if h.opts.AllowReplaceDeleted {
				h.freeList = append(h.freeList, uint32(slot))
			}
		} else {
			h.labels[label] = uint32(slot)
			h.live++
		}
	}

	if nodeCount > 0 && uint64(entryPoint) >= nodeCount {
		return nil, fmt.Errorf("hnsw: entry point %d out of range", entryPoint)
	}

	return h, nil
}

// Provider wires the graph into the database's index.Provider seam.
type Provider struct {
	// OptFns are applied to every constructed or decoded graph.
	OptFns []func(o *Options)
}

var _ index.Provider = Provider{}

// New implements index.Provider.
func (p Provider) New(dimension int, capacity uint64) (index.Index, error) {
	return New(dimension, capacity, p.OptFns...)
}

// Decode implements index.Provider.
func (p Provider) Decode(r io.Reader, dimension int, capacity uint64) (index.Index, error) {
	return Decode(r, dimension, capacity, p.OptFns...)
}
