package metadata

import (
	"io"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/oriondb/codec"
)

// posting is one inner entry of the inverted index: the original value
// plus the set of ids carrying it.
type posting struct {
	value Value
	ids   *roaring64.Bitmap
}

// InvertedIndex maps key -> value -> set of ids. It is a pure projection
// of the record store's metadata: removal erases inner sets and outer
// keys the moment they become empty, so the index never carries ghost
// entries and serializes deterministically.
//
// The index does no internal locking; the owning database serializes
// access together with the other structures.
type InvertedIndex struct {
	fields map[string]map[string]*posting
}

// NewInvertedIndex creates an empty inverted index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{fields: make(map[string]map[string]*posting)}
}

// Insert adds id to the posting list of every (key, value) pair in doc.
func (ix *InvertedIndex) Insert(id uint64, doc Metadata) {
	for k, v := range doc {
		vm, ok := ix.fields[k]
		if !ok {
			vm = make(map[string]*posting)
			ix.fields[k] = vm
		}
		vk := v.Key()
		p, ok := vm[vk]
		if !ok {
			p = &posting{value: v, ids: roaring64.New()}
			vm[vk] = p
		}
		p.ids.Add(id)
	}
}

// Remove is the inverse of Insert for the same doc.
func (ix *InvertedIndex) Remove(id uint64, doc Metadata) {
	for k, v := range doc {
		vm, ok := ix.fields[k]
		if !ok {
			continue
		}
		vk := v.Key()
		p, ok := vm[vk]
		if !ok {
			continue
		}
		p.ids.Remove(id)
		if p.ids.IsEmpty() {
			delete(vm, vk)
		}
		if len(vm) == 0 {
			delete(ix.fields, k)
		}
	}
}

// Lookup returns the posting set for (key, value). A NaN float value
// never matches.
func (ix *InvertedIndex) Lookup(key string, v Value) (*roaring64.Bitmap, bool) {
	if v.Kind == KindFloat && math.IsNaN(v.F64) {
		return nil, false
	}
	vm, ok := ix.fields[key]
	if !ok {
		return nil, false
	}
	p, ok := vm[v.Key()]
	if !ok {
		return nil, false
	}
	return p.ids, true
}

// Candidates intersects the posting sets of every (key, value) pair in
// filter, visiting keys in ascending order and short-circuiting on the
// first missing key or empty intersection. ok is false when the filter
// is empty or admits nothing. The returned bitmap is owned by the caller.
func (ix *InvertedIndex) Candidates(filter Metadata) (*roaring64.Bitmap, bool) {
	candidates := roaring64.New()
	first := true
	for _, k := range filter.Keys() {
		ids, ok := ix.Lookup(k, filter[k])
		if !ok {
			return nil, false
		}
		if first {
			candidates = ids.Clone()
			first = false
		} else {
			candidates.And(ids)
		}
		if candidates.IsEmpty() {
			return nil, false
		}
	}
	if first || candidates.IsEmpty() {
		return nil, false
	}
	return candidates, true
}

// IDs returns the union of every posting set: the set of ids the index
// knows about. Used by invariant checks and tests.
func (ix *InvertedIndex) IDs() *roaring64.Bitmap {
	all := roaring64.New()
	for _, vm := range ix.fields {
		for _, p := range vm {
			all.Or(p.ids)
		}
	}
	return all
}

// Len returns the number of indexed keys.
func (ix *InvertedIndex) Len() int { return len(ix.fields) }

// WriteTo serializes the index as a self-contained little-endian stream:
// u64 key count; per key: string key, u64 value count; per value: tagged
// value, u64 id count, ids. Keys are written in ascending order and
// values in ascending posting-key order so identical indexes serialize
// identically.
func (ix *InvertedIndex) WriteTo(w io.Writer) error {
	cw := codec.NewWriter(w)

	outer := make([]string, 0, len(ix.fields))
	for k := range ix.fields {
		outer = append(outer, k)
	}
	slices.Sort(outer)

	if err := cw.WriteUint64(uint64(len(outer))); err != nil {
		return err
	}
	for _, k := range outer {
		vm := ix.fields[k]
		if err := cw.WriteString(k); err != nil {
			return err
		}

		inner := make([]string, 0, len(vm))
		for vk := range vm {
			inner = append(inner, vk)
		}
		slices.Sort(inner)

		if err := cw.WriteUint64(uint64(len(inner))); err != nil {
			return err
		}
		for _, vk := range inner {
			p := vm[vk]
			if err := WriteValue(cw, p.value); err != nil {
				return err
			}
			if err := cw.WriteUint64(p.ids.GetCardinality()); err != nil {
				return err
			}
			it := p.ids.Iterator()
			for it.HasNext() {
				if err := cw.WriteUint64(it.Next()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ReadInvertedIndex deserializes a stream written by WriteTo.
func ReadInvertedIndex(r io.Reader) (*InvertedIndex, error) {
	cr := codec.NewReader(r)
	ix := NewInvertedIndex()

	keyCount, err := cr.ReadUint64()
	if err != nil {
		return nil, err
	}
	for range keyCount {
		k, err := cr.ReadString()
		if err != nil {
			return nil, err
		}
		valueCount, err := cr.ReadUint64()
		if err != nil {
			return nil, err
		}
		vm := make(map[string]*posting, valueCount)
		for range valueCount {
			v, err := ReadValue(cr)
			if err != nil {
				return nil, err
			}
			idCount, err := cr.ReadUint64()
			if err != nil {
				return nil, err
			}
			p := &posting{value: v, ids: roaring64.New()}
			for range idCount {
				id, err := cr.ReadUint64()
				if err != nil {
					return nil, err
				}
				p.ids.Add(id)
			}
			vm[v.Key()] = p
		}
		ix.fields[k] = vm
	}
	return ix, nil
}
