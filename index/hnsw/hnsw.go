// Package hnsw implements a bounded-capacity Hierarchical Navigable
// Small World graph with caller-chosen 64-bit labels, soft deletion and
// admission-filtered search.
package hnsw

import (
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/oriondb/distance"
	"github.com/hupe1980/oriondb/index"
	"github.com/hupe1980/oriondb/internal/queue"
)

const (
	// DefaultM is the default number of bidirectional links per node.
	DefaultM = 16

	// DefaultEFConstruction is the default size of the dynamic
	// candidate list during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default size of the dynamic candidate
	// list during search; the effective value is never below k.
	DefaultEFSearch = 200

	// mmax0Multiplier is the connection multiplier for layer 0.
	mmax0Multiplier = 2

	// minimumM avoids a division by zero in the layer multiplier.
	minimumM = 2
)

// Compile-time check.
var _ index.Index = (*Index)(nil)

// Options represents the options for configuring the graph.
type Options struct {
	// M is the number of established connections per element and layer.
	M int

	// EFConstruction is the size of the dynamic candidate list during
	// insertion. Larger values improve graph quality at build cost.
	EFConstruction int

	// EFSearch is the size of the dynamic candidate list during search.
	EFSearch int

	// AllowReplaceDeleted reuses soft-deleted slots for new points so
	// overwrite-heavy workloads do not leak capacity.
	AllowReplaceDeleted bool

	// RandomSeed pins the layer distribution for reproducible graphs.
	// Nil seeds from the clock.
	RandomSeed *int64
}

// DefaultOptions are the construction parameters the database uses.
var DefaultOptions = Options{
	M:                   DefaultM,
	EFConstruction:      DefaultEFConstruction,
	EFSearch:            DefaultEFSearch,
	AllowReplaceDeleted: true,
}

type node struct {
	label       uint64
	vector      []float32
	layer       int
	connections [][]uint32 // one slice per layer, 0..layer
}

// Index is the hierarchical graph. It does no internal locking: the
// owning database serializes structural mutation, and searches are
// read-only.
type Index struct {
	dim      int
	capacity uint64
	opts     Options

	nodes      []*node
	labels     map[uint64]uint32 // live label -> slot
	tombstones *bitset.BitSet
	freeList   []uint32

	entryPoint uint32
	maxLevel   int
	live       int

	layerMultiplier float64
	rng             *rand.Rand
}

// New creates an empty graph for vectors of the given dimension with
// the given element capacity.
func New(dimension int, capacity uint64, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: dimension}
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Index{
		dim:             dimension,
		capacity:        capacity,
		opts:            opts,
		labels:          make(map[uint64]uint32),
		tombstones:      bitset.New(1024),
		layerMultiplier: 1 / math.Log(float64(opts.M)),
		rng:             rng,
	}, nil
}

// Capacity returns the construction-time element bound.
func (h *Index) Capacity() uint64 { return h.capacity }

// Dimension returns the vector dimensionality.
func (h *Index) Dimension() int { return h.dim }

// Stats returns a point-in-time statistics snapshot.
func (h *Index) Stats() index.Stats {
	return index.Stats{
		Nodes:      len(h.nodes),
		Live:       h.live,
		Tombstones: len(h.nodes) - h.live,
		Capacity:   h.capacity,
		MaxLevel:   h.maxLevel,
	}
}

func (h *Index) dist(a, b []float32) float32 {
	d, _ := distance.SquaredL2(a, b)
	return d
}

func (h *Index) randomLayer() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * h.layerMultiplier))
}

func (h *Index) maxConnections(level int) int {
	if level == 0 {
		return mmax0Multiplier * h.opts.M
	}
	return h.opts.M
}

// connsAt returns the node's connections at level, tolerating nodes
// whose layer is below level (stale incoming edges after slot reuse).
func (n *node) connsAt(level int) []uint32 {
	if level >= len(n.connections) {
		return nil
	}
	return n.connections[level]
}

// AddPoint inserts a vector under the given label. Inserting a label
// that is already live is a no-op, which makes the snapshot re-add pass
// idempotent. When the graph is full it fails with ErrCapacityExhausted
// before any state changes.
func (h *Index) AddPoint(vec []float32, label uint64) error {
	if len(vec) != h.dim {
		return &index.ErrDimensionMismatch{Expected: h.dim, Actual: len(vec)}
	}
	if _, ok := h.labels[label]; ok {
		return nil
	}

	reuse := h.opts.AllowReplaceDeleted && len(h.freeList) > 0
	if !reuse && uint64(len(h.nodes)) >= h.capacity {
		return index.ErrCapacityExhausted
	}

	vectorCopy := make([]float32, len(vec))
	copy(vectorCopy, vec)

	layer := h.randomLayer()
	n := &node{
		label:       label,
		vector:      vectorCopy,
		layer:       layer,
		connections: make([][]uint32, layer+1),
	}

	var slot uint32
	if reuse {
		slot = h.freeList[len(h.freeList)-1]
		h.freeList = h.freeList[:len(h.freeList)-1]
	} else {
		slot = uint32(len(h.nodes))
	}

	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, n)
		h.labels[label] = slot
		h.entryPoint = slot
		h.maxLevel = layer
		h.live++
		return nil
	}

	// Greedy descent through the layers above the new node's layer.
	curr := h.entryPoint
	currDist := h.dist(vectorCopy, h.nodes[curr].vector)
	for level := h.maxLevel; level > layer; level-- {
		curr, currDist = h.greedyStep(vectorCopy, curr, currDist, level)
	}

	// Collect and link neighbors on every shared layer. When a deleted
	// slot is being reused its old occupant must not become a neighbor
	// of its replacement.
	var admit func(slot uint32) bool
	if reuse {
		admit = func(s uint32) bool { return s != slot }
	}
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		top := h.searchLayer(vectorCopy, queue.Item{Label: uint64(curr), Distance: currDist}, h.opts.EFConstruction, level, admit)

		neighbors := h.selectNeighbors(drainAscending(top), h.opts.M)
		conns := make([]uint32, len(neighbors))
		for i, nb := range neighbors {
			conns[i] = uint32(nb.Label)
		}
		n.connections[level] = conns

		if len(neighbors) > 0 {
			curr = uint32(neighbors[0].Label)
			currDist = neighbors[0].Distance
		}
	}

	if reuse {
		h.nodes[slot] = n
		h.tombstones.Clear(uint(slot))
	} else {
		h.nodes = append(h.nodes, n)
	}
	h.labels[label] = slot
	h.live++

	// Back-link the neighbors, pruning their lists where they overflow.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		for _, nb := range n.connections[level] {
			h.link(nb, slot, level)
		}
	}

	if layer > h.maxLevel {
		h.entryPoint = slot
		h.maxLevel = layer
	}

	return nil
}

// MarkDeleted soft-deletes a label. The node stays in the graph for
// navigability; its slot becomes reusable when AllowReplaceDeleted is
// set.
func (h *Index) MarkDeleted(label uint64) error {
	slot, ok := h.labels[label]
	if !ok {
		return &index.ErrNodeNotFound{Label: label}
	}
	delete(h.labels, label)
	h.tombstones.Set(uint(slot))
	h.live--
	if h.opts.AllowReplaceDeleted {
		h.freeList = append(h.freeList, slot)
	}
	return nil
}

// SearchKNN returns up to k admitted neighbors of q in descending
// distance order (max-heap extraction order).
func (h *Index) SearchKNN(q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if len(q) != h.dim {
		return nil, &index.ErrDimensionMismatch{Expected: h.dim, Actual: len(q)}
	}
	if h.live == 0 || k <= 0 {
		return nil, nil
	}

	ef := max(h.opts.EFSearch, k)

	curr := h.entryPoint
	currDist := h.dist(q, h.nodes[curr].vector)
	for level := h.maxLevel; level > 0; level-- {
		curr, currDist = h.greedyStep(q, curr, currDist, level)
	}

	admit := func(slot uint32) bool {
		if h.tombstones.Test(uint(slot)) {
			return false
		}
		return filter == nil || filter(h.nodes[slot].label)
	}

	results := h.searchLayer(q, queue.Item{Label: uint64(curr), Distance: currDist}, ef, 0, admit)
	for results.Len() > k {
		results.Pop()
	}

	out := make([]index.SearchResult, 0, results.Len())
	for results.Len() > 0 {
		item, _ := results.Pop()
		out = append(out, index.SearchResult{
			ID:       h.nodes[item.Label].label,
			Distance: item.Distance,
		})
	}
	return out, nil
}

// greedyStep walks a single layer until no neighbor improves on the
// current distance.
func (h *Index) greedyStep(q []float32, curr uint32, currDist float32, level int) (uint32, float32) {
	changed := true
	for changed {
		changed = false
		for _, nb := range h.nodes[curr].connsAt(level) {
			d := h.dist(q, h.nodes[nb].vector)
			if d < currDist {
				curr = nb
				currDist = d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer explores one layer starting from ep and returns a
// max-heap of up to ef admitted candidates. Traversal crosses every
// node regardless of admission; admit == nil admits all, including
// tombstoned nodes (used during construction). Queue items carry slot
// numbers in Label.
func (h *Index) searchLayer(q []float32, ep queue.Item, ef int, level int, admit func(slot uint32) bool) *queue.PriorityQueue {
	visited := bitset.New(uint(len(h.nodes)))
	visited.Set(uint(ep.Label))

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	results := queue.NewMax(ef)
	if admit == nil || admit(uint32(ep.Label)) {
		results.Push(ep)
	}

	for candidates.Len() > 0 {
		lowerBound := float32(math.Inf(1))
		if results.Len() >= ef {
			top, _ := results.Top()
			lowerBound = top.Distance
		}

		candidate, _ := candidates.Pop()
		if candidate.Distance > lowerBound {
			break
		}

		for _, nb := range h.nodes[candidate.Label].connsAt(level) {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			d := h.dist(q, h.nodes[nb].vector)
			if results.Len() >= ef {
				if top, _ := results.Top(); d >= top.Distance {
					continue
				}
			}

			item := queue.Item{Label: uint64(nb), Distance: d}
			candidates.Push(item)
			if admit == nil || admit(nb) {
				results.Push(item)
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors applies the relative-neighborhood heuristic over
// candidates sorted by ascending distance: a candidate is kept only if
// no already-kept neighbor is closer to it than the query is.
func (h *Index) selectNeighbors(candidates []queue.Item, m int) []queue.Item {
	if len(candidates) <= m {
		return candidates
	}

	kept := make([]queue.Item, 0, m)
	spilled := make([]queue.Item, 0, len(candidates))

	for _, c := range candidates {
		if len(kept) >= m {
			break
		}
		good := true
		for _, kp := range kept {
			if h.dist(h.nodes[kp.Label].vector, h.nodes[c.Label].vector) < c.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c)
		} else {
			spilled = append(spilled, c)
		}
	}

	for _, c := range spilled {
		if len(kept) >= m {
			break
		}
		kept = append(kept, c)
	}
	return kept
}

// link records slot b in slot a's connections at level, pruning with
// the selection heuristic when the list overflows.
func (h *Index) link(a, b uint32, level int) {
	n := h.nodes[a]
	if level >= len(n.connections) {
		return
	}
	n.connections[level] = append(n.connections[level], b)

	maxConns := h.maxConnections(level)
	if len(n.connections[level]) <= maxConns {
		return
	}

	candidates := make([]queue.Item, 0, len(n.connections[level]))
	for _, id := range n.connections[level] {
		candidates = append(candidates, queue.Item{
			Label:    uint64(id),
			Distance: h.dist(n.vector, h.nodes[id].vector),
		})
	}
	slices.SortFunc(candidates, func(x, y queue.Item) int {
		switch {
		case x.Distance < y.Distance:
			return -1
		case x.Distance > y.Distance:
			return 1
		default:
			return 0
		}
	})

	selected := h.selectNeighbors(candidates, maxConns)
	conns := make([]uint32, len(selected))
	for i, s := range selected {
		conns[i] = uint32(s.Label)
	}
	n.connections[level] = conns
}

// drainAscending empties a max-heap into an ascending-distance slice.
func drainAscending(pq *queue.PriorityQueue) []queue.Item {
	out := make([]queue.Item, pq.Len())
	for i := pq.Len() - 1; i >= 0; i-- {
		out[i], _ = pq.Pop()
	}
	return out
}
