package oram

import "github.com/pkg/errors"

// applyFunc derives the payload to be written into the target block from
// the payload read out of it. Implementations must be branch-free in their
// secret inputs: the update participates in the stash scan through
// conditional moves only.
type applyFunc func(dst, cur []byte)

// stash is the fixed-capacity bag of blocks that could not be written back
// to the tree, merged with the blocks of the path being accessed. All of
// its physical slots exist for the lifetime of the engine; real blocks are
// distinguished from dummies only by their address field, and every
// operation sweeps every slot, so the instruction trace never depends on
// which slots are occupied.
//
// The physical slot count is a power of two (for the bitonic network) of
// at least capacity + 2*Z*(H+1) + 1 slots: enough that the eviction sort
// always finds dummies to pad every bucket even in the worst retention
// case, and that a fresh path plus one created block always fit.
type stash struct {
	blocks []Block
	keys   []uint64 // sort-key scratch, parallel to blocks

	capacity   int // S: real blocks allowed to survive an eviction
	pathLen    int // Z*(H+1)
	height     int
	bucketSize int
	blockSize  int

	occ     []uint64 // per-level occupancy scratch
	need    []uint64 // per-level dummy-padding scratch
	scratch []byte   // applyFunc output buffer
}

func newStash(height int, bucketSize, blockSize, capacity int) *stash {
	pathLen := bucketSize * (height + 1)
	slots := nextPow2(capacity + 2*pathLen + 1)

	blocks := make([]Block, slots)
	for i := range blocks {
		blocks[i] = newDummyBlock(blockSize)
	}
	return &stash{
		blocks:     blocks,
		keys:       make([]uint64, slots),
		capacity:   capacity,
		pathLen:    pathLen,
		height:     height,
		bucketSize: bucketSize,
		blockSize:  blockSize,
		occ:        make([]uint64, height+1),
		need:       make([]uint64, height+1),
		scratch:    make([]byte, blockSize),
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// compact sorts real blocks to the front of the slot array. The sort key
// is (dummy flag, slot index), so real blocks keep their relative order
// and the result is deterministic.
func (s *stash) compact() {
	for i := range s.blocks {
		s.keys[i] = uint64(s.blocks[i].ctIsDummy())<<32 | uint64(i)
	}
	bitonicSortByKeys(s.blocks, s.keys)
}

// loadPath merges the Z*(H+1) blocks of a just-read path into the tail of
// the slot array. compact must have run first: the retained-block bound
// guarantees the tail is all dummies, so the destination indices are
// public.
func (s *stash) loadPath(path [][]Block) {
	i := len(s.blocks) - s.pathLen
	for _, bucket := range path {
		for j := range bucket {
			s.blocks[i].set(&bucket[j])
			i++
		}
	}
}

// access performs the oblivious read-modify-write of one logical block.
// The first pass sweeps every slot: the matching block's payload is read
// into old, its leaf field is stamped with newLeaf, and apply's output is
// conditionally moved over its payload. The second pass runs always and
// converts one free slot into the block when the address was not resident
// (the address becoming live, with a zero-initialized old value). Neither
// pass branches on whether or where the block was found.
func (s *stash) access(address, newLeaf uint64, apply applyFunc) []byte {
	old := make([]byte, s.blockSize)
	found := 0
	for i := range s.blocks {
		b := &s.blocks[i]
		match := ctEq64(b.Address, address)
		ctCopy(match, old, b.Value)
		ctAssign64(match, &b.Leaf, newLeaf)
		apply(s.scratch, old)
		ctCopy(match, b.Value, s.scratch)
		found |= match
	}

	apply(s.scratch, old)
	missing := found ^ 1
	placed := 0
	for i := range s.blocks {
		b := &s.blocks[i]
		place := b.ctIsDummy() & missing & (placed ^ 1)
		ctAssign64(place, &b.Address, address)
		ctAssign64(place, &b.Leaf, newLeaf)
		ctCopy(place, b.Value, s.scratch)
		placed |= place
	}
	return old
}

// evictToPath assigns every real block the deepest bucket on the accessed
// path that its leaf tag permits, capping each bucket at Z slots and
// padding free slots with dummies, then materializes the H+1 buckets in
// root-to-leaf order. A block whose deepest permitted bucket is saturated
// is retained in the stash. Occupancy bookkeeping sweeps all levels for
// every block instead of indexing by the secret depth, so the only values
// driving control flow are the public geometry.
func (s *stash) evictToPath(accessLeaf uint64) ([][]Block, error) {
	retainedKey := uint64(s.height + 1)
	spareKey := uint64(s.height + 2)

	for l := range s.occ {
		s.occ[l] = 0
	}

	// Depth assignment for real blocks: the common-ancestor depth of the
	// block's leaf and the accessed leaf, or retention if that bucket has
	// already absorbed Z blocks.
	for i := range s.blocks {
		b := &s.blocks[i]
		real := 1 - b.ctIsDummy()
		depth := uint64(commonAncestorDepth(b.Leaf, accessLeaf, s.height))
		assigned := spareKey
		for l := 0; l <= s.height; l++ {
			atLevel := real & ctEq64(depth, uint64(l))
			full := ctEq64(s.occ[l], uint64(s.bucketSize))
			take := atLevel & (full ^ 1)
			s.occ[l] += uint64(take)
			assigned = ctSelect64(take, uint64(l), assigned)
			assigned = ctSelect64(atLevel&full, retainedKey, assigned)
		}
		s.keys[i] = assigned<<32 | uint64(i)
	}

	// Dummy padding: each level needs Z - occ[l] dummies to fill out its
	// bucket. Dummies take padding assignments in slot order; the slot
	// sizing guarantees enough of them exist.
	for l := range s.need {
		s.need[l] = uint64(s.bucketSize) - s.occ[l]
	}
	for i := range s.blocks {
		b := &s.blocks[i]
		isDummy := b.ctIsDummy()
		assigned := spareKey
		taken := 0
		for l := 0; l <= s.height; l++ {
			want := isDummy & (taken ^ 1) & (ctEq64(s.need[l], 0) ^ 1)
			assigned = ctSelect64(want, uint64(l), assigned)
			s.need[l] -= uint64(want)
			taken |= want
		}
		s.keys[i] = ctSelect64(isDummy, assigned<<32|uint64(i), s.keys[i])
	}

	// After sorting by (assigned depth, slot index) the first Z*(H+1)
	// slots hold exactly the path buckets, root first; retained blocks and
	// spare dummies follow.
	bitonicSortByKeys(s.blocks, s.keys)

	buckets := make([][]Block, s.height+1)
	for d := 0; d <= s.height; d++ {
		bucket := make([]Block, s.bucketSize)
		for slot := 0; slot < s.bucketSize; slot++ {
			src := &s.blocks[d*s.bucketSize+slot]
			bucket[slot] = src.clone()
			src.makeDummy()
		}
		buckets[d] = bucket
	}

	retained := 0
	for i := range s.keys {
		retained += ctEq64(s.keys[i]>>32, retainedKey)
	}
	if retained > s.capacity {
		return nil, errors.WithStack(ErrStashOverflow)
	}
	return buckets, nil
}

// occupancy counts real blocks currently in the stash. Introspection for
// invariant checks and benchmarks; not used on the access path.
func (s *stash) occupancy() int {
	n := 0
	for i := range s.blocks {
		n += 1 - s.blocks[i].ctIsDummy()
	}
	return n
}
