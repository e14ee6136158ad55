package oram

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

// positionMap maps every logical address to the leaf tag of the path its
// block currently lives on. lookupAndRemap is atomic: the old tag is read
// out and the fresh one committed in a single pass, because the engine
// needs the old tag to know which path to walk while the fresh one must
// already be in place for the next access.
//
// Two realizations share the contract: a linearly scanned array for small
// capacities, and a recursive Path ORAM packing many tags per block. The
// choice is made once at construction; no access-path code inspects it.
type positionMap interface {
	lookupAndRemap(address, freshLeaf uint64) (uint64, error)

	levelStats(dst []Stats) []Stats
	resetStats()
	recursionDepth() int
}

// newPositionMap picks the realization for a tree with numBlocks addresses
// and numLeaves leaves. Recursion stops as soon as the capacity fits under
// the threshold (or the packed block count would degenerate).
func newPositionMap(level int, numBlocks, numLeaves uint64, cfg Config, rng io.Reader, recorder *traceRecorder) (positionMap, error) {
	k := cfg.tagsPerPositionBlock()
	if numBlocks <= uint64(cfg.RecursionThreshold) || (numBlocks+k-1)/k < 2 {
		return newLinearPosMap(numBlocks, numLeaves, rng)
	}
	return newRecursivePosMap(level+1, numBlocks, numLeaves, cfg, rng, recorder)
}

// linearPosMap holds one leaf tag per address in trusted memory and scans
// every entry on every call with conditional moves only, so the lookup
// reveals nothing about the address even to an adversary watching enclave
// memory.
type linearPosMap struct {
	tags []uint64
}

func newLinearPosMap(numBlocks, numLeaves uint64, rng io.Reader) (*linearPosMap, error) {
	tags := make([]uint64, numBlocks)
	for i := range tags {
		tag, err := randomLeaf(rng, numLeaves)
		if err != nil {
			return nil, err
		}
		tags[i] = tag
	}
	return &linearPosMap{tags: tags}, nil
}

func (m *linearPosMap) lookupAndRemap(address, freshLeaf uint64) (uint64, error) {
	var old uint64
	for i := range m.tags {
		match := ctEq64(uint64(i), address)
		old = ctSelect64(match, m.tags[i], old)
		ctAssign64(match, &m.tags[i], freshLeaf)
	}
	return old, nil
}

func (m *linearPosMap) levelStats(dst []Stats) []Stats { return dst }
func (m *linearPosMap) resetStats()                    {}
func (m *linearPosMap) recursionDepth() int            { return 0 }

// recursivePosMap packs K leaf tags into each block of a smaller Path ORAM
// and recurses until the linear base case fits. One lookup costs one inner
// ORAM access: the returned block carries the old tag out, and the written
// block is identical except for slot address mod K, replaced through
// oblivious lane selection (the slot offset is as secret as the address it
// came from).
type recursivePosMap struct {
	inner        *engine
	tagsPerBlock uint64
	addrShift    uint
}

func newRecursivePosMap(level int, numBlocks, numLeaves uint64, cfg Config, rng io.Reader, recorder *traceRecorder) (*recursivePosMap, error) {
	k := cfg.tagsPerPositionBlock()
	innerBlocks := (numBlocks + k - 1) / k

	inner, err := newEngine(level, innerBlocks, cfg.PositionBlockSize, cfg, nil, rng, recorder)
	if err != nil {
		return nil, err
	}
	m := &recursivePosMap{
		inner:        inner,
		tagsPerBlock: k,
		addrShift:    uint(bits.TrailingZeros64(k)),
	}

	// Upfront initialization: every address gets a uniform random tag, so
	// the first access to an address is indistinguishable from any other.
	// Tags are committed through ordinary inner accesses; the trace this
	// produces is a function of the geometry and the RNG alone.
	buf := make([]byte, cfg.PositionBlockSize)
	for q := uint64(0); q < innerBlocks; q++ {
		for j := uint64(0); j < k; j++ {
			tag, err := randomLeaf(rng, numLeaves)
			if err != nil {
				return nil, err
			}
			binary.LittleEndian.PutUint64(buf[j*8:j*8+8], tag)
		}
		if _, err := inner.access(q, overwriteApply(buf)); err != nil {
			return nil, errors.Wrap(err, "init position map")
		}
	}
	return m, nil
}

// overwriteApply writes val over the block payload unconditionally.
func overwriteApply(val []byte) applyFunc {
	return func(dst, cur []byte) {
		copy(dst, val)
	}
}

func (m *recursivePosMap) lookupAndRemap(address, freshLeaf uint64) (uint64, error) {
	q := address >> m.addrShift
	r := address & (m.tagsPerBlock - 1)

	patch := func(dst, cur []byte) {
		copy(dst, cur)
		for j := uint64(0); j < m.tagsPerBlock; j++ {
			lane := dst[j*8 : j*8+8]
			v := binary.LittleEndian.Uint64(lane)
			v = ctSelect64(ctEq64(j, r), freshLeaf, v)
			binary.LittleEndian.PutUint64(lane, v)
		}
	}
	oldBlock, err := m.inner.access(q, patch)
	if err != nil {
		return 0, err
	}

	var old uint64
	for j := uint64(0); j < m.tagsPerBlock; j++ {
		v := binary.LittleEndian.Uint64(oldBlock[j*8 : j*8+8])
		old = ctSelect64(ctEq64(j, r), v, old)
	}
	return old, nil
}

func (m *recursivePosMap) levelStats(dst []Stats) []Stats {
	return m.inner.levelStats(dst)
}

func (m *recursivePosMap) resetStats() {
	m.inner.resetStats()
}

func (m *recursivePosMap) recursionDepth() int {
	return 1 + m.inner.recursionDepth()
}
