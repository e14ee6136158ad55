// Package oram implements Path ORAM for code running inside a
// memory-encrypting enclave: a logical array backed by untrusted memory
// whose physical access pattern reveals nothing about which addresses are
// touched, whether they are read or written, or what moves. Contents are
// assumed encrypted by the enclave platform; this package hides only the
// trace.
package oram

import (
	"io"

	"github.com/pkg/errors"
)

// ORAM is a Path ORAM instance: a tree of buckets in untrusted storage, an
// oblivious stash, and a position map that is itself realized as a smaller
// ORAM once it outgrows a linear scan. Strictly single-threaded: callers
// sharing an instance across goroutines must serialize at operation
// granularity.
type ORAM struct {
	cfg      Config
	engine   *engine
	recorder *traceRecorder
	zero     []byte
}

// New creates an ORAM over an in-memory bucket array. The random source is
// a required input and is never created implicitly: pass crypto/rand.Reader
// in production, or a NewSeededRNG stream for reproducible runs.
func New(cfg Config, rng io.Reader) (*ORAM, error) {
	return NewWithStorage(cfg, nil, rng)
}

// NewWithStorage creates an ORAM whose outer tree lives in the supplied
// Storage, which must span at least 2*NumLeaves buckets of BucketSize
// blocks. A nil storage falls back to in-memory buckets. Position-map
// trees always stay in memory.
func NewWithStorage(cfg Config, st Storage, rng io.Reader) (*ORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil random source")
	}

	recorder := &traceRecorder{}
	eng, err := newEngine(0, uint64(cfg.NumBlocks), cfg.BlockSize, cfg, st, rng, recorder)
	if err != nil {
		return nil, err
	}
	return &ORAM{
		cfg:      cfg,
		engine:   eng,
		recorder: recorder,
		zero:     make([]byte, cfg.BlockSize),
	}, nil
}

// Access performs one oblivious operation and returns the value the block
// held before it. For OpRead the contents of newValue are ignored and nil
// is fine, but a non-nil newValue must be exactly BlockSize bytes for
// either operation. The physical
// trace is identical for both operations: the tag reaches the stash as a
// conditional-move flag, never as a branch.
func (o *ORAM) Access(op Op, address uint64, newValue []byte) ([]byte, error) {
	// The range check is a constant-time predicate; the branch below
	// reveals only whether the call was well-formed, which is the caller's
	// own bug, not a secret.
	if ctLess64(address, uint64(o.cfg.NumBlocks)) == 0 {
		return nil, errors.WithStack(ErrInvalidAddress)
	}
	if newValue != nil && len(newValue) != o.cfg.BlockSize {
		return nil, errors.WithStack(ErrInvalidDataSize)
	}

	writeFlag := int(op) & 1
	val := newValue
	if val == nil {
		val = o.zero
	}
	apply := func(dst, cur []byte) {
		copy(dst, cur)
		ctCopy(writeFlag, dst, val)
	}
	return o.engine.access(address, apply)
}

// Read returns the value stored at address: all-zero bytes if the address
// has never been written.
func (o *ORAM) Read(address uint64) ([]byte, error) {
	return o.Access(OpRead, address, nil)
}

// Write stores value at address and returns the previous value.
func (o *ORAM) Write(address uint64, value []byte) ([]byte, error) {
	if value == nil {
		return nil, errors.WithStack(ErrInvalidDataSize)
	}
	return o.Access(OpWrite, address, value)
}

// Capacity returns the number of logical blocks.
func (o *ORAM) Capacity() int {
	return o.cfg.NumBlocks
}

// BlockSize returns the configured block size in bytes.
func (o *ORAM) BlockSize() int {
	return o.cfg.BlockSize
}

// Height returns the height of the outer tree.
func (o *ORAM) Height() int {
	return o.engine.height
}

// NumLeaves returns the leaf count of the outer tree.
func (o *ORAM) NumLeaves() uint64 {
	return o.engine.numLeaves
}

// RecursionDepth returns the number of position-map ORAM levels below the
// data tree; 0 means the linear base-case map.
func (o *ORAM) RecursionDepth() int {
	return o.engine.recursionDepth()
}

// StashOccupancy returns the number of real blocks currently held in the
// outer stash. Introspection for benchmarks and tests.
func (o *ORAM) StashOccupancy() int {
	return o.engine.stash.occupancy()
}

// Stats returns the physical access counters of the outer data tree since
// the last reset.
func (o *ORAM) Stats() Stats {
	return o.engine.storage.stats()
}

// LevelStats returns per-tree physical counters: the data tree first, then
// each recursive position-map tree in descending size order.
func (o *ORAM) LevelStats() []Stats {
	return o.engine.levelStats(nil)
}

// ResetStats zeroes the physical access counters of every level.
func (o *ORAM) ResetStats() {
	o.engine.resetStats()
}

// EnableTrace switches physical trace recording on or off, discarding
// anything recorded so far. Benchmark and test instrumentation only.
func (o *ORAM) EnableTrace(on bool) {
	o.recorder.enabled = on
	o.recorder.entries = nil
}

// Trace returns a copy of the recorded physical trace, interleaved across
// all recursion levels in issue order.
func (o *ORAM) Trace() []TraceEntry {
	out := make([]TraceEntry, len(o.recorder.entries))
	copy(out, o.recorder.entries)
	return out
}
