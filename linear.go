package oram

import (
	"github.com/pkg/errors"
)

// LinearORAM hides the access pattern the blunt way: every operation reads
// and writes every cell of the array, touching each exactly once. Each
// access therefore issues NumBlocks physical reads and NumBlocks physical
// writes. For very small arrays this beats walking a tree, and it is the
// baseline the Path ORAM engine is benchmarked against.
type LinearORAM struct {
	numBlocks uint64
	blockSize int
	storage   *countingStorage
	recorder  *traceRecorder
	zero      []byte
}

// NewLinear creates a linear-scan ORAM. The whole configuration goes
// through Validate, but only NumBlocks and BlockSize shape the array; the
// scan needs no randomness.
func NewLinear(cfg Config) (*LinearORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	recorder := &traceRecorder{}
	st := NewMemStorage(uint64(cfg.NumBlocks), 1, cfg.BlockSize)
	return &LinearORAM{
		numBlocks: uint64(cfg.NumBlocks),
		blockSize: cfg.BlockSize,
		storage:   newCountingStorage(st, 0, recorder),
		recorder:  recorder,
		zero:      make([]byte, cfg.BlockSize),
	}, nil
}

// Access performs one oblivious operation and returns the previous value.
// The scan visits every cell regardless of the target: the match and the
// operation tag participate only in conditional moves.
func (l *LinearORAM) Access(op Op, address uint64, newValue []byte) ([]byte, error) {
	if ctLess64(address, l.numBlocks) == 0 {
		return nil, errors.WithStack(ErrInvalidAddress)
	}
	if newValue != nil && len(newValue) != l.blockSize {
		return nil, errors.WithStack(ErrInvalidDataSize)
	}

	writeFlag := int(op) & 1
	val := newValue
	if val == nil {
		val = l.zero
	}

	old := make([]byte, l.blockSize)
	scratch := make([]byte, l.blockSize)
	for i := uint64(0); i < l.numBlocks; i++ {
		bucket, err := l.storage.ReadBucket(i)
		if err != nil {
			return nil, errors.Wrap(err, "linear scan read")
		}
		cell := &bucket[0]
		match := ctEq64(i, address)
		ctCopy(match, old, cell.Value)
		copy(scratch, cell.Value)
		ctCopy(writeFlag, scratch, val)
		ctCopy(match, cell.Value, scratch)
		if err := l.storage.WriteBucket(i, bucket); err != nil {
			return nil, errors.Wrap(err, "linear scan write")
		}
	}
	return old, nil
}

// Read returns the value stored at address.
func (l *LinearORAM) Read(address uint64) ([]byte, error) {
	return l.Access(OpRead, address, nil)
}

// Write stores value at address and returns the previous value.
func (l *LinearORAM) Write(address uint64, value []byte) ([]byte, error) {
	if value == nil {
		return nil, errors.WithStack(ErrInvalidDataSize)
	}
	return l.Access(OpWrite, address, value)
}

// Capacity returns the number of logical blocks.
func (l *LinearORAM) Capacity() int {
	return int(l.numBlocks)
}

// BlockSize returns the configured block size in bytes.
func (l *LinearORAM) BlockSize() int {
	return l.blockSize
}

// Stats returns the physical access counters since the last reset.
func (l *LinearORAM) Stats() Stats {
	return l.storage.stats()
}

// ResetStats zeroes the physical access counters.
func (l *LinearORAM) ResetStats() {
	l.storage.resetStats()
}

// EnableTrace switches physical trace recording on or off, discarding
// anything recorded so far.
func (l *LinearORAM) EnableTrace(on bool) {
	l.recorder.enabled = on
	l.recorder.entries = nil
}

// Trace returns a copy of the recorded physical trace.
func (l *LinearORAM) Trace() []TraceEntry {
	out := make([]TraceEntry, len(l.recorder.entries))
	copy(out, l.recorder.entries)
	return out
}
