package oram

import "github.com/pkg/errors"

// Storage is the physical bucket array: dumb byte storage supporting only
// whole-bucket reads and writes by index. Every call touches every byte of
// the bucket; no partial-bucket operation exists. Implementations may back
// the array with memory, files, or remote services.
type Storage interface {
	// ReadBucket returns a copy of all blocks in the bucket at index.
	ReadBucket(index uint64) ([]Block, error)

	// WriteBucket replaces all blocks in the bucket at index.
	WriteBucket(index uint64, bucket []Block) error

	// NumBuckets returns the length of the bucket array, including the
	// unused index-0 sentinel.
	NumBuckets() uint64

	// BucketSize returns the number of block slots per bucket.
	BucketSize() int

	// BlockSize returns the byte size of each block value.
	BlockSize() int
}

// MemStorage keeps the bucket array in process memory, initialized to all
// dummies.
type MemStorage struct {
	buckets    [][]Block
	bucketSize int
	blockSize  int
}

var _ Storage = (*MemStorage)(nil)

// NewMemStorage builds an in-memory bucket array of numBuckets buckets of
// bucketSize blocks each, filled with dummies.
func NewMemStorage(numBuckets uint64, bucketSize, blockSize int) *MemStorage {
	buckets := make([][]Block, numBuckets)
	for i := range buckets {
		bucket := make([]Block, bucketSize)
		for j := range bucket {
			bucket[j] = newDummyBlock(blockSize)
		}
		buckets[i] = bucket
	}
	return &MemStorage{
		buckets:    buckets,
		bucketSize: bucketSize,
		blockSize:  blockSize,
	}
}

// ReadBucket returns a copy of the bucket at index. An out-of-range index
// is a programming error in the engine, not a recoverable condition.
func (s *MemStorage) ReadBucket(index uint64) ([]Block, error) {
	if index >= uint64(len(s.buckets)) {
		return nil, errors.Errorf("bucket index %d out of range [0, %d)", index, len(s.buckets))
	}
	src := s.buckets[index]
	bucket := make([]Block, len(src))
	for i := range src {
		bucket[i] = src[i].clone()
	}
	return bucket, nil
}

// WriteBucket replaces the bucket at index with a copy of bucket.
func (s *MemStorage) WriteBucket(index uint64, bucket []Block) error {
	if index >= uint64(len(s.buckets)) {
		return errors.Errorf("bucket index %d out of range [0, %d)", index, len(s.buckets))
	}
	if len(bucket) != s.bucketSize {
		return errors.Wrap(ErrInvalidConfig, "bucket slot count mismatch")
	}
	dst := s.buckets[index]
	for i := range bucket {
		if len(bucket[i].Value) != s.blockSize {
			return errors.Wrap(ErrInvalidDataSize, "bucket write")
		}
		dst[i].set(&bucket[i])
	}
	return nil
}

// NumBuckets returns the length of the bucket array.
func (s *MemStorage) NumBuckets() uint64 {
	return uint64(len(s.buckets))
}

// BucketSize returns slots per bucket.
func (s *MemStorage) BucketSize() int {
	return s.bucketSize
}

// BlockSize returns bytes per block value.
func (s *MemStorage) BlockSize() int {
	return s.blockSize
}

// Stats reports the physical accesses issued against one bucket array
// since the last reset.
type Stats struct {
	PhysicalReads  uint64
	PhysicalWrites uint64
}

// TraceEntry records one physical bucket access: the recursion level the
// access was issued from (0 = data tree), the bucket index, and the
// direction.
type TraceEntry struct {
	Level  int
	Bucket uint64
	Write  bool
}

// traceRecorder collects the interleaved physical trace of every recursion
// level. Disabled by default; benchmarking and obliviousness tests switch
// it on.
type traceRecorder struct {
	enabled bool
	entries []TraceEntry
}

func (r *traceRecorder) record(level int, bucket uint64, write bool) {
	if r == nil || !r.enabled {
		return
	}
	r.entries = append(r.entries, TraceEntry{Level: level, Bucket: bucket, Write: write})
}

// countingStorage decorates a Storage with physical access counters and
// optional trace recording. The engine only ever talks to storage through
// this wrapper, so the instrumentation sees every bucket touch.
type countingStorage struct {
	inner    Storage
	level    int
	recorder *traceRecorder

	reads  uint64
	writes uint64
}

func newCountingStorage(inner Storage, level int, recorder *traceRecorder) *countingStorage {
	return &countingStorage{inner: inner, level: level, recorder: recorder}
}

func (s *countingStorage) ReadBucket(index uint64) ([]Block, error) {
	s.reads++
	s.recorder.record(s.level, index, false)
	return s.inner.ReadBucket(index)
}

func (s *countingStorage) WriteBucket(index uint64, bucket []Block) error {
	s.writes++
	s.recorder.record(s.level, index, true)
	return s.inner.WriteBucket(index, bucket)
}

func (s *countingStorage) NumBuckets() uint64 { return s.inner.NumBuckets() }
func (s *countingStorage) BucketSize() int    { return s.inner.BucketSize() }
func (s *countingStorage) BlockSize() int     { return s.inner.BlockSize() }

func (s *countingStorage) stats() Stats {
	return Stats{PhysicalReads: s.reads, PhysicalWrites: s.writes}
}

func (s *countingStorage) resetStats() {
	s.reads = 0
	s.writes = 0
}
