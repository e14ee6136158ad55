package oram

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// engine runs the Path ORAM protocol for one recursion level: the data
// tree at level 0, and each position-map tree below it. One logical access
// walks Remap -> PathRead -> StashMerge -> ApplyOp -> Evict -> PathWrite;
// the number and indices of physical bucket accesses depend only on the
// tree geometry and the RNG output. A fatal error (stash overflow, random
// source failure, storage fault) poisons the engine: partial accesses
// would break the one-block-per-address invariant, so the only safe
// continuation is to refuse everything that follows.
type engine struct {
	level      int
	numBlocks  uint64
	blockSize  int
	bucketSize int
	height     int
	numLeaves  uint64

	storage *countingStorage
	stash   *stash
	posMap  positionMap
	rng     io.Reader

	path     [][]Block // per-access read buffer, reused
	poisoned bool
}

func newEngine(level int, numBlocks uint64, blockSize int, cfg Config, st Storage, rng io.Reader, recorder *traceRecorder) (*engine, error) {
	height, numLeaves := treeGeometry(numBlocks)

	if st == nil {
		st = NewMemStorage(2*numLeaves, cfg.BucketSize, blockSize)
	} else if st.NumBuckets() < 2*numLeaves || st.BucketSize() != cfg.BucketSize || st.BlockSize() != blockSize {
		return nil, errors.Wrap(ErrInvalidConfig, "storage does not match tree geometry")
	}

	e := &engine{
		level:      level,
		numBlocks:  numBlocks,
		blockSize:  blockSize,
		bucketSize: cfg.BucketSize,
		height:     height,
		numLeaves:  numLeaves,
		storage:    newCountingStorage(st, level, recorder),
		stash:      newStash(height, cfg.BucketSize, blockSize, cfg.StashCapacity),
		rng:        rng,
		path:       make([][]Block, height+1),
	}

	cfg.Logger.Debug("path oram level built",
		zap.Int("level", level),
		zap.Uint64("blocks", numBlocks),
		zap.Int("blockSize", blockSize),
		zap.Int("height", height),
		zap.Uint64("leaves", numLeaves))

	posMap, err := newPositionMap(level, numBlocks, numLeaves, cfg, rng, recorder)
	if err != nil {
		return nil, err
	}
	e.posMap = posMap
	return e, nil
}

// access performs one oblivious read-modify-write of the block at address.
// It returns the payload the block held before apply ran. The address must
// already be validated by the caller.
func (e *engine) access(address uint64, apply applyFunc) ([]byte, error) {
	if e.poisoned {
		return nil, errors.WithStack(ErrPoisoned)
	}

	// Remap: the block moves to a fresh uniform leaf, drawn before the old
	// one is consulted so the map update commits in the same pass.
	newLeaf, err := randomLeaf(e.rng, e.numLeaves)
	if err != nil {
		e.poisoned = true
		return nil, err
	}
	oldLeaf, err := e.posMap.lookupAndRemap(address, newLeaf)
	if err != nil {
		e.poisoned = true
		return nil, err
	}

	// PathRead + StashMerge: every bucket from the root to oldLeaf moves
	// into the stash.
	e.stash.compact()
	for d := 0; d <= e.height; d++ {
		node := nodeOnPath(oldLeaf, d, e.height, e.numLeaves)
		bucket, err := e.storage.ReadBucket(node)
		if err != nil {
			e.poisoned = true
			return nil, errors.Wrap(err, "read path")
		}
		e.path[d] = bucket
	}
	e.stash.loadPath(e.path)

	// ApplyOp: one oblivious sweep reads the old payload out, stamps the
	// fresh leaf, and applies the update.
	old := e.stash.access(address, newLeaf, apply)

	// Evict + PathWrite: repack the stash into the same path.
	buckets, err := e.stash.evictToPath(oldLeaf)
	if err != nil {
		e.poisoned = true
		return nil, err
	}
	for d := 0; d <= e.height; d++ {
		node := nodeOnPath(oldLeaf, d, e.height, e.numLeaves)
		if err := e.storage.WriteBucket(node, buckets[d]); err != nil {
			e.poisoned = true
			return nil, errors.Wrap(err, "write path")
		}
	}
	return old, nil
}

// levelStats appends this level's physical counters and those of every
// level below it, outermost first.
func (e *engine) levelStats(dst []Stats) []Stats {
	dst = append(dst, e.storage.stats())
	return e.posMap.levelStats(dst)
}

func (e *engine) resetStats() {
	e.storage.resetStats()
	e.posMap.resetStats()
}

// recursionDepth counts the position-map ORAM levels below this engine.
func (e *engine) recursionDepth() int {
	return e.posMap.recursionDepth()
}
