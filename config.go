package oram

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig   = errors.New("invalid ORAM configuration")
	ErrInvalidAddress  = errors.New("address out of range")
	ErrInvalidDataSize = errors.New("data size doesn't match block size")
	ErrStashOverflow   = errors.New("stash overflow")
	ErrPoisoned        = errors.New("instance refuses access after a fatal error")
	ErrRandomSource    = errors.New("random source failure")
)

// Op selects between the two access kinds. The physical trace of an access
// is identical for both: the tag participates only in conditional moves
// inside the stash, so a caller may pass a secret-chosen tag.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

const (
	// DefaultBucketSize is the Z parameter from the Path ORAM literature;
	// 4 is the conservative setting.
	DefaultBucketSize = 4

	// DefaultStashCapacity bounds the number of real blocks the stash may
	// retain between accesses. This is a security parameter: overflow
	// probability is governed by Z and this bound.
	DefaultStashCapacity = 20

	// DefaultPositionBlockSize is the byte size of position-map blocks,
	// packing DefaultPositionBlockSize/8 leaf tags each.
	DefaultPositionBlockSize = 64

	// DefaultRecursionThreshold is the block count at or below which the
	// position map is a linearly scanned array instead of a smaller ORAM.
	DefaultRecursionThreshold = 64
)

// Config holds the parameters of an ORAM instance.
type Config struct {
	NumBlocks int // Total number of logical blocks (valid addresses: 0 to NumBlocks-1)
	BlockSize int // Size of each block value in bytes

	BucketSize    int // Blocks per bucket (Z); defaults to DefaultBucketSize
	StashCapacity int // Maximum retained stash blocks (S); defaults to DefaultStashCapacity

	// PositionBlockSize is the block size of the recursive position-map
	// ORAMs. It must pack a power of two of 8-byte leaf tags. Defaults to
	// DefaultPositionBlockSize.
	PositionBlockSize int

	// RecursionThreshold is the block count at or below which a
	// position-map level falls back to the linear base case. Defaults to
	// DefaultRecursionThreshold.
	RecursionThreshold int

	// Logger receives construction-time debug output. Defaults to a nop
	// logger. Nothing is logged on the access path.
	Logger *zap.Logger
}

// Validate checks the configuration and applies defaults.
// Returns a copy of the config with defaults filled in.
func (c Config) Validate() (Config, error) {
	if c.NumBlocks < 2 || c.BlockSize <= 0 {
		return c, errors.WithStack(ErrInvalidConfig)
	}
	if c.BucketSize < 0 || c.StashCapacity < 0 || c.PositionBlockSize < 0 || c.RecursionThreshold < 0 {
		return c, errors.WithStack(ErrInvalidConfig)
	}
	if c.BucketSize == 0 {
		c.BucketSize = DefaultBucketSize
	}
	if c.StashCapacity == 0 {
		c.StashCapacity = DefaultStashCapacity
	}
	if c.PositionBlockSize == 0 {
		c.PositionBlockSize = DefaultPositionBlockSize
	}
	if c.RecursionThreshold == 0 {
		c.RecursionThreshold = DefaultRecursionThreshold
	}
	if c.RecursionThreshold < 2 {
		return c, errors.Wrap(ErrInvalidConfig, "recursion threshold too small")
	}
	k := c.PositionBlockSize / 8
	if c.PositionBlockSize%8 != 0 || k < 2 || k&(k-1) != 0 {
		return c, errors.Wrap(ErrInvalidConfig, "position block size must pack a power of two of 8-byte tags")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c, nil
}

// tagsPerPositionBlock returns K, the number of leaf tags packed into each
// position-map block.
func (c Config) tagsPerPositionBlock() uint64 {
	return uint64(c.PositionBlockSize / 8)
}
