package oram

import (
	"encoding/binary"
	"io"
	randv2 "math/rand/v2"

	"github.com/pkg/errors"
)

// NewSeededRNG returns a deterministic ChaCha8-backed random stream.
// Supplying the same seed reproduces every leaf assignment and therefore
// the full physical trace, which the tests and the benchmark harness rely
// on. Production callers pass crypto/rand.Reader instead; the engine never
// creates a random source on its own.
func NewSeededRNG(seed uint64) io.Reader {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	return randv2.NewChaCha8(key)
}

// randomLeaf draws a uniform leaf tag in [0, numLeaves). Leaf counts are
// powers of two, so masking is exact and every draw consumes exactly 8
// bytes of the stream: one draw per recursion level per logical access.
func randomLeaf(rng io.Reader, numLeaves uint64) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return 0, errors.Wrapf(ErrRandomSource, "reading leaf tag: %v", err)
	}
	return binary.LittleEndian.Uint64(buf[:]) & (numLeaves - 1), nil
}
