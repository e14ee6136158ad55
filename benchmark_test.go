package oram

import (
	"fmt"
	mathrand "math/rand/v2"
	"testing"
)

// Mirrors the workload of cmd/orambench: a uniform mix of reads and writes
// over the whole address space.

func benchmarkAccess(b *testing.B, target interface {
	Access(op Op, address uint64, newValue []byte) ([]byte, error)
}, numBlocks int, blockSize int) {
	workload := mathrand.New(mathrand.NewPCG(0, 1))
	value := make([]byte, blockSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		address := workload.Uint64N(uint64(numBlocks))
		op := Op(workload.IntN(2))
		if _, err := target.Access(op, address, value); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPathORAMAccess(b *testing.B) {
	for _, n := range []int{64, 256} {
		b.Run(fmt.Sprintf("blocks=%d", n), func(b *testing.B) {
			o, err := New(Config{NumBlocks: n, BlockSize: 64}, NewSeededRNG(0))
			if err != nil {
				b.Fatal(err)
			}
			benchmarkAccess(b, o, n, 64)
		})
	}
}

func BenchmarkLinearORAMAccess(b *testing.B) {
	for _, n := range []int{64, 256} {
		b.Run(fmt.Sprintf("blocks=%d", n), func(b *testing.B) {
			l, err := NewLinear(Config{NumBlocks: n, BlockSize: 64})
			if err != nil {
				b.Fatal(err)
			}
			benchmarkAccess(b, l, n, 64)
		})
	}
}

func BenchmarkBitonicSort(b *testing.B) {
	for _, n := range []int{64, 128, 256} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			blocks := make([]Block, n)
			keys := make([]uint64, n)
			for i := range blocks {
				blocks[i] = newDummyBlock(64)
			}
			workload := mathrand.New(mathrand.NewPCG(2, 3))

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := range keys {
					keys[j] = workload.Uint64()
				}
				bitonicSortByKeys(blocks, keys)
			}
		})
	}
}
