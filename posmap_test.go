package oram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, cfg Config) Config {
	t.Helper()
	cfg, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func TestNewPositionMapPicksRealization(t *testing.T) {
	tests := []struct {
		name      string
		numBlocks uint64
		threshold int
		recursive bool
	}{
		{"small is linear", 16, 64, false},
		{"at threshold is linear", 64, 64, false},
		{"above threshold recurses", 65, 64, true},
		{"tiny threshold recurses", 32, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, Config{
				NumBlocks:          int(tt.numBlocks),
				BlockSize:          8,
				RecursionThreshold: tt.threshold,
			})
			_, numLeaves := treeGeometry(tt.numBlocks)
			pm, err := newPositionMap(0, tt.numBlocks, numLeaves, cfg, NewSeededRNG(1), &traceRecorder{})
			require.NoError(t, err)

			_, recursive := pm.(*recursivePosMap)
			assert.Equal(t, tt.recursive, recursive)
		})
	}
}

func TestLinearPosMapRemap(t *testing.T) {
	pm, err := newLinearPosMap(16, 8, NewSeededRNG(3))
	require.NoError(t, err)

	// Initial tags are random but in range.
	for i := range pm.tags {
		require.Less(t, pm.tags[i], uint64(8))
	}

	// A remap returns the committed value on the next call.
	first, err := pm.lookupAndRemap(5, 7)
	require.NoError(t, err)
	require.Less(t, first, uint64(8))

	second, err := pm.lookupAndRemap(5, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), second)

	third, err := pm.lookupAndRemap(5, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third)
}

func TestLinearPosMapIndependentEntries(t *testing.T) {
	pm, err := newLinearPosMap(8, 4, NewSeededRNG(4))
	require.NoError(t, err)

	for a := uint64(0); a < 8; a++ {
		_, err := pm.lookupAndRemap(a, a%4)
		require.NoError(t, err)
	}
	for a := uint64(0); a < 8; a++ {
		old, err := pm.lookupAndRemap(a, 0)
		require.NoError(t, err)
		assert.Equal(t, a%4, old, "address %d", a)
	}
}

func TestRecursivePosMapRoundTrip(t *testing.T) {
	// Small blocks and a tiny threshold force two recursion levels:
	// 64 addresses -> 32 packed blocks -> 16 packed blocks -> linear base.
	cfg := testConfig(t, Config{
		NumBlocks:          64,
		BlockSize:          8,
		PositionBlockSize:  16, // K = 2
		RecursionThreshold: 16,
	})
	const outerLeaves = 64

	pm, err := newRecursivePosMap(1, 64, outerLeaves, cfg, NewSeededRNG(5), &traceRecorder{})
	require.NoError(t, err)
	require.Equal(t, 2, pm.recursionDepth())

	// Initial tags are uniform draws; remapped values must read back
	// exactly, per address, across interleaved updates.
	want := make(map[uint64]uint64)
	for a := uint64(0); a < 64; a++ {
		old, err := pm.lookupAndRemap(a, a%outerLeaves)
		require.NoError(t, err)
		require.Less(t, old, uint64(outerLeaves), "initial tag in range")
		want[a] = a % outerLeaves
	}
	for round := 0; round < 3; round++ {
		for a := uint64(0); a < 64; a += 3 {
			fresh := (a + uint64(round)*7) % outerLeaves
			old, err := pm.lookupAndRemap(a, fresh)
			require.NoError(t, err)
			require.Equal(t, want[a], old, "round %d address %d", round, a)
			want[a] = fresh
		}
	}
}

func TestRecursivePosMapLevelStats(t *testing.T) {
	cfg := testConfig(t, Config{
		NumBlocks:          64,
		BlockSize:          8,
		PositionBlockSize:  16,
		RecursionThreshold: 16,
	})
	pm, err := newRecursivePosMap(1, 64, 64, cfg, NewSeededRNG(6), &traceRecorder{})
	require.NoError(t, err)

	pm.resetStats()
	_, err = pm.lookupAndRemap(0, 0)
	require.NoError(t, err)

	stats := pm.levelStats(nil)
	require.Len(t, stats, 2, "one tree per recursive level")
	for i, s := range stats {
		h := pm.inner.height
		if i == 1 {
			h = pm.inner.posMap.(*recursivePosMap).inner.height
		}
		assert.Equal(t, uint64(h+1), s.PhysicalReads, "level %d", i)
		assert.Equal(t, uint64(h+1), s.PhysicalWrites, "level %d", i)
	}
}
