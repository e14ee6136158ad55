package oram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeGeometry(t *testing.T) {
	tests := []struct {
		n          uint64
		wantHeight int
		wantLeaves uint64
	}{
		{2, 1, 2},
		{3, 2, 4},
		{4, 2, 4},
		{64, 6, 64},
		{65, 7, 128},
		{256, 8, 256},
		{1000, 10, 1024},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			h, l := treeGeometry(tt.n)
			assert.Equal(t, tt.wantHeight, h)
			assert.Equal(t, tt.wantLeaves, l)
		})
	}
}

func TestPathNodes(t *testing.T) {
	const height = 6
	const numLeaves = 64

	for leaf := uint64(0); leaf < numLeaves; leaf++ {
		nodes := pathNodes(leaf, height, numLeaves)
		require.Len(t, nodes, height+1)
		require.Equal(t, uint64(1), nodes[0], "path starts at the root")
		require.Equal(t, leafNode(leaf, numLeaves), nodes[height], "path ends at the leaf")
		for d := 0; d < height; d++ {
			require.Equal(t, nodes[d], nodes[d+1]/2, "each node is the parent of the next")
		}
	}
}

func TestNodeDepth(t *testing.T) {
	assert.Equal(t, 0, nodeDepth(1))
	assert.Equal(t, 1, nodeDepth(2))
	assert.Equal(t, 1, nodeDepth(3))
	assert.Equal(t, 2, nodeDepth(4))
	assert.Equal(t, 6, nodeDepth(64))
	assert.Equal(t, 6, nodeDepth(127))
}

func TestCanReside(t *testing.T) {
	const height = 4
	const numLeaves = 16

	for leaf := uint64(0); leaf < numLeaves; leaf++ {
		onPath := make(map[uint64]bool)
		for _, n := range pathNodes(leaf, height, numLeaves) {
			onPath[n] = true
		}
		for node := uint64(1); node < 2*numLeaves; node++ {
			require.Equal(t, onPath[node], canReside(leaf, node, height, numLeaves),
				"leaf %d node %d", leaf, node)
		}
	}
}

func TestLeafRange(t *testing.T) {
	const height = 4
	const numLeaves = 16

	lo, hi := leafRange(1, height, numLeaves)
	assert.Equal(t, uint64(0), lo)
	assert.Equal(t, uint64(numLeaves), hi, "the root covers every leaf")

	for node := uint64(1); node < 2*numLeaves; node++ {
		lo, hi := leafRange(node, height, numLeaves)
		for leaf := uint64(0); leaf < numLeaves; leaf++ {
			inRange := leaf >= lo && leaf < hi
			require.Equal(t, canReside(leaf, node, height, numLeaves), inRange,
				"node %d leaf %d", node, leaf)
		}
	}
}

func TestCommonAncestorDepth(t *testing.T) {
	const height = 4
	const numLeaves = 16

	for a := uint64(0); a < numLeaves; a++ {
		for b := uint64(0); b < numLeaves; b++ {
			pa := pathNodes(a, height, numLeaves)
			pb := pathNodes(b, height, numLeaves)
			want := 0
			for d := 0; d <= height; d++ {
				if pa[d] == pb[d] {
					want = d
				}
			}
			require.Equal(t, want, commonAncestorDepth(a, b, height), "leaves %d %d", a, b)
		}
	}
}
