package oram

// DummyAddress marks a block slot as unoccupied. Real addresses are
// confined to [0, NumBlocks), so the sentinel never collides.
const DummyAddress = ^uint64(0)

// Block is the atomic unit moving between the stash and the bucket array:
// a logical address, the leaf tag of the path the block currently lives on,
// and a fixed-size value. Dummy blocks carry DummyAddress, leaf 0 and an
// all-zero value, so bucket bytes stay deterministic regardless of
// contents.
type Block struct {
	Address uint64
	Leaf    uint64
	Value   []byte
}

func newDummyBlock(blockSize int) Block {
	return Block{Address: DummyAddress, Leaf: 0, Value: make([]byte, blockSize)}
}

// ctIsDummy returns 1 when the block is a dummy, without branching.
func (b *Block) ctIsDummy() int {
	return ctEq64(b.Address, DummyAddress)
}

// makeDummy resets the block to dummy contents in place.
func (b *Block) makeDummy() {
	b.Address = DummyAddress
	b.Leaf = 0
	clear(b.Value)
}

// set overwrites the block with src, reusing the value buffer.
func (b *Block) set(src *Block) {
	b.Address = src.Address
	b.Leaf = src.Leaf
	copy(b.Value, src.Value)
}

// clone returns a deep copy of the block.
func (b *Block) clone() Block {
	v := make([]byte, len(b.Value))
	copy(v, b.Value)
	return Block{Address: b.Address, Leaf: b.Leaf, Value: v}
}

// ctSwapBlocks exchanges two blocks, including their values, when bit == 1.
func ctSwapBlocks(bit int, a, b *Block) {
	ctSwap64(bit, &a.Address, &b.Address)
	ctSwap64(bit, &a.Leaf, &b.Leaf)
	ctSwapBytes(bit, a.Value, b.Value)
}
