package oram

// bitonicSortByKeys sorts blocks in ascending order of keys with a
// non-recursive bitonic network. The comparator schedule is a function of
// the length alone, and every comparator is a constant-time conditional
// swap, so the instruction trace is independent of the key values.
// len(blocks) must equal len(keys) and be a power of two.
func bitonicSortByKeys(blocks []Block, keys []uint64) {
	n := len(blocks)
	if n != len(keys) || n&(n-1) != 0 {
		panic("oram: bitonic sort requires power-of-two parallel arrays")
	}

	for k := 2; k <= n; k *= 2 {
		for j := k / 2; j > 0; j /= 2 {
			for i := 0; i < n; i++ {
				l := i ^ j
				if l <= i {
					continue
				}
				// The direction bit i&k is public schedule state;
				// only the key comparison touches secrets.
				var doSwap int
				if i&k == 0 {
					doSwap = ctLess64(keys[l], keys[i])
				} else {
					doSwap = ctLess64(keys[i], keys[l])
				}
				ctSwap64(doSwap, &keys[i], &keys[l])
				ctSwapBlocks(doSwap, &blocks[i], &blocks[l])
			}
		}
	}
}
