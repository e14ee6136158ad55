package oram

import "crypto/subtle"

// Constant-time helpers over 64-bit words and byte payloads. Everything the
// engine learns from the tree or the stash flows through these: no caller
// may branch on, or index by, a value derived from a block's address, leaf
// tag, or payload. Loops in callers iterate over public bounds only.

// ctEq64 returns 1 if a == b and 0 otherwise, without branching.
func ctEq64(a, b uint64) int {
	x := a ^ b
	return int(1 ^ ((x | -x) >> 63))
}

// ctLess64 returns 1 if a < b and 0 otherwise, without branching.
// Standard borrow propagation: the sign bit of the subtraction borrow.
func ctLess64(a, b uint64) int {
	return int((((^a) & b) | (((^a) | b) & (a - b))) >> 63)
}

// ctSelect64 returns a if bit == 1 and b if bit == 0.
func ctSelect64(bit int, a, b uint64) uint64 {
	m := -uint64(bit)
	return (a & m) | (b &^ m)
}

// ctAssign64 sets *dst to v when bit == 1 and leaves it alone otherwise.
func ctAssign64(bit int, dst *uint64, v uint64) {
	*dst = ctSelect64(bit, v, *dst)
}

// ctCopy copies src into dst when bit == 1. Slices must have equal length.
func ctCopy(bit int, dst, src []byte) {
	subtle.ConstantTimeCopy(bit, dst, src)
}

// ctSwap64 exchanges *a and *b when bit == 1.
func ctSwap64(bit int, a, b *uint64) {
	m := -uint64(bit)
	d := (*a ^ *b) & m
	*a ^= d
	*b ^= d
}

// ctSwapBytes exchanges x and y elementwise when bit == 1.
// Slices must have equal length.
func ctSwapBytes(bit int, x, y []byte) {
	m := -byte(bit)
	for i := range x {
		d := (x[i] ^ y[i]) & m
		x[i] ^= d
		y[i] ^= d
	}
}
