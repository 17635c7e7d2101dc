package utils

import (
	"math/bits"
	"sync/atomic"
)

// Initially inspired from https://github.com/kelindar/bitmap Thank you for using the MIT license!
// Reworked as a fixed size dirty-bit set: sized once, cleared between rounds, never reallocated.

type Bitmap []uint64

// Allocates a bitmap that can hold bits [0, size).
func NewBitmap(size uint32) Bitmap {
	return make(Bitmap, (uint64(size)+63)>>6)
}

// Sets the bit x. Safe for concurrent use; many threads mark neighbouring vertices in the same word.
func (bitmap Bitmap) Set(x uint32) {
	word := &bitmap[x>>6]
	mask := uint64(1) << (x % 64)
	if atomic.LoadUint64(word)&mask == 0 {
		atomic.OrUint64(word, mask)
	}
}

// Reads the bit x. Safe alongside Set; a bit set concurrently may or may not be seen.
func (bitmap Bitmap) Get(x uint32) bool {
	idx := int(x >> 6)
	if idx >= len(bitmap) {
		return false
	}
	return atomic.LoadUint64(&bitmap[idx])&(1<<(x%64)) != 0
}

// Zeros all bits in the bitmap. Not safe alongside Set.
func (bitmap Bitmap) Zeroes() {
	clear(bitmap)
}

// Zeros bits in [lo, hi).
func (bitmap Bitmap) ClearRange(lo, hi uint32) {
	if lo >= hi {
		return
	}
	first, last := int(lo>>6), int((hi-1)>>6)
	if first == last {
		bitmap[first] &^= rangeMask(lo%64, (hi-1)%64)
		return
	}
	bitmap[first] &^= rangeMask(lo%64, 63)
	clear(bitmap[first+1 : last])
	bitmap[last] &^= rangeMask(0, (hi-1)%64)
}

// Bits [from, to] inclusive.
func rangeMask(from, to uint32) uint64 {
	return (^uint64(0) >> (63 - to)) &^ ((uint64(1) << from) - 1)
}

func (bitmap Bitmap) Count() (c int) {
	for _, w := range bitmap {
		c += bits.OnesCount64(w)
	}
	return c
}
