package heap

import (
	"math/bits"
	"sync/atomic"
)

// Bitmap is a fixed-size bit set whose bits can be set and tested from many
// goroutines at once. It uses 1 bit per object.
type Bitmap struct {
	words []atomic.Uint64
	size  int
}

// NewBitmap creates a cleared bitmap holding size bits.
func NewBitmap(size int) *Bitmap {
	if size < 0 {
		size = 0
	}
	return &Bitmap{words: make([]atomic.Uint64, (size+63)/64), size: size}
}

// Size returns the number of bits.
func (b *Bitmap) Size() int {
	return b.size
}

// Set sets bit i and reports whether this call changed it.
func (b *Bitmap) Set(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	mask := uint64(1) << (i % 64)
	w := &b.words[i/64]
	for {
		old := w.Load()
		if old&mask != 0 {
			return false
		}
		if w.CompareAndSwap(old, old|mask) {
			return true
		}
	}
}

// Test reports whether bit i is set. Out-of-range bits read as clear.
func (b *Bitmap) Test(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	return b.words[i/64].Load()&(uint64(1)<<(i%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for i := range b.words {
		n += bits.OnesCount64(b.words[i].Load())
	}
	return n
}

// ClearAll clears every bit. Not safe concurrently with Set.
func (b *Bitmap) ClearAll() {
	for i := range b.words {
		b.words[i].Store(0)
	}
}
