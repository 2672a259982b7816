// internal/dsp/bits.go
package dsp

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns log2(n) for a power of two n.
func Log2(n int) int {
	return bits.TrailingZeros(uint(n))
}

// BitReverse returns the bit-reversed counterpart of index within a
// transform of the given size. Indices are limited to 8 bits, matching
// MaxFFTSize.
func BitReverse(index, size int) int {
	return int(bits.Reverse8(uint8(index)) >> (8 - Log2(size)))
}

// BitReversePermute reorders x (power-of-two length, at most MaxFFTSize)
// into bit-reversed index order. Each pair is swapped once.
func BitReversePermute(x []Complex) {
	n := len(x)
	for i := 0; i < n; i++ {
		if r := BitReverse(i, n); r > i {
			x[i], x[r] = x[r], x[i]
		}
	}
}
