package permission

import "math/bits"

// MaxPermissions is the number of distinct permission names a [Catalog] can
// intern.
const MaxPermissions = 512

const maskWords = MaxPermissions / 64

// Mask is a fixed-width permission bitset. The zero value grants nothing.
type Mask [maskWords]uint64

// Has reports whether bit is set. Out-of-range bits are never set.
func (m *Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxPermissions {
		return false
	}
	return m[bit/64]&(1<<(uint(bit)%64)) != 0
}

// Set marks bit as granted.
func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	m[bit/64] |= 1 << (uint(bit) % 64)
}

// Clear removes bit.
func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	m[bit/64] &^= 1 << (uint(bit) % 64)
}

// Bits returns the set bit positions in ascending order.
func (m *Mask) Bits() []int {
	out := make([]int, 0, 8)
	for w := 0; w < maskWords; w++ {
		word := m[w]
		for word != 0 {
			i := bits.TrailingZeros64(word)
			out = append(out, w*64+i)
			word &^= 1 << uint(i)
		}
	}
	return out
}
