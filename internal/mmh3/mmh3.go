// Package mmh3 is the shared hashing substrate for the cms and ht
// engines: deterministic 64/128-bit hashing of byte strings via
// MurmurHash3-x64-128 with a fixed seed.
package mmh3

import "github.com/twmb/murmur3"

// Fixed seed pair. Any constant works as long as it never changes
// between a write and a later read of a serialized engine.
const (
	seed1 uint64 = 0x9747b28c9747b28c
	seed2 uint64 = 0xfeedfacefeedface
)

// Hash128 returns the two 64-bit halves of the MurmurHash3-x64-128 digest
// of key. Unicode keys must be UTF-8 encoded by the caller before being
// passed in; []byte("foo") and "foo" always hash identically since both
// reduce to the same byte slice.
func Hash128(key []byte) (lo, hi uint64) {
	return murmur3.SeedSum128(seed1, seed2, key)
}

// RowIndex computes the CMS bucket index for hash halves (lo, hi) at the
// given row, per spec: (lo XOR (hi * row)) AND (width-1). width must be a
// power of two.
func RowIndex(lo, hi uint64, row uint32, width uint32) uint32 {
	return uint32(lo^(hi*uint64(row))) & (width - 1)
}
