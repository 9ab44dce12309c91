package hll

import (
	"testing"

	"github.com/piskvorky/bounter/internal/mmh3"
	"github.com/stretchr/testify/require"
)

func TestCardinalityWithinOnePercent(t *testing.T) {
	h := New()
	const n = 100000
	for i := 0; i < n; i++ {
		lo, _ := mmh3.Hash128([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		h.Add(lo)
	}
	got := float64(h.Cardinality())
	diff := got - n
	if diff < 0 {
		diff = -diff
	}
	require.Lessf(t, diff/n, 0.01, "cardinality %d not within 1%% of %d", h.Cardinality(), n)
}

func TestCardinalityEmpty(t *testing.T) {
	h := New()
	require.Equal(t, uint64(0), h.Cardinality())
}

func TestMergeIsRegisterwiseMax(t *testing.T) {
	a, b := New(), New()
	for i := 0; i < 5000; i++ {
		lo, _ := mmh3.Hash128([]byte{byte(i), byte(i >> 8)})
		a.Add(lo)
	}
	for i := 3000; i < 9000; i++ {
		lo, _ := mmh3.Hash128([]byte{byte(i), byte(i >> 8)})
		b.Add(lo)
	}

	union := New()
	for i := 0; i < 9000; i++ {
		lo, _ := mmh3.Hash128([]byte{byte(i), byte(i >> 8)})
		union.Add(lo)
	}

	require.NoError(t, a.Merge(b))
	require.Equal(t, union.Cardinality(), a.Cardinality())
}

func TestMarshalRoundTrip(t *testing.T) {
	h := New()
	for i := 0; i < 2000; i++ {
		lo, _ := mmh3.Hash128([]byte{byte(i), byte(i >> 8)})
		h.Add(lo)
	}

	data, err := h.MarshalBinary()
	require.NoError(t, err)

	h2 := New()
	require.NoError(t, h2.UnmarshalBinary(data))
	require.Equal(t, h.Cardinality(), h2.Cardinality())
	require.Equal(t, h.registers, h2.registers)
}
