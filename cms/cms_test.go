package cms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConservativeBasicCounts(t *testing.T) {
	sk, err := NewFromSizeMB(1, Conservative, 0, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, sk.Increment([]byte("foo"), 1))
	}
	require.NoError(t, sk.Increment([]byte("bar"), 1))

	foo, err := sk.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), foo)

	bar, err := sk.Get([]byte("bar"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), bar)

	missing, err := sk.Get([]byte("missing"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), missing)

	require.Equal(t, uint64(4), sk.Total())
	require.Equal(t, uint64(2), sk.Cardinality())
}

func TestLog8WithinBiasBound(t *testing.T) {
	sk, err := NewFromSizeMB(1, Log8, 0, 0)
	require.NoError(t, err)

	const n = 127451
	require.NoError(t, sk.Increment([]byte("x"), n))

	got, err := sk.Get([]byte("x"))
	require.NoError(t, err)

	diff := float64(got) - float64(n)
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqualf(t, diff, 0.7*float64(n), "got %d, want within 70%% of %d", got, n)
}

func TestNegativeDeltaLeavesStateUntouched(t *testing.T) {
	sk, err := New(Conservative, 1024, 4)
	require.NoError(t, err)

	require.NoError(t, sk.Increment([]byte("k"), 5))
	before, _ := sk.Get([]byte("k"))
	beforeTotal := sk.Total()

	err = sk.Increment([]byte("k"), -1)
	require.Error(t, err)

	after, _ := sk.Get([]byte("k"))
	require.Equal(t, before, after)
	require.Equal(t, beforeTotal, sk.Total())
}

func TestStringAndByteKeysCollide(t *testing.T) {
	sk, err := New(Conservative, 1024, 4)
	require.NoError(t, err)

	require.NoError(t, sk.Increment([]byte("foo"), 1))
	a, _ := sk.Get([]byte("foo"))
	b, _ := sk.Get([]byte(string("foo")))
	require.Equal(t, a, b)
}

func TestMergeExactForNonCollidingKeys(t *testing.T) {
	const width, depth = 1 << 17, 8

	a, err := New(Conservative, width, depth)
	require.NoError(t, err)
	b, err := New(Conservative, width, depth)
	require.NoError(t, err)

	require.NoError(t, a.Increment([]byte("apple"), 5))
	require.NoError(t, b.Increment([]byte("apple"), 3))
	require.NoError(t, b.Increment([]byte("banana"), 7))

	require.NoError(t, a.Merge(b))

	apple, _ := a.Get([]byte("apple"))
	banana, _ := a.Get([]byte("banana"))
	require.Equal(t, uint64(8), apple)
	require.Equal(t, uint64(7), banana)
	require.Equal(t, uint64(15), a.Total())
}

func TestMergeRejectsIncompatibleShape(t *testing.T) {
	a, err := New(Conservative, 1024, 4)
	require.NoError(t, err)
	b, err := New(Conservative, 2048, 4)
	require.NoError(t, err)

	err = a.Merge(b)
	require.Error(t, err)
}

func TestCardinalityOnlyCounterRejectsGet(t *testing.T) {
	sk := NewCardinalityOnly()
	require.NoError(t, sk.Increment([]byte("a"), 1))
	require.NoError(t, sk.Increment([]byte("b"), 1))

	_, err := sk.Get([]byte("a"))
	require.Error(t, err)
	require.Equal(t, uint64(2), sk.Cardinality())
}

func TestSerializeRoundTrip(t *testing.T) {
	sk, err := New(Log1024, 1024, 6)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		require.NoError(t, sk.Increment([]byte{byte(i), byte(i >> 8)}, 1))
	}

	data, err := sk.MarshalBinary()
	require.NoError(t, err)

	var restored Sketch
	require.NoError(t, restored.UnmarshalBinary(data))

	for i := 0; i < 500; i++ {
		want, _ := sk.Get([]byte{byte(i), byte(i >> 8)})
		got, _ := restored.Get([]byte{byte(i), byte(i >> 8)})
		require.Equal(t, want, got)
	}
	require.Equal(t, sk.Total(), restored.Total())
	require.Equal(t, sk.Cardinality(), restored.Cardinality())
	require.InDelta(t, sk.Quality(), restored.Quality(), 1e-9)
}

func TestWidthMustBePowerOfTwo(t *testing.T) {
	_, err := New(Conservative, 1000, 4)
	require.Error(t, err)
}

func TestBudgetTooSmall(t *testing.T) {
	_, err := NewFromSizeMB(0, Conservative, 0, 0)
	require.Error(t, err)
}

func TestUpdateFromIterableAndMapping(t *testing.T) {
	sk, err := New(Conservative, 1024, 4)
	require.NoError(t, err)

	require.NoError(t, sk.Update([]string{"a", "a", "b"}))
	require.NoError(t, sk.Update(map[string]uint64{"a": 2, "c": 1}))

	a, _ := sk.Get([]byte("a"))
	b, _ := sk.Get([]byte("b"))
	c, _ := sk.Get([]byte("c"))
	require.Equal(t, uint64(4), a)
	require.Equal(t, uint64(1), b)
	require.Equal(t, uint64(1), c)
}

func TestUpdateFromPeerMerges(t *testing.T) {
	a, err := New(Conservative, 1024, 4)
	require.NoError(t, err)
	b, err := New(Conservative, 1024, 4)
	require.NoError(t, err)
	require.NoError(t, b.Increment([]byte("z"), 9))

	require.NoError(t, a.Update(b))

	z, _ := a.Get([]byte("z"))
	require.Equal(t, uint64(9), z)
}

func TestLogEncodeDecodeRoundTripsLinearRegion(t *testing.T) {
	for n := uint64(0); n <= 16; n++ {
		enc := logEncode(2, n)
		require.Equal(t, n, enc)
		require.Equal(t, n, logDecode(2, enc))
	}
}

func TestLogEncodeDecodeMonotonicAboveLinearRegion(t *testing.T) {
	prev := uint64(0)
	for _, n := range []uint64{100, 1000, 10000, 100000, 1000000} {
		enc := logEncode(9, n)
		require.GreaterOrEqual(t, enc, prev)
		decoded := logDecode(9, enc)
		diff := float64(decoded) - float64(n)
		if diff < 0 {
			diff = -diff
		}
		require.Less(t, diff/float64(n), 0.1)
		prev = enc
	}
}
