package bounter

import (
	"testing"

	"github.com/piskvorky/bounter/errs"
	"github.com/piskvorky/bounter/ht"
	"github.com/stretchr/testify/require"
)

func TestFactoryNeedCountsFalseIsCardinalityOnly(t *testing.T) {
	c, err := NewCounter(Options{NeedCounts: false})
	require.NoError(t, err)

	require.NoError(t, c.Increment([]byte("a"), 1))
	require.NoError(t, c.Increment([]byte("b"), 1))
	require.Equal(t, uint64(2), c.Cardinality())

	_, err = c.Get([]byte("a"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotImplemented))
}

func TestFactoryNeedIterationBuildsHashTable(t *testing.T) {
	c, err := NewCounter(Options{SizeMB: 1, NeedIteration: true, NeedCounts: true})
	require.NoError(t, err)

	tbl, ok := c.(*ht.Table)
	require.True(t, ok)
	require.NoError(t, tbl.Increment([]byte("k"), 1))
}

func TestFactoryNeedIterationWithLogCountingIsRejected(t *testing.T) {
	_, err := NewCounter(Options{SizeMB: 1, NeedIteration: true, LogCounting: Log8})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestFactoryNoIterationBuildsSketch(t *testing.T) {
	c, err := NewCounter(Options{SizeMB: 1, NeedIteration: false, NeedCounts: true, LogCounting: Log1024})
	require.NoError(t, err)

	require.NoError(t, c.Increment([]byte("k"), 5))
	v, err := c.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
}
