// Package bounter is a memory-bounded approximate frequency counter: a
// single factory in front of two interchangeable engines, a bounded hash
// table for exact counts with eviction and a Count-Min(-Log) Sketch for a
// fixed memory footprint, both backed by a shared HyperLogLog cardinality
// estimator.
package bounter

import (
	"github.com/piskvorky/bounter/cms"
	"github.com/piskvorky/bounter/errs"
	"github.com/piskvorky/bounter/ht"
)

// LogCounting selects the CMS cell variant a non-iterating counter uses.
type LogCounting int

const (
	// LogNone selects the conservative-update 32-bit-cell variant.
	LogNone LogCounting = iota
	// Log8 selects the 8-bit logarithmic-cell variant.
	Log8
	// Log1024 selects the 16-bit logarithmic-cell variant.
	Log1024
)

func (l LogCounting) variant() cms.Variant {
	switch l {
	case Log8:
		return cms.Log8
	case Log1024:
		return cms.Log1024
	default:
		return cms.Conservative
	}
}

// Options configures NewCounter. SizeMB is required unless NeedCounts is
// false. The zero value leaves NeedIteration and NeedCounts false, which
// builds a cardinality-only counter; DefaultOptions returns a value with
// both set to true.
type Options struct {
	SizeMB        uint64
	NeedIteration bool
	NeedCounts    bool
	LogCounting   LogCounting
	UseUnicode    bool
}

// DefaultOptions returns the factory's default rule set: iterable, exact
// counts, no log-counting.
func DefaultOptions() Options {
	return Options{NeedIteration: true, NeedCounts: true, UseUnicode: true}
}

// Counter is the minimal surface both engines satisfy.
type Counter interface {
	Increment(key []byte, delta int64) error
	Get(key []byte) (uint64, error)
	Contains(key []byte) bool
	Total() uint64
	Cardinality() uint64
	Quality() float64
}

// Iterable is the superset interface satisfied by engines that retain
// keys (currently only *ht.Table).
type Iterable interface {
	Counter
	Len() int
	Keys() [][]byte
	Values() []uint64
	Items() []ht.Item
}

// NewCounter builds the engine named by opts, per the factory rules:
// need_counts=false always yields a cardinality-only CMS regardless of
// other fields; need_iteration=true with log_counting set is a
// contradiction (an HT has no log-counting cells); need_iteration=true
// builds an HT sized by SizeMB; need_iteration=false builds a CMS in the
// chosen variant.
func NewCounter(opts Options) (Counter, error) {
	if !opts.NeedCounts {
		return cms.NewCardinalityOnly(), nil
	}

	if opts.NeedIteration {
		if opts.LogCounting != LogNone {
			return nil, errs.New(errs.InvalidArgument, "bounter.NewCounter", "need_iteration with log_counting set is contradictory: the hash table has no log-counting cells")
		}
		return ht.NewFromSizeMB(opts.SizeMB, opts.UseUnicode)
	}

	return cms.NewFromSizeMB(opts.SizeMB, opts.LogCounting.variant(), 0, 0)
}
