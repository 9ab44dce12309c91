// Package ht implements the bounded, open-addressed hash table: a
// key->count counter that preserves exact counts and supports iteration,
// evicting low-frequency keys under memory pressure.
package ht

import (
	"bytes"
	"math"
	"sort"

	"github.com/piskvorky/bounter/errs"
	"github.com/piskvorky/bounter/hll"
	"github.com/piskvorky/bounter/internal/mmh3"
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotLive
)

// bytesPerSlot approximates the in-memory footprint of one slot (hash +
// key pointer/len + count), used to derive N from a size_mb budget.
// Calibrated against original_source/bounter's HashTable(size_mb) sizing
// table (HashTable(1).buckets() == 2**15, ..., HashTable(512).buckets() == 2**24).
const bytesPerSlot = 32

// minBuckets is the smallest table this package will construct; below
// this neither the high-water mark nor the half-capacity prune target
// leave room for useful occupancy.
const minBuckets = 4

// Table is an open-addressed array of N slots, each empty, a tombstone,
// or a live {hash, key, count} entry. Not safe for concurrent use.
type Table struct {
	n    uint32
	mask uint32

	hashes []uint64
	keys   [][]byte
	counts []uint64
	state  []slotState

	live       uint32
	tombstones uint32
	total      uint64
	dist       *hll.HLL
	pruned     bool
	useUnicode bool
}

// New constructs a Table with the given bucket count, floored to the
// nearest power of two (a caller asking for 17 buckets gets 16). Returns
// BudgetTooSmall if that floor is below the minimum usable size.
func New(buckets uint32, useUnicode bool) (*Table, error) {
	n := largestPow2LE(buckets)
	if n < minBuckets {
		return nil, errs.New(errs.BudgetTooSmall, "ht.New", "buckets too small to build a usable table")
	}
	return &Table{
		n:          n,
		mask:       n - 1,
		hashes:     make([]uint64, n),
		keys:       make([][]byte, n),
		counts:     make([]uint64, n),
		state:      make([]slotState, n),
		dist:       hll.New(),
		useUnicode: useUnicode,
	}, nil
}

// NewFromSizeMB derives the bucket count from a megabyte budget: the
// largest power of two fitting in size_mb*2^20 bytes at bytesPerSlot
// bytes per slot.
func NewFromSizeMB(sizeMB uint64, useUnicode bool) (*Table, error) {
	n := largestPow2LE(sizeMB * (1 << 20) / bytesPerSlot)
	if n > uint64(math.MaxUint32) {
		n = uint64(math.MaxUint32)
	}
	return New(uint32(n), useUnicode)
}

func largestPow2LE(x uint64) uint32 {
	if x == 0 {
		return 0
	}
	p := uint64(1)
	for p<<1 <= x && p<<1 <= uint64(math.MaxUint32) {
		p <<= 1
	}
	return uint32(p)
}

// Buckets returns the physical slot count N.
func (t *Table) Buckets() uint32 { return t.n }

// Len returns the number of live (non-empty, non-tombstone) slots.
func (t *Table) Len() int { return int(t.live) }

// Total returns the exact sum of deltas applied via Increment/Set,
// adjusted by explicit Delete, but never decremented by an automatic
// prune pass (see DESIGN.md's resolution of the total-vs-pruning
// ambiguity in spec §4.4/§8).
func (t *Table) Total() uint64 { return t.total }

// Cardinality returns the HLL-estimated number of distinct keys ever
// seen, independent of current live occupancy or pruning.
func (t *Table) Cardinality() uint64 { return t.dist.Cardinality() }

// Quality returns live_slots / N.
func (t *Table) Quality() float64 { return float64(t.live) / float64(t.n) }

// Pruned reports whether a prune pass has ever run. Once true it never
// clears (Design Notes §9c): thereafter Get may return 0 for a key that
// was inserted and later evicted.
func (t *Table) Pruned() bool { return t.pruned }

// probe walks the linear probe sequence for (h1, key) starting at
// h1&mask. If the key is live in the table, found is true and slot is its
// index. Otherwise found is false and insertAt names where it should be
// inserted (a reused tombstone takes priority over a fresh empty slot).
func (t *Table) probe(h1 uint64, key []byte) (slot uint32, found bool, insertAt uint32) {
	start := uint32(h1) & t.mask
	const noSlot = ^uint32(0)
	insertAt = noSlot
	for i := uint32(0); i < t.n; i++ {
		idx := (start + i) & t.mask
		switch t.state[idx] {
		case slotEmpty:
			if insertAt == noSlot {
				insertAt = idx
			}
			return 0, false, insertAt
		case slotTombstone:
			if insertAt == noSlot {
				insertAt = idx
			}
		case slotLive:
			if t.hashes[idx] == h1 && bytes.Equal(t.keys[idx], key) {
				return idx, true, noSlot
			}
		}
	}
	return 0, false, insertAt
}

// highWaterExceeded reports whether inserting one more key would push
// live+tombstones past the 3N/4 prune threshold.
func (t *Table) highWaterExceeded() bool {
	return uint64(t.live)+uint64(t.tombstones)+1 > uint64(t.n)*3/4
}

// Increment applies delta to key's count, inserting it with count=delta
// if absent. delta must be non-negative. Inserting a new key first prunes
// the table if doing so would exceed the high-water mark.
func (t *Table) Increment(key []byte, delta int64) error {
	if delta < 0 {
		return errs.New(errs.InvalidArgument, "ht.Increment", "delta must be non-negative")
	}
	d := uint64(delta)
	h1, _ := mmh3.Hash128(key)

	slot, found, insertAt := t.probe(h1, key)
	if found {
		c := t.counts[slot]
		if c > math.MaxUint64-d {
			return errs.New(errs.Overflow, "ht.Increment", "counter would overflow")
		}
		if t.total > math.MaxUint64-d {
			return errs.New(errs.Overflow, "ht.Increment", "total would overflow")
		}
		t.counts[slot] = c + d
		t.total += d
		t.dist.Add(h1)
		return nil
	}

	if t.total > math.MaxUint64-d {
		return errs.New(errs.Overflow, "ht.Increment", "total would overflow")
	}

	if t.highWaterExceeded() {
		t.prune()
		_, _, insertAt = t.probe(h1, key)
	}

	t.insertAt(insertAt, h1, key, d)
	t.total += d
	t.dist.Add(h1)
	return nil
}

func (t *Table) insertAt(idx uint32, h1 uint64, key []byte, count uint64) {
	wasTombstone := t.state[idx] == slotTombstone
	t.state[idx] = slotLive
	t.hashes[idx] = h1
	t.keys[idx] = append([]byte(nil), key...)
	t.counts[idx] = count
	t.live++
	if wasTombstone {
		t.tombstones--
	}
}

// Set assigns key's count to v directly, inserting it if absent. total is
// adjusted by the exact difference (v - previous count).
func (t *Table) Set(key []byte, v uint64) error {
	h1, _ := mmh3.Hash128(key)
	slot, found, insertAt := t.probe(h1, key)
	if found {
		old := t.counts[slot]
		switch {
		case v >= old:
			diff := v - old
			if t.total > math.MaxUint64-diff {
				return errs.New(errs.Overflow, "ht.Set", "total would overflow")
			}
			t.total += diff
		default:
			t.total -= old - v
		}
		t.counts[slot] = v
		t.dist.Add(h1)
		return nil
	}

	if t.highWaterExceeded() {
		t.prune()
		_, _, insertAt = t.probe(h1, key)
	}
	t.insertAt(insertAt, h1, key, v)
	t.total += v
	t.dist.Add(h1)
	return nil
}

// Get returns key's exact count, or 0 if absent (or if it was evicted by
// a prior prune pass — see Pruned). The error return always comes back
// nil; it exists only so *Table satisfies the same Counter.Get shape as
// *cms.Sketch, whose Get can fail on a cardinality-only counter.
func (t *Table) Get(key []byte) (uint64, error) {
	h1, _ := mmh3.Hash128(key)
	slot, found, _ := t.probe(h1, key)
	if !found {
		return 0, nil
	}
	return t.counts[slot], nil
}

// Contains reports whether key currently occupies a live slot.
func (t *Table) Contains(key []byte) bool {
	h1, _ := mmh3.Hash128(key)
	_, found, _ := t.probe(h1, key)
	return found
}

// Delete removes key, if present, leaving a tombstone and subtracting
// its count from total. Deleting an absent key is a no-op.
func (t *Table) Delete(key []byte) {
	h1, _ := mmh3.Hash128(key)
	slot, found, _ := t.probe(h1, key)
	if !found {
		return
	}
	t.total -= t.counts[slot]
	t.state[slot] = slotTombstone
	t.keys[slot] = nil
	t.counts[slot] = 0
	t.live--
	t.tombstones++
}

// prune computes the smallest count threshold that frees at least half
// the table, evicts every live slot at or below it (ties included, even
// if this over-evicts), and rehashes survivors into a fresh slot array,
// reclaiming all tombstones. It never runs recursively: N/2 <= 3N/4
// guarantees the rebuilt table has headroom. total is not adjusted — see
// Table.Total's doc comment.
func (t *Table) prune() {
	type entry struct {
		hash  uint64
		key   []byte
		count uint64
	}
	entries := make([]entry, 0, t.live)
	for i := uint32(0); i < t.n; i++ {
		if t.state[i] == slotLive {
			entries = append(entries, entry{t.hashes[i], t.keys[i], t.counts[i]})
		}
	}

	targetEvict := int64(len(entries)) - int64(t.n/2)
	var threshold uint64
	evictNone := targetEvict <= 0
	if !evictNone {
		sorted := make([]uint64, len(entries))
		for i, e := range entries {
			sorted[i] = e.count
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		threshold = sorted[targetEvict-1]
	}

	survivors := entries[:0]
	for _, e := range entries {
		if !evictNone && e.count <= threshold {
			continue
		}
		survivors = append(survivors, e)
	}

	t.hashes = make([]uint64, t.n)
	t.keys = make([][]byte, t.n)
	t.counts = make([]uint64, t.n)
	t.state = make([]slotState, t.n)
	t.live = 0
	t.tombstones = 0

	for _, e := range survivors {
		_, _, insertAt := t.probe(e.hash, e.key)
		t.insertAt(insertAt, e.hash, e.key, e.count)
	}
	t.pruned = true
}

// Merge adds every live entry of peer into t. peer must have the same N;
// peer is read but never mutated.
func (t *Table) Merge(peer *Table) error {
	if peer == nil || peer.n != t.n {
		return errs.New(errs.IncompatibleMerge, "ht.Merge", "peers differ in bucket count")
	}
	for i := uint32(0); i < peer.n; i++ {
		if peer.state[i] != slotLive {
			continue
		}
		if err := t.Increment(peer.keys[i], int64(peer.counts[i])); err != nil {
			if peer.counts[i] > math.MaxInt64 {
				return errs.New(errs.Overflow, "ht.Merge", "peer count exceeds representable delta")
			}
			return err
		}
	}
	return nil
}

// Update applies a batch of increments from an iterable of keys, a
// key->delta mapping, or a peer Table (triggering Merge).
func (t *Table) Update(src any) error {
	switch v := src.(type) {
	case string:
		for _, r := range v {
			if err := t.Increment([]byte(string(r)), 1); err != nil {
				return err
			}
		}
	case []string:
		for _, k := range v {
			if err := t.Increment([]byte(k), 1); err != nil {
				return err
			}
		}
	case [][]byte:
		for _, k := range v {
			if err := t.Increment(k, 1); err != nil {
				return err
			}
		}
	case map[string]uint64:
		for k, d := range v {
			if err := t.Increment([]byte(k), int64(d)); err != nil {
				return err
			}
		}
	case map[string]int64:
		for k, d := range v {
			if err := t.Increment([]byte(k), d); err != nil {
				return err
			}
		}
	case *Table:
		return t.Merge(v)
	default:
		return errs.New(errs.TypeMismatch, "ht.Update", "unsupported update source type")
	}
	return nil
}
