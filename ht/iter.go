package ht

import "iter"

// Keys returns a snapshot slice of every live key, in slot order (no
// particular ordering guarantee beyond that).
func (t *Table) Keys() [][]byte {
	out := make([][]byte, 0, t.live)
	for i := uint32(0); i < t.n; i++ {
		if t.state[i] == slotLive {
			out = append(out, append([]byte(nil), t.keys[i]...))
		}
	}
	return out
}

// Values returns a snapshot slice of every live count, aligned with Keys
// only if no mutation happens between the two calls.
func (t *Table) Values() []uint64 {
	out := make([]uint64, 0, t.live)
	for i := uint32(0); i < t.n; i++ {
		if t.state[i] == slotLive {
			out = append(out, t.counts[i])
		}
	}
	return out
}

// Item is a single live key/count pair returned by Items and IterItems.
type Item struct {
	Key   []byte
	Count uint64
}

// Items returns a snapshot slice of every live key/count pair.
func (t *Table) Items() []Item {
	out := make([]Item, 0, t.live)
	for i := uint32(0); i < t.n; i++ {
		if t.state[i] == slotLive {
			out = append(out, Item{append([]byte(nil), t.keys[i]...), t.counts[i]})
		}
	}
	return out
}

// IterKeys yields every live key without materializing a slice. The
// table must not be mutated while the sequence is being ranged over.
func (t *Table) IterKeys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for i := uint32(0); i < t.n; i++ {
			if t.state[i] == slotLive && !yield(t.keys[i]) {
				return
			}
		}
	}
}

// IterValues yields every live count without materializing a slice.
func (t *Table) IterValues() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i := uint32(0); i < t.n; i++ {
			if t.state[i] == slotLive && !yield(t.counts[i]) {
				return
			}
		}
	}
}

// IterItems yields every live key/count pair without materializing a
// slice.
func (t *Table) IterItems() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for i := uint32(0); i < t.n; i++ {
			if t.state[i] == slotLive && !yield(Item{t.keys[i], t.counts[i]}) {
				return
			}
		}
	}
}
