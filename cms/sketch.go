// Package cms implements the Count-Min Sketch family: a depth x width
// counter matrix storing only a fixed-size probabilistic table (no keys
// retained), in four variants (conservative, log8, log1024, logcons1024).
package cms

import (
	"math"

	"github.com/dgryski/go-pcgr"
	"github.com/piskvorky/bounter/errs"
	"github.com/piskvorky/bounter/hll"
	"github.com/piskvorky/bounter/internal/mmh3"
)

// Sketch is a Count-Min Sketch with a fixed variant, width and depth. Not
// safe for concurrent use — callers must externally synchronize.
type Sketch struct {
	variant Variant
	width   uint32
	depth   uint32
	shift   uint

	cellsU32 []uint32 // row-major depth x width, Conservative only
	cellsU16 []uint16 // row-major depth x width, Log1024 / LogCons1024
	cellsU8  []uint8  // row-major depth x width, Log8 only

	total uint64
	dist  *hll.HLL
	rng   pcgr.Rand

	cardinalityOnly bool
	topk            *topK

	// idxScratch is reused across Increment/Get calls to avoid a per-call
	// allocation on the hot path.
	idxScratch []uint32
}

// Option configures a Sketch at construction time.
type Option func(*Sketch)

// WithTopK enables a bounded top-k companion map alongside the sketch,
// refreshed from decoded estimates on every Increment, mirroring the
// teacher's updateTopK. Disabled by default; enabling it does not change
// the sketch's serialized form (top-k state is never persisted).
func WithTopK(k uint32) Option {
	return func(s *Sketch) {
		if k > 0 {
			s.topk = newTopK(k)
		}
	}
}

// WithSeed pins the PRNG seed used by log variants' probabilistic
// increment, for reproducible tests. Without this option the seed is
// derived deterministically from width/depth/variant, matching the
// teacher's fixed-seed utils.go.
func WithSeed(state, inc uint64) Option {
	return func(s *Sketch) {
		s.rng = pcgr.Rand{State: state, Inc: inc}
	}
}

// New constructs a Sketch with explicit width and depth. width must be a
// power of two and depth must be >= 1.
func New(variant Variant, width, depth uint32, opts ...Option) (*Sketch, error) {
	if !isPow2(width) {
		return nil, errs.New(errs.InvalidArgument, "cms.New", "width must be a power of two")
	}
	if depth == 0 {
		return nil, errs.New(errs.BudgetTooSmall, "cms.New", "depth must be at least 1")
	}
	if _, ok := variantFromTag(byte(variant)); !ok {
		return nil, errs.New(errs.InvalidArgument, "cms.New", "unknown variant")
	}

	s := &Sketch{
		variant: variant,
		width:   width,
		depth:   depth,
		shift:   variant.shift(),
		dist:    hll.New(),
		rng:     pcgr.Rand{State: uint64(width)<<32 | uint64(depth), Inc: uint64(variant) + 1},
	}

	size := uint64(width) * uint64(depth)
	switch variant {
	case Conservative:
		s.cellsU32 = make([]uint32, size)
	case Log8:
		s.cellsU8 = make([]uint8, size)
	case Log1024, LogCons1024:
		s.cellsU16 = make([]uint16, size)
	}

	s.idxScratch = make([]uint32, depth)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromSizeMB derives width/depth from a megabyte budget per spec §4.2.
// Pass width=0 and/or depth=0 to have that dimension derived; passing
// both nonzero makes the budget advisory only (ignored).
func NewFromSizeMB(sizeMB uint64, variant Variant, width, depth uint32, opts ...Option) (*Sketch, error) {
	if _, ok := variantFromTag(byte(variant)); !ok {
		return nil, errs.New(errs.InvalidArgument, "cms.NewFromSizeMB", "unknown variant")
	}
	w, d, err := deriveDimensions(sizeMB*1<<20, variant.CellBytes(), width, depth)
	if err != nil {
		return nil, err
	}
	return New(variant, w, d, opts...)
}

// NewCardinalityOnly returns a 1x1-cell sketch used purely as a
// cardinality estimator: Get always returns NotImplemented. This backs
// the factory's need_counts=false mode.
func NewCardinalityOnly() *Sketch {
	s, _ := New(Conservative, 1, 1)
	s.cardinalityOnly = true
	return s
}

// Variant returns the sketch's counting discipline.
func (s *Sketch) Variant() Variant { return s.variant }

// Width returns the number of columns.
func (s *Sketch) Width() uint32 { return s.width }

// Depth returns the number of rows.
func (s *Sketch) Depth() uint32 { return s.depth }

// CellBytes returns the per-cell storage width in bytes.
func (s *Sketch) CellBytes() int { return s.variant.CellBytes() }

// Size returns depth*width*cell_bytes, the byte footprint of the matrix.
func (s *Sketch) Size() uint64 {
	return uint64(s.width) * uint64(s.depth) * uint64(s.variant.CellBytes())
}

// Total returns the exact sum of all deltas ever applied via Increment.
func (s *Sketch) Total() uint64 { return s.total }

// Cardinality returns the HLL-estimated number of distinct keys.
func (s *Sketch) Cardinality() uint64 { return s.dist.Cardinality() }

// Quality returns cardinality/width. Values >= 1 indicate collision bias
// is starting to affect estimates; values >= 5 indicate heavy bias.
func (s *Sketch) Quality() float64 {
	return float64(s.dist.Cardinality()) / float64(s.width)
}

func (s *Sketch) rowIndices(lo, hi uint64) []uint32 {
	for row := uint32(0); row < s.depth; row++ {
		s.idxScratch[row] = row*s.width + mmh3.RowIndex(lo, hi, row, s.width)
	}
	return s.idxScratch
}

// Increment applies delta to key's estimated count. delta must be
// non-negative; a negative delta fails with InvalidArgument and leaves
// the sketch untouched.
func (s *Sketch) Increment(key []byte, delta int64) error {
	if delta < 0 {
		return errs.New(errs.InvalidArgument, "cms.Increment", "delta must be non-negative")
	}
	d := uint64(delta)
	if s.total > math.MaxUint64-d {
		return errs.New(errs.Overflow, "cms.Increment", "total would overflow")
	}

	lo, hi := mmh3.Hash128(key)
	offsets := s.rowIndices(lo, hi)

	switch s.variant {
	case Conservative:
		if err := s.incrementConservative(offsets, d); err != nil {
			return err
		}
	case Log8, Log1024:
		s.incrementLogIndependent(offsets, d)
	case LogCons1024:
		s.incrementLogConservative(offsets, d)
	}

	s.total += d
	s.dist.Add(lo)
	if s.topk != nil {
		s.topk.observe(key, s.decodeMin(offsets))
	}
	return nil
}

// incrementConservative implements the canonical conservative-update
// rule from spec §4.3: let m = min(cells); cells equal to m become m+d;
// cells greater than m become max(cell, m+d).
func (s *Sketch) incrementConservative(offsets []uint32, d uint64) error {
	min := uint64(math.MaxUint64)
	for _, off := range offsets {
		v := uint64(s.cellsU32[off])
		if v < min {
			min = v
		}
	}
	if d > math.MaxUint32 || min > math.MaxUint32-d {
		return errs.New(errs.Overflow, "cms.Increment", "cell would overflow")
	}
	newMin := min + d
	for _, off := range offsets {
		v := uint64(s.cellsU32[off])
		if v == min {
			s.cellsU32[off] = uint32(newMin)
		} else if v < newMin {
			s.cellsU32[off] = uint32(newMin)
		}
		// v > newMin already satisfies max(cell, m+d): unchanged.
	}
	return nil
}

// incrementLogIndependent applies d unit probabilistic increments
// independently to each of the depth cells (log8 / log1024).
func (s *Sketch) incrementLogIndependent(offsets []uint32, d uint64) {
	base := logBase(s.shift)
	for i := uint64(0); i < d; i++ {
		for _, off := range offsets {
			v := s.cellGet(off)
			if nv, ok := s.logStep(v, base); ok {
				s.cellSet(off, nv)
			}
		}
	}
}

// incrementLogConservative applies d unit increments jointly: each unit
// computes m = min(cells), flips a single coin against m's mask, and on a
// win raises every cell equal to m by one (logcons1024).
func (s *Sketch) incrementLogConservative(offsets []uint32, d uint64) {
	base := logBase(s.shift)
	for i := uint64(0); i < d; i++ {
		min := uint64(math.MaxUint64)
		for _, off := range offsets {
			if v := s.cellGet(off); v < min {
				min = v
			}
		}
		if nv, ok := s.logStep(min, base); ok {
			for _, off := range offsets {
				if s.cellGet(off) == min {
					s.cellSet(off, nv)
				}
			}
		}
	}
}

// logStep decides whether cell value v should advance to v+1, per spec
// §4.3's probabilistic increment: deterministic below 2*base, then a coin
// flip with probability 2^-(v/base - 1) above it. Returns (newValue, true)
// if the cell should be updated.
func (s *Sketch) logStep(v, base uint64) (uint64, bool) {
	maxVal := s.maxCellValue()
	if v >= maxVal {
		return 0, false
	}
	if v < 2*base {
		return v + 1, true
	}
	mask := (uint64(1) << (v/base - 1)) - 1
	r := s.rng64()
	if r&mask != 0 {
		return 0, false
	}
	return v + 1, true
}

func (s *Sketch) maxCellValue() uint64 {
	switch s.variant {
	case Log8:
		return math.MaxUint8
	default:
		return math.MaxUint16
	}
}

// rng64 draws a uniform 64-bit value from the sketch's PRNG, composing two
// 32-bit draws from go-pcgr (which natively yields uint32).
func (s *Sketch) rng64() uint64 {
	hi := uint64(s.rng.Next())
	lo := uint64(s.rng.Next())
	return hi<<32 | lo
}

func (s *Sketch) cellGet(off uint32) uint64 {
	switch s.variant {
	case Log8:
		return uint64(s.cellsU8[off])
	default:
		return uint64(s.cellsU16[off])
	}
}

func (s *Sketch) cellSet(off uint32, v uint64) {
	switch s.variant {
	case Log8:
		s.cellsU8[off] = uint8(v)
	default:
		s.cellsU16[off] = uint16(v)
	}
}

// decodeMin returns the decoded estimate for the row offsets already
// computed for a key (min over rows, then log-decoded for log variants).
func (s *Sketch) decodeMin(offsets []uint32) uint64 {
	min := uint64(math.MaxUint64)
	switch s.variant {
	case Conservative:
		for _, off := range offsets {
			if v := uint64(s.cellsU32[off]); v < min {
				min = v
			}
		}
		return min
	default:
		for _, off := range offsets {
			if v := s.cellGet(off); v < min {
				min = v
			}
		}
		return logDecode(s.shift, min)
	}
}

// Get returns the estimated count for key, decoded through the active
// variant's codec. Returns NotImplemented on a cardinality-only sketch.
func (s *Sketch) Get(key []byte) (uint64, error) {
	if s.cardinalityOnly {
		return 0, errs.New(errs.NotImplemented, "cms.Get", "get is not supported by a cardinality-only counter")
	}
	lo, hi := mmh3.Hash128(key)
	offsets := s.rowIndices(lo, hi)
	return s.decodeMin(offsets), nil
}

// Contains reports whether key has a nonzero estimated count. On a
// cardinality-only sketch it always returns false.
func (s *Sketch) Contains(key []byte) bool {
	v, err := s.Get(key)
	return err == nil && v > 0
}

// TopK returns the current bounded top-k map if WithTopK was supplied at
// construction, or nil otherwise.
func (s *Sketch) TopK() map[string]uint64 {
	if s.topk == nil {
		return nil
	}
	return s.topk.snapshot()
}

// Merge combines other into s. other must share s's variant, width and
// depth; it is read but never mutated.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil || other.variant != s.variant || other.width != s.width || other.depth != s.depth {
		return errs.New(errs.IncompatibleMerge, "cms.Merge", "peers differ in variant or shape")
	}
	if s.total > math.MaxUint64-other.total {
		return errs.New(errs.Overflow, "cms.Merge", "combined total would overflow")
	}

	switch s.variant {
	case Conservative:
		for i := range s.cellsU32 {
			sum := uint64(s.cellsU32[i]) + uint64(other.cellsU32[i])
			if sum > math.MaxUint32 {
				sum = math.MaxUint32
			}
			s.cellsU32[i] = uint32(sum)
		}
	case Log8:
		for i := range s.cellsU8 {
			if other.cellsU8[i] > s.cellsU8[i] {
				s.cellsU8[i] = other.cellsU8[i]
			}
		}
	case Log1024, LogCons1024:
		for i := range s.cellsU16 {
			if other.cellsU16[i] > s.cellsU16[i] {
				s.cellsU16[i] = other.cellsU16[i]
			}
		}
	}

	s.total += other.total
	return s.dist.Merge(other.dist)
}

// Update applies a batch of increments from an iterable of keys, a
// key->delta mapping, or a peer Sketch (triggering Merge).
func (s *Sketch) Update(src any) error {
	switch v := src.(type) {
	case []string:
		for _, k := range v {
			if err := s.Increment([]byte(k), 1); err != nil {
				return err
			}
		}
	case [][]byte:
		for _, k := range v {
			if err := s.Increment(k, 1); err != nil {
				return err
			}
		}
	case map[string]uint64:
		for k, d := range v {
			if err := s.Increment([]byte(k), int64(d)); err != nil {
				return err
			}
		}
	case map[string]int64:
		for k, d := range v {
			if err := s.Increment([]byte(k), d); err != nil {
				return err
			}
		}
	case *Sketch:
		return s.Merge(v)
	default:
		return errs.New(errs.TypeMismatch, "cms.Update", "unsupported update source type")
	}
	return nil
}
