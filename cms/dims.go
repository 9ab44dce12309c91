package cms

import "github.com/piskvorky/bounter/errs"

// deriveDimensions fills width/depth from a size-in-bytes budget following
// spec §4.2: if both are unspecified (zero), pick the largest power-of-two
// width that fits size_bytes/(cell*16), then fill depth from the
// remaining budget; if exactly one is specified, fill the other to
// consume the budget; if both are specified, the budget is ignored.
// Grounded in original_source/bounter/count_min_sketch.py's __init__.
func deriveDimensions(sizeBytes uint64, cellBytes int, width, depth uint32) (w, d uint32, err error) {
	cb := uint64(cellBytes)

	switch {
	case width == 0 && depth == 0:
		w = largestPow2LE(sizeBytes / (cb * 16))
		if w == 0 {
			return 0, 0, errs.New(errs.BudgetTooSmall, "cms.New", "size_mb too small to derive a width")
		}
		d = uint32(sizeBytes / (uint64(w) * cb))
		if d == 0 {
			return 0, 0, errs.New(errs.BudgetTooSmall, "cms.New", "size_mb too small to derive a depth")
		}
		return w, d, nil

	case width == 0:
		d = depth
		avail := sizeBytes / (uint64(d) * cb)
		w = largestPow2LE(avail)
		if w == 0 {
			return 0, 0, errs.New(errs.BudgetTooSmall, "cms.New", "requested depth is too large for the memory budget")
		}
		return w, d, nil

	case depth == 0:
		if !isPow2(width) {
			return 0, 0, errs.New(errs.InvalidArgument, "cms.New", "width must be a power of two")
		}
		w = width
		d = uint32(sizeBytes / (uint64(w) * cb))
		if d == 0 {
			return 0, 0, errs.New(errs.BudgetTooSmall, "cms.New", "requested width is too large for the memory budget")
		}
		return w, d, nil

	default:
		if !isPow2(width) {
			return 0, 0, errs.New(errs.InvalidArgument, "cms.New", "width must be a power of two")
		}
		return width, depth, nil
	}
}

func isPow2(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}

// largestPow2LE returns the largest power of two <= x, or 0 if x == 0.
func largestPow2LE(x uint64) uint32 {
	if x == 0 {
		return 0
	}
	p := uint64(1)
	for p<<1 <= x {
		p <<= 1
	}
	if p > uint64(^uint32(0)) {
		return ^uint32(0)>>1 + 1 // clamp, unreachable for realistic MB budgets
	}
	return uint32(p)
}
