package cms

// Variant tags the counting discipline used by a Sketch's matrix. Modeled
// as an enum with a match on the hot path rather than virtual dispatch,
// per the spec's Design Notes, to keep Increment branch-predictable.
type Variant int

const (
	// Conservative stores raw 32-bit counts, bumping only the minimum
	// cells on each increment (conservative update).
	Conservative Variant = iota
	// Log8 stores 8-bit logarithmic counters (shift=2).
	Log8
	// Log1024 stores 16-bit logarithmic counters (shift=9).
	Log1024
	// LogCons1024 is Log1024 with a single joint coin-flip against the
	// row minimum, conservative-update style.
	LogCons1024
)

func (v Variant) String() string {
	switch v {
	case Conservative:
		return "conservative"
	case Log8:
		return "log8"
	case Log1024:
		return "log1024"
	case LogCons1024:
		return "logcons1024"
	default:
		return "unknown"
	}
}

// CellBytes returns the per-cell storage width for the variant: 4 bytes
// for conservative, 1 for log8, 2 for log1024 and logcons1024.
func (v Variant) CellBytes() int {
	switch v {
	case Conservative:
		return 4
	case Log8:
		return 1
	case Log1024, LogCons1024:
		return 2
	default:
		return 0
	}
}

// shift returns the logarithmic shift parameter for log variants (0 for
// conservative, which does not use the log codec).
func (v Variant) shift() uint {
	switch v {
	case Log8:
		return 2
	case Log1024, LogCons1024:
		return 9
	default:
		return 0
	}
}

// isLog reports whether v uses the logarithmic cell codec.
func (v Variant) isLog() bool {
	return v == Log8 || v == Log1024 || v == LogCons1024
}

// variantFromTag resolves a persisted variant tag byte back to a Variant.
func variantFromTag(tag byte) (Variant, bool) {
	switch Variant(tag) {
	case Conservative, Log8, Log1024, LogCons1024:
		return Variant(tag), true
	default:
		return 0, false
	}
}
