package ordering

// ─────────────────────────────────────────────────────────────
// Sibling order weights — dense numeric sort keys
// ─────────────────────────────────────────────────────────────
//
// Weights are float64 midpoints: appending steps by Gap, inserting between
// two neighbors bisects the interval. When a gap collapses below MinGap the
// caller respreads the whole sibling list with Spread — the store does this
// inside the same transaction, so no reader ever observes a collision.

const (
	// Gap is the spacing between consecutive appended siblings.
	Gap = 1024.0
	// MinGap is the smallest interval Between will bisect.
	MinGap = 1e-6
)

// Initial returns the weight for the first block of an empty sibling list.
func Initial() float64 { return Gap }

// After returns a weight sorting immediately after w when no next sibling
// exists.
func After(w float64) float64 { return w + Gap }

// Before returns a weight sorting ahead of w when no previous sibling
// exists.
func Before(w float64) float64 { return w - Gap }

// Between returns a weight strictly between a and b. ok is false when the
// interval is exhausted and the sibling list must be respread first.
func Between(a, b float64) (float64, bool) {
	if b-a < MinGap {
		return 0, false
	}
	return a + (b-a)/2, true
}

// Spread returns n evenly spaced weights for respreading a sibling list.
func Spread(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = Gap * float64(i+1)
	}
	return weights
}

// Less orders two siblings by weight, breaking exact ties by id. The id
// tiebreak is deterministic but carries no meaning; sibling lists never
// contain equal weights when the respread discipline is followed.
func Less(wa, wb float64, ida, idb string) bool {
	if wa != wb {
		return wa < wb
	}
	return ida < idb
}
