package policy

import "math"

// BinBoundaries holds the discretization edges for the three continuous
// metrics. Each axis needs at least two edges in strictly ascending order;
// edges e[0..n-1] define n-1 bins where bin i spans [e[i], e[i+1]].
//
// Boundaries are part of a snapshot and must not be mutated after the
// snapshot is constructed. Validation happens once at load/publish time
// (Validate), never on the per-decision path.
type BinBoundaries struct {
	Latency   []float64 // latency_ms edges
	Loss      []float64 // loss_pct edges
	Bandwidth []float64 // bandwidth_mbps edges
}

// Validate checks that every axis has ≥ 2 finite, strictly ascending edges.
// Returns an InvalidModelError describing the first violation found.
func (b BinBoundaries) Validate() error {
	if err := validateEdges("latency", b.Latency); err != nil {
		return err
	}
	if err := validateEdges("loss", b.Loss); err != nil {
		return err
	}
	return validateEdges("bandwidth", b.Bandwidth)
}

// validateEdges enforces the per-axis edge invariant: length ≥ 2, all values
// finite, strictly ascending (which also implies uniqueness).
func validateEdges(axis string, edges []float64) error {
	if len(edges) < 2 {
		return invalidModelf("%s bin edges need at least 2 entries, got %d", axis, len(edges))
	}
	for i, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return invalidModelf("%s bin edge %d is not finite (%v)", axis, i, e)
		}
		if i > 0 && edges[i-1] >= e {
			return invalidModelf("%s bin edges not strictly ascending at index %d (%v >= %v)",
				axis, i, edges[i-1], e)
		}
	}
	return nil
}

// Encode derives the state key for a reading under these boundaries.
//
// Each continuous metric is clamped into [first edge, last edge] and then
// assigned the bin whose range contains it; a value equal to a shared edge
// goes to the lower-indexed bin (first edge-≥ scan). The link type passes
// through as the categorical component. Encode never fails: out-of-range
// and non-finite inputs clamp, so every reading has a key. Two identical
// readings under identical boundaries always produce identical keys.
//
// Callers must only pass boundaries that passed Validate; that is
// guaranteed for boundaries taken from a published snapshot.
func (b BinBoundaries) Encode(r MetricReading) StateKey {
	return StateKey{
		Lat:  binIndex(b.Latency, r.LatencyMs),
		Loss: binIndex(b.Loss, r.LossPct),
		BW:   binIndex(b.Bandwidth, r.BandwidthMbps),
		Link: r.Link,
	}
}

// binCounts returns the number of bins per axis (edges minus one).
func (b BinBoundaries) binCounts() (lat, loss, bw int) {
	return len(b.Latency) - 1, len(b.Loss) - 1, len(b.Bandwidth) - 1
}

// binIndex maps v to a bin index in [0, len(edges)-2].
//
// v is first clamped to [edges[0], edges[last]]; NaN clamps to the first
// edge (the `!(v >= lo)` form catches NaN without a separate branch). The
// scan then finds the smallest upper edge ≥ v, which implements the
// lower-bin tie rule for values sitting exactly on an edge.
func binIndex(edges []float64, v float64) int {
	lo, hi := edges[0], edges[len(edges)-1]
	if !(v >= lo) {
		v = lo
	} else if v > hi {
		v = hi
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] >= v {
			return i - 1
		}
	}
	// Unreachable after clamping; the last edge always qualifies.
	return len(edges) - 2
}
