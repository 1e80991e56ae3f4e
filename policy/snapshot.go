package policy

import (
	"math"
	"time"
)

// Action is the connection mode a decision selects.
type Action string

const (
	// ActionP2P establishes the session over a direct peer-to-peer path.
	ActionP2P Action = "p2p"
	// ActionServer routes the session through the relay server.
	ActionServer Action = "server"
)

// validActions maps accepted action strings. Unexported to prevent mutation.
var validActions = map[Action]bool{
	ActionP2P:    true,
	ActionServer: true,
}

// IsValidAction returns true if the given string is a recognized action.
func IsValidAction(action string) bool {
	return validActions[Action(action)]
}

// ActionValues holds the learned expected quality of each action in one
// state, on the normalized rating scale. Values are expected to lie in
// [RewardMin, RewardMax] but that is not enforced: out-of-range values are
// tolerated and only logged as anomalous at load time.
type ActionValues struct {
	P2P    float64 `json:"p2p"`
	Server float64 `json:"server"`
}

// Value returns the learned value for the given action.
// Unrecognized actions read as the server value (the conservative side).
func (v ActionValues) Value(a Action) float64 {
	if a == ActionP2P {
		return v.P2P
	}
	return v.Server
}

// withValue returns a copy with the given action's value replaced.
func (v ActionValues) withValue(a Action, q float64) ActionValues {
	if a == ActionP2P {
		v.P2P = q
	} else {
		v.Server = q
	}
	return v
}

// Snapshot is one immutable, versioned instance of the learned policy:
// bin boundaries plus the state → action-values table, with identifying
// metadata. A snapshot is never modified after construction (new learning
// always produces a new snapshot), so a decision call that obtained one
// observes a coherent model for its whole duration regardless of what is
// published meanwhile.
type Snapshot struct {
	Version   string                    // opaque identity (UUID for online commits)
	CreatedAt time.Time                 // publish-order timestamp; later wins
	Bounds    BinBoundaries             // discretization this table was built under
	Table     map[StateKey]ActionValues // learned action values per seen state
}

// NewSnapshot builds an immutable snapshot, deep-copying the boundaries and
// table so the caller cannot alias into the published model afterwards.
// Construction is the copy; publishing later is a single pointer swap.
func NewSnapshot(version string, createdAt time.Time, bounds BinBoundaries, table map[StateKey]ActionValues) *Snapshot {
	return &Snapshot{
		Version:   version,
		CreatedAt: createdAt,
		Bounds:    cloneBounds(bounds),
		Table:     cloneTable(table),
	}
}

// Lookup returns the action values for a state and whether the state has
// any learned evidence. The absent case is a defined outcome (fallback),
// not an error.
func (s *Snapshot) Lookup(k StateKey) (ActionValues, bool) {
	v, ok := s.Table[k]
	return v, ok
}

// Validate checks the snapshot's structural invariants: valid boundaries,
// every table key within the declared bin counts with a known link type,
// and finite action values. Out-of-range but finite values pass: they are
// an anomaly to log, not a structural defect. Returns InvalidModelError on
// the first violation.
func (s *Snapshot) Validate() error {
	if s.Version == "" {
		return invalidModelf("empty version")
	}
	if s.CreatedAt.IsZero() {
		return invalidModelf("zero created_at")
	}
	if err := s.Bounds.Validate(); err != nil {
		return err
	}
	latBins, lossBins, bwBins := s.Bounds.binCounts()
	for k, v := range s.Table {
		if k.Lat < 0 || k.Lat >= latBins {
			return invalidModelf("state %s: latency bin out of range [0, %d]", k, latBins-1)
		}
		if k.Loss < 0 || k.Loss >= lossBins {
			return invalidModelf("state %s: loss bin out of range [0, %d]", k, lossBins-1)
		}
		if k.BW < 0 || k.BW >= bwBins {
			return invalidModelf("state %s: bandwidth bin out of range [0, %d]", k, bwBins-1)
		}
		if !validLinkTypes[k.Link] {
			return invalidModelf("state %s: unknown link type %q", k, k.Link)
		}
		if !isFinite(v.P2P) || !isFinite(v.Server) {
			return invalidModelf("state %s: non-finite action value (p2p=%v, server=%v)", k, v.P2P, v.Server)
		}
	}
	return nil
}

// countAnomalousValues returns how many action values fall outside the
// normalized reward range [lo, hi]. Informational only; never a rejection.
func (s *Snapshot) countAnomalousValues(lo, hi float64) int {
	n := 0
	for _, v := range s.Table {
		if v.P2P < lo || v.P2P > hi {
			n++
		}
		if v.Server < lo || v.Server > hi {
			n++
		}
	}
	return n
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// cloneTable deep-copies a state table. A nil input yields an empty table
// so lookups on a fresh snapshot never touch a nil map.
func cloneTable(table map[StateKey]ActionValues) map[StateKey]ActionValues {
	out := make(map[StateKey]ActionValues, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}

// cloneBounds deep-copies bin boundaries.
func cloneBounds(b BinBoundaries) BinBoundaries {
	return BinBoundaries{
		Latency:   append([]float64(nil), b.Latency...),
		Loss:      append([]float64(nil), b.Loss...),
		Bandwidth: append([]float64(nil), b.Bandwidth...),
	}
}
