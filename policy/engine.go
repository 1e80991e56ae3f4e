package policy

import (
	"math"
	"time"
)

// Decision bases. These are stable strings: external collaborators match
// on them, so changing one is a contract change.
const (
	// BasisLearnedPreference marks a decision where one action's learned
	// value was strictly greater by at least the tie epsilon.
	BasisLearnedPreference = "learned-preference"
	// BasisIdealTieBreak marks a near-tie resolved to p2p because the
	// state sits in the best latency and loss bins.
	BasisIdealTieBreak = "ideal-tie-break"
	// BasisTieConservative marks a near-tie outside ideal conditions,
	// resolved to the relay for its reliability premium.
	BasisTieConservative = "tie-conservative"
	// BasisUnseenFallback marks a state with no learned evidence, either
	// absent from the table or no snapshot published yet. Always server.
	BasisUnseenFallback = "unseen-state-fallback"
)

// Decision is the outcome of one path selection.
type Decision struct {
	Action  Action   // the path to establish the session on
	Basis   string   // why; one of the Basis* constants
	State   StateKey // encoded state; zero value when no snapshot was available
	P2P     float64  // learned p2p value at decision time; 0 when unseen
	Server  float64  // learned server value at decision time; 0 when unseen
	Version string   // snapshot version consulted; empty before first publish
}

// SnapshotSource supplies the snapshot a decision reads. Current must be
// safe for concurrent callers and may return nil before anything has been
// published. *Publisher satisfies this.
type SnapshotSource interface {
	Current() *Snapshot
}

// Engine serves path decisions from the currently published snapshot.
//
// Decide is a pure reader: one atomic snapshot load followed by a state
// encoding and a table lookup. It takes no locks and performs no I/O, and
// it cannot fail (every input has a defined outcome), which keeps it
// inside the session-start latency budget by construction. Any number of
// goroutines may call Decide concurrently.
type Engine struct {
	source SnapshotSource
	cfg    Config
	stats  *Stats
	sink   RecordSink
}

// NewEngine creates an Engine reading snapshots from source. stats may be
// nil (a private Stats is created) and sink may be nil (records are
// discarded). Panics if source is nil or cfg is invalid; configs from
// external input should be checked with Config.Validate first.
func NewEngine(source SnapshotSource, cfg Config, stats *Stats, sink RecordSink) *Engine {
	if source == nil {
		panic("NewEngine: nil SnapshotSource")
	}
	if err := cfg.Validate(); err != nil {
		panic("NewEngine: " + err.Error())
	}
	if stats == nil {
		stats = NewStats()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{source: source, cfg: cfg, stats: stats, sink: sink}
}

// Decide selects the path for a session about to be established under the
// given live metrics. It always returns an actionable decision:
//
//   - state present in the table: the action with the strictly greater
//     learned value wins; near-ties (gap < TieEpsilon) go to p2p only in
//     the best latency and loss bins, to server everywhere else.
//   - state absent, or nothing published yet: server, with the
//     unseen-state fallback basis.
//
// Each decision is also forwarded to the engine's RecordSink so the
// surrounding application can attach the eventual session rating.
func (e *Engine) Decide(reading MetricReading) Decision {
	snap := e.source.Current()

	var d Decision
	if snap == nil {
		e.stats.NoSnapshot.Add(1)
		d = Decision{Action: ActionServer, Basis: BasisUnseenFallback}
	} else {
		d = evaluate(reading, snap, e.cfg)
	}

	switch d.Basis {
	case BasisIdealTieBreak:
		e.stats.TieBreaks.Add(1)
	case BasisUnseenFallback:
		e.stats.Fallbacks.Add(1)
	}
	if d.Action == ActionP2P {
		e.stats.DecisionsP2P.Add(1)
	} else {
		e.stats.DecisionsServer.Add(1)
	}

	e.sink.Record(DecisionRecord{
		At:      time.Now().UTC(),
		Reading: reading,
		State:   d.State,
		Action:  d.Action,
		Basis:   d.Basis,
		P2P:     d.P2P,
		Server:  d.Server,
		Version: d.Version,
	})
	return d
}

// Stats exposes the engine's counters (shared with whatever components the
// caller wired the same Stats into).
func (e *Engine) Stats() *Stats {
	return e.stats
}

// evaluate computes the decision for a reading against one snapshot.
// Pure: no shared state, no side effects.
func evaluate(reading MetricReading, snap *Snapshot, cfg Config) Decision {
	state := snap.Bounds.Encode(reading)
	d := Decision{State: state, Version: snap.Version}

	values, ok := snap.Lookup(state)
	if !ok {
		d.Action = ActionServer
		d.Basis = BasisUnseenFallback
		return d
	}
	d.P2P, d.Server = values.P2P, values.Server

	diff := values.P2P - values.Server
	if math.Abs(diff) < cfg.TieEpsilon {
		// Near-tie. P2P wins only under demonstrably ideal conditions;
		// the relay carries a small reliability premium everywhere else.
		if state.Lat == 0 && state.Loss == 0 {
			d.Action = ActionP2P
			d.Basis = BasisIdealTieBreak
		} else {
			d.Action = ActionServer
			d.Basis = BasisTieConservative
		}
		return d
	}
	if diff > 0 {
		d.Action = ActionP2P
	} else {
		d.Action = ActionServer
	}
	d.Basis = BasisLearnedPreference
	return d
}
