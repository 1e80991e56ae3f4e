package policy

import (
	"testing"
	"time"
)

type fixedSource struct{ snap *Snapshot }

func (f fixedSource) Current() *Snapshot { return f.snap }

type captureSink struct{ recs []DecisionRecord }

func (c *captureSink) Record(rec DecisionRecord) { c.recs = append(c.recs, rec) }

// idealReading encodes to state {0,0,2,wifi} under testBounds: best
// latency bin, best loss bin, top bandwidth bin.
func idealReading() MetricReading {
	return MetricReading{LatencyMs: 10, LossPct: 0.2, BandwidthMbps: 500, Link: LinkWifi}
}

func engineWith(table map[StateKey]ActionValues) (*Engine, *Stats) {
	snap := NewSnapshot("v-test", time.Now(), testBounds(), table)
	stats := NewStats()
	return NewEngine(fixedSource{snap}, DefaultConfig(), stats, nil), stats
}

// TestDecide_NoSnapshotPublished verifies the engine serves the relay
// fallback before anything has been published.
func TestDecide_NoSnapshotPublished(t *testing.T) {
	stats := NewStats()
	engine := NewEngine(fixedSource{nil}, DefaultConfig(), stats, nil)

	d := engine.Decide(idealReading())

	if d.Action != ActionServer {
		t.Errorf("Action = %q, want %q", d.Action, ActionServer)
	}
	if d.Basis != BasisUnseenFallback {
		t.Errorf("Basis = %q, want %q", d.Basis, BasisUnseenFallback)
	}
	if d.Version != "" {
		t.Errorf("Version = %q, want empty before first publish", d.Version)
	}
	c := stats.Counts()
	if c.NoSnapshot != 1 || c.Fallbacks != 1 || c.DecisionsServer != 1 {
		t.Errorf("counts = %+v, want no_snapshot=1 fallbacks=1 server=1", c)
	}
}

// TestDecide_LearnedPreference verifies that a clear value gap selects the
// better action in both directions.
func TestDecide_LearnedPreference(t *testing.T) {
	ideal := StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}

	tests := []struct {
		name   string
		values ActionValues
		want   Action
	}{
		{"p2p clearly better", ActionValues{P2P: 0.85, Server: 0.60}, ActionP2P},
		{"server clearly better", ActionValues{P2P: 0.40, Server: 0.80}, ActionServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := engineWith(map[StateKey]ActionValues{ideal: tt.values})

			d := engine.Decide(idealReading())

			if d.Action != tt.want {
				t.Errorf("Action = %q, want %q", d.Action, tt.want)
			}
			if d.Basis != BasisLearnedPreference {
				t.Errorf("Basis = %q, want %q", d.Basis, BasisLearnedPreference)
			}
			if d.P2P != tt.values.P2P || d.Server != tt.values.Server {
				t.Errorf("decision values = (%v, %v), want (%v, %v)",
					d.P2P, d.Server, tt.values.P2P, tt.values.Server)
			}
			if d.Version != "v-test" {
				t.Errorf("Version = %q, want %q", d.Version, "v-test")
			}
		})
	}
}

// TestDecide_IdealTieBreak verifies that a near-tie in the best latency
// and loss bins goes to the direct path.
func TestDecide_IdealTieBreak(t *testing.T) {
	// GIVEN nearly equal values (gap 0.02 < epsilon 0.05) in ideal conditions
	ideal := StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}
	engine, stats := engineWith(map[StateKey]ActionValues{
		ideal: {P2P: 0.92, Server: 0.90},
	})

	// WHEN deciding under those conditions
	d := engine.Decide(idealReading())

	// THEN p2p wins on the ideal tie-break
	if d.Action != ActionP2P {
		t.Errorf("Action = %q, want %q", d.Action, ActionP2P)
	}
	if d.Basis != BasisIdealTieBreak {
		t.Errorf("Basis = %q, want %q", d.Basis, BasisIdealTieBreak)
	}
	if c := stats.Counts(); c.TieBreaks != 1 || c.DecisionsP2P != 1 {
		t.Errorf("counts = %+v, want tie_breaks=1 p2p=1", c)
	}
}

// TestDecide_TieOutsideIdealConditions verifies that near-ties anywhere
// but the best latency and loss bins resolve to the relay.
func TestDecide_TieOutsideIdealConditions(t *testing.T) {
	tied := ActionValues{P2P: 0.80, Server: 0.78}

	tests := []struct {
		name    string
		reading MetricReading
		state   StateKey
	}{
		{
			"elevated latency",
			MetricReading{LatencyMs: 70, LossPct: 0.2, BandwidthMbps: 500, Link: LinkWifi},
			StateKey{Lat: 1, Loss: 0, BW: 2, Link: LinkWifi},
		},
		{
			"elevated loss",
			MetricReading{LatencyMs: 10, LossPct: 3, BandwidthMbps: 500, Link: LinkWifi},
			StateKey{Lat: 0, Loss: 1, BW: 2, Link: LinkWifi},
		},
		{
			"both elevated",
			MetricReading{LatencyMs: 200, LossPct: 8, BandwidthMbps: 500, Link: LinkCellular},
			StateKey{Lat: 2, Loss: 2, BW: 2, Link: LinkCellular},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, stats := engineWith(map[StateKey]ActionValues{tt.state: tied})

			d := engine.Decide(tt.reading)

			if d.Action != ActionServer {
				t.Errorf("Action = %q, want %q", d.Action, ActionServer)
			}
			if d.Basis != BasisTieConservative {
				t.Errorf("Basis = %q, want %q", d.Basis, BasisTieConservative)
			}
			if c := stats.Counts(); c.TieBreaks != 0 {
				t.Errorf("tie_breaks = %d, want 0 (conservative ties are not ideal tie-breaks)", c.TieBreaks)
			}
		})
	}
}

// TestDecide_EqualValuesZeroEpsilon verifies the boundary case: with no
// tie window at all, exactly equal values select the relay.
func TestDecide_EqualValuesZeroEpsilon(t *testing.T) {
	ideal := StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}
	snap := NewSnapshot("v-test", time.Now(), testBounds(), map[StateKey]ActionValues{
		ideal: {P2P: 0.7, Server: 0.7},
	})
	cfg := DefaultConfig()
	cfg.TieEpsilon = 0
	engine := NewEngine(fixedSource{snap}, cfg, nil, nil)

	d := engine.Decide(idealReading())

	if d.Action != ActionServer {
		t.Errorf("Action = %q, want %q (equal values are not a p2p preference)", d.Action, ActionServer)
	}
	if d.Basis != BasisLearnedPreference {
		t.Errorf("Basis = %q, want %q", d.Basis, BasisLearnedPreference)
	}
}

// TestDecide_UnseenState verifies the fallback for a state with no learned
// evidence in an otherwise populated snapshot.
func TestDecide_UnseenState(t *testing.T) {
	other := StateKey{Lat: 2, Loss: 2, BW: 0, Link: LinkCellular}
	engine, stats := engineWith(map[StateKey]ActionValues{other: {P2P: 0.9, Server: 0.3}})

	d := engine.Decide(idealReading())

	if d.Action != ActionServer || d.Basis != BasisUnseenFallback {
		t.Errorf("got (%q, %q), want (%q, %q)", d.Action, d.Basis, ActionServer, BasisUnseenFallback)
	}
	if d.Version != "v-test" {
		t.Errorf("Version = %q, want %q (a snapshot was consulted)", d.Version, "v-test")
	}
	if d.State != (StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}) {
		t.Errorf("State = %v, want the encoded reading state", d.State)
	}
	c := stats.Counts()
	if c.Fallbacks != 1 || c.NoSnapshot != 0 {
		t.Errorf("counts = %+v, want fallbacks=1 no_snapshot=0", c)
	}
}

// TestDecide_EmitsRecord verifies every decision reaches the sink with the
// fields feedback reconstruction needs.
func TestDecide_EmitsRecord(t *testing.T) {
	ideal := StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}
	snap := NewSnapshot("v-test", time.Now(), testBounds(), map[StateKey]ActionValues{
		ideal: {P2P: 0.85, Server: 0.60},
	})
	sink := &captureSink{}
	engine := NewEngine(fixedSource{snap}, DefaultConfig(), nil, sink)

	reading := idealReading()
	d := engine.Decide(reading)

	if len(sink.recs) != 1 {
		t.Fatalf("sink received %d records, want 1", len(sink.recs))
	}
	rec := sink.recs[0]
	if rec.Action != d.Action || rec.Basis != d.Basis || rec.State != d.State || rec.Version != d.Version {
		t.Errorf("record %+v does not match decision %+v", rec, d)
	}
	if rec.Reading != reading {
		t.Errorf("record reading = %+v, want %+v", rec.Reading, reading)
	}
	if rec.At.IsZero() {
		t.Errorf("record timestamp not set")
	}

	obs := rec.Observation(0.9)
	if obs.State != d.State || obs.Action != d.Action || obs.Reward != 0.9 {
		t.Errorf("observation %+v does not round-trip the record", obs)
	}
}

// TestNewEngine_PanicsOnBadArguments verifies the programmer-error guards.
func TestNewEngine_PanicsOnBadArguments(t *testing.T) {
	t.Run("nil source", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic on nil source, got none")
			}
		}()
		NewEngine(nil, DefaultConfig(), nil, nil)
	})

	t.Run("invalid config", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic on invalid config, got none")
			}
		}()
		cfg := DefaultConfig()
		cfg.LearningRate = -1
		NewEngine(fixedSource{nil}, cfg, nil, nil)
	})
}
