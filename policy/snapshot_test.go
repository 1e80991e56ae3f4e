package policy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(version string, createdAt time.Time) *Snapshot {
	return NewSnapshot(version, createdAt, testBounds(), map[StateKey]ActionValues{
		{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi}:     {P2P: 0.92, Server: 0.90},
		{Lat: 1, Loss: 0, BW: 2, Link: LinkWifi}:     {P2P: 0.61, Server: 0.84},
		{Lat: 2, Loss: 2, BW: 0, Link: LinkCellular}: {P2P: 0.31, Server: 0.72},
	})
}

// TestNewSnapshot_DeepCopies verifies that a snapshot cannot be mutated
// through the table or boundary slices it was constructed from.
func TestNewSnapshot_DeepCopies(t *testing.T) {
	bounds := testBounds()
	table := map[StateKey]ActionValues{
		{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}: {P2P: 0.8, Server: 0.6},
	}
	snap := NewSnapshot("v1", time.Now(), bounds, table)

	// Mutate the inputs after construction.
	table[StateKey{Lat: 1, Loss: 1, BW: 1, Link: LinkWifi}] = ActionValues{P2P: 0.1, Server: 0.1}
	table[StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}] = ActionValues{P2P: 0.0, Server: 0.0}
	bounds.Latency[1] = 9999

	assert.Len(t, snap.Table, 1, "snapshot table grew through the caller's map")
	v, ok := snap.Lookup(StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi})
	require.True(t, ok)
	assert.Equal(t, 0.8, v.P2P, "snapshot value changed through the caller's map")
	assert.Equal(t, 50.0, snap.Bounds.Latency[1], "snapshot edges changed through the caller's slice")
}

// TestNewSnapshot_NilTable verifies a snapshot built from a nil table is
// usable: lookups miss, they do not panic.
func TestNewSnapshot_NilTable(t *testing.T) {
	snap := NewSnapshot("v1", time.Now(), testBounds(), nil)
	require.NotNil(t, snap.Table)

	_, ok := snap.Lookup(StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi})
	assert.False(t, ok)
}

// TestSnapshot_Lookup verifies the present and absent cases.
func TestSnapshot_Lookup(t *testing.T) {
	snap := testSnapshot("v1", time.Now())

	v, ok := snap.Lookup(StateKey{Lat: 0, Loss: 0, BW: 2, Link: LinkWifi})
	require.True(t, ok)
	assert.Equal(t, 0.92, v.P2P)
	assert.Equal(t, 0.90, v.Server)

	_, ok = snap.Lookup(StateKey{Lat: 2, Loss: 0, BW: 0, Link: LinkWifi})
	assert.False(t, ok, "never-seen state should miss")
}

// TestSnapshot_Validate covers the structural invariants checked at load
// and publish time.
func TestSnapshot_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{"valid snapshot", func(s *Snapshot) {}, false},
		{"empty version", func(s *Snapshot) { s.Version = "" }, true},
		{"zero created_at", func(s *Snapshot) { s.CreatedAt = time.Time{} }, true},
		{"bad boundaries", func(s *Snapshot) { s.Bounds.Latency = []float64{500, 0} }, true},
		{"key bin out of range", func(s *Snapshot) {
			s.Table[StateKey{Lat: 9, Loss: 0, BW: 0, Link: LinkWifi}] = ActionValues{P2P: 0.5, Server: 0.5}
		}, true},
		{"negative key bin", func(s *Snapshot) {
			s.Table[StateKey{Lat: 0, Loss: -1, BW: 0, Link: LinkWifi}] = ActionValues{P2P: 0.5, Server: 0.5}
		}, true},
		{"unknown link in key", func(s *Snapshot) {
			s.Table[StateKey{Lat: 0, Loss: 0, BW: 0, Link: "ethernet"}] = ActionValues{P2P: 0.5, Server: 0.5}
		}, true},
		{"NaN action value", func(s *Snapshot) {
			s.Table[StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}] = ActionValues{P2P: math.NaN(), Server: 0.5}
		}, true},
		{"Inf action value", func(s *Snapshot) {
			s.Table[StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}] = ActionValues{P2P: 0.5, Server: math.Inf(1)}
		}, true},
		{"out-of-range finite values tolerated", func(s *Snapshot) {
			s.Table[StateKey{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}] = ActionValues{P2P: 7.5, Server: -2.0}
		}, false},
		{"empty table is valid", func(s *Snapshot) { s.Table = map[StateKey]ActionValues{} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot("v1", now)
			tt.mutate(snap)
			err := snap.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidModel(err), "expected InvalidModelError, got %T", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestSnapshot_CountAnomalousValues verifies the advisory out-of-range
// count used for load-time logging.
func TestSnapshot_CountAnomalousValues(t *testing.T) {
	snap := NewSnapshot("v1", time.Now(), testBounds(), map[StateKey]ActionValues{
		{Lat: 0, Loss: 0, BW: 0, Link: LinkWifi}: {P2P: 0.5, Server: 0.5},  // in range
		{Lat: 1, Loss: 0, BW: 0, Link: LinkWifi}: {P2P: 1.8, Server: 0.5},  // one out
		{Lat: 2, Loss: 0, BW: 0, Link: LinkWifi}: {P2P: 0.1, Server: -3.0}, // both out
	})
	assert.Equal(t, 3, snap.countAnomalousValues(0.25, 1.0))
	assert.Equal(t, 0, snap.countAnomalousValues(-10, 10))
}

// TestActionValues_Value verifies the accessor, including the conservative
// read for an unrecognized action.
func TestActionValues_Value(t *testing.T) {
	v := ActionValues{P2P: 0.9, Server: 0.4}
	assert.Equal(t, 0.9, v.Value(ActionP2P))
	assert.Equal(t, 0.4, v.Value(ActionServer))
	assert.Equal(t, 0.4, v.Value(Action("bogus")), "unknown action reads the server side")
}
