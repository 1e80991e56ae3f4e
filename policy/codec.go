package policy

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// snapshotFile is the on-disk form of a snapshot. Table keys are the
// canonical "lat|loss|bw|link" strings produced by StateKey.String.
type snapshotFile struct {
	Version   string                  `json:"version"`
	CreatedAt time.Time               `json:"created_at"`
	BinEdges  binEdgesFile            `json:"bin_edges"`
	QTable    map[string]ActionValues `json:"q_table"`
}

type binEdgesFile struct {
	Latency   []float64 `json:"latency"`
	Loss      []float64 `json:"loss"`
	Bandwidth []float64 `json:"bandwidth"`
}

// DecodeSnapshot parses and validates a snapshot document. Rejection is
// wholesale: a malformed document, a bad state key, or a failed snapshot
// validation returns an InvalidModelError and no snapshot. There is no
// partial load; callers keep serving whatever they served before.
//
// Finite values outside the usual reward range are tolerated (the table
// still loads) but logged, mirroring how the updater treats anomalous
// rewards.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, invalidModelf("decode: %v", err)
	}

	bounds := BinBoundaries{
		Latency:   f.BinEdges.Latency,
		Loss:      f.BinEdges.Loss,
		Bandwidth: f.BinEdges.Bandwidth,
	}
	// Keys can only be range-checked against valid boundaries, so edges
	// are validated before the table is parsed.
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	table := make(map[StateKey]ActionValues, len(f.QTable))
	for raw, values := range f.QTable {
		key, err := ParseStateKey(raw, bounds)
		if err != nil {
			return nil, err
		}
		// Non-canonical spellings ("00" vs "0") can collapse onto one key.
		if _, dup := table[key]; dup {
			return nil, invalidModelf("duplicate table entry for state %s", key)
		}
		table[key] = values
	}

	snap := &Snapshot{
		Version:   f.Version,
		CreatedAt: f.CreatedAt,
		Bounds:    bounds,
		Table:     table,
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if n := snap.countAnomalousValues(cfg.RewardMin, cfg.RewardMax); n > 0 {
		logrus.Warnf("[codec] snapshot version=%s has %d action values outside [%.2f, %.2f]",
			snap.Version, n, cfg.RewardMin, cfg.RewardMax)
	}
	return snap, nil
}

// EncodeSnapshot renders s in the on-disk format, indented, with table
// keys in their canonical string form. The snapshot is validated first so
// an unpublishable table is never written out. Map keys serialize sorted,
// so equal snapshots encode to identical bytes.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, invalidModelf("nil snapshot")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	f := snapshotFile{
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		BinEdges: binEdgesFile{
			Latency:   s.Bounds.Latency,
			Loss:      s.Bounds.Loss,
			Bandwidth: s.Bounds.Bandwidth,
		},
		QTable: make(map[string]ActionValues, len(s.Table)),
	}
	for key, values := range s.Table {
		f.QTable[key.String()] = values
	}
	return json.MarshalIndent(f, "", "  ")
}

// ReadSnapshotFile loads and decodes the snapshot document at path.
// I/O failures are returned as wrapped errors; structural failures come
// back as InvalidModelError from DecodeSnapshot.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot file %s: %w", path, err)
	}
	return snap, nil
}

// WriteSnapshotFile encodes s and writes it to path.
func WriteSnapshotFile(path string, s *Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file %s: %w", path, err)
	}
	return nil
}
