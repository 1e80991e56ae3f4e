// Package policy provides the adaptive path selection engine for pathwise:
// it decides, per session setup, whether media should flow peer-to-peer or
// through a relay server, based on learned action values over discretized
// network conditions.
//
// # Reading Guide
//
// Start with these three files to understand the decision core:
//   - bins.go: metric discretization (bin edges, clamping, tie-at-edge rule)
//   - snapshot.go: the immutable versioned action-value table
//   - engine.go: the decision rule (learned preference, tie-break, fallback)
//
// # Architecture
//
// The package splits into a lock-free read side and a serialized write side:
//   - Engine.Decide reads the live snapshot through one atomic pointer load
//     and never blocks, whatever the writers are doing.
//   - Updater folds session feedback into a private working table and
//     freezes it into new snapshots via Commit.
//   - Publisher validates candidates and swaps the live snapshot reference;
//     rejected candidates leave the prior snapshot serving.
//   - codec.go defines the on-disk snapshot document; policy/reload feeds
//     files through it into a Publisher, off the decision path.
//
// Snapshots are immutable once constructed. Every mutation produces a new
// snapshot; readers holding an old one keep a consistent view for as long
// as they like.
//
// # Key Types
//
// The coordination points are small and explicit:
//   - SnapshotSource: one-method interface the engine reads from (Publisher
//     implements it; tests substitute fixed sources)
//   - RecordSink: optional non-blocking receiver for per-decision records
//   - Stats: atomic counters for decisions, publishes, updates, rejections
package policy
