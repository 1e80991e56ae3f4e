package policy

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Stats aggregates counters across the decision, update, and publish paths
// for operational reporting. All counters are atomic: the decision path
// bumps them concurrently without locks.
//
// One Stats instance is typically shared by the Engine, Updater, and
// Publisher so a single Counts() call describes the whole core.
type Stats struct {
	DecisionsP2P    atomic.Int64 // decisions that selected the p2p path
	DecisionsServer atomic.Int64 // decisions that selected the relay path
	TieBreaks       atomic.Int64 // ideal-condition ties resolved to p2p
	Fallbacks       atomic.Int64 // unseen-state fallbacks (no-snapshot included)
	NoSnapshot      atomic.Int64 // decisions served before any publish

	Publishes       atomic.Int64 // successful publishes (forced included)
	StaleRejected   atomic.Int64 // publishes rejected as not newer
	InvalidRejected atomic.Int64 // candidates rejected as structurally invalid

	UpdatesApplied      atomic.Int64 // feedback observations folded into a working table
	AnomalousRewards    atomic.Int64 // rewards outside the normalized rating range
	SkippedObservations atomic.Int64 // observations that could not be folded in at all
	SupersededUpdates   atomic.Int64 // uncommitted updates dropped by a rebase
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{}
}

// StatsCounts is a plain-value copy of all counters at one instant.
type StatsCounts struct {
	DecisionsP2P    int64
	DecisionsServer int64
	TieBreaks       int64
	Fallbacks       int64
	NoSnapshot      int64

	Publishes       int64
	StaleRejected   int64
	InvalidRejected int64

	UpdatesApplied      int64
	AnomalousRewards    int64
	SkippedObservations int64
	SupersededUpdates   int64
}

// Decisions returns the total number of decisions served.
func (c StatsCounts) Decisions() int64 {
	return c.DecisionsP2P + c.DecisionsServer
}

// Counts reads every counter. Counters are read individually, so the copy
// is not a single atomic cut across all of them; for reporting that is
// fine, and each individual counter is exact.
func (s *Stats) Counts() StatsCounts {
	return StatsCounts{
		DecisionsP2P:    s.DecisionsP2P.Load(),
		DecisionsServer: s.DecisionsServer.Load(),
		TieBreaks:       s.TieBreaks.Load(),
		Fallbacks:       s.Fallbacks.Load(),
		NoSnapshot:      s.NoSnapshot.Load(),

		Publishes:       s.Publishes.Load(),
		StaleRejected:   s.StaleRejected.Load(),
		InvalidRejected: s.InvalidRejected.Load(),

		UpdatesApplied:      s.UpdatesApplied.Load(),
		AnomalousRewards:    s.AnomalousRewards.Load(),
		SkippedObservations: s.SkippedObservations.Load(),
		SupersededUpdates:   s.SupersededUpdates.Load(),
	}
}

// LogSummary emits a one-shot summary of all counters at info level.
func (s *Stats) LogSummary() {
	c := s.Counts()
	logrus.Infof("[stats] decisions=%d (p2p=%d server=%d) tie_breaks=%d fallbacks=%d no_snapshot=%d",
		c.Decisions(), c.DecisionsP2P, c.DecisionsServer, c.TieBreaks, c.Fallbacks, c.NoSnapshot)
	logrus.Infof("[stats] publishes=%d stale_rejected=%d invalid_rejected=%d",
		c.Publishes, c.StaleRejected, c.InvalidRejected)
	logrus.Infof("[stats] updates=%d anomalous_rewards=%d skipped_observations=%d superseded_updates=%d",
		c.UpdatesApplied, c.AnomalousRewards, c.SkippedObservations, c.SupersededUpdates)
}
