package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FeedbackObservation carries one session outcome back into the learning
// loop: the state a decision was made in, the action that was taken, and
// the normalized reward observed for it. Observations are consumed exactly
// once and not retained.
type FeedbackObservation struct {
	State  StateKey
	Action Action
	Reward float64
}

// Updater folds feedback observations into a private working copy of an
// action-value table using the incremental rule
//
//	Q' = Q + LearningRate * (reward - Q)
//
// The working copy is seeded by deep copy from a base snapshot and never
// aliases it, so snapshots already handed to readers stay immutable.
// Commit freezes the working table into a new snapshot; the working copy
// then continues from the committed values.
//
// All methods serialize on one mutex. The update path is the slow,
// serialized side of the design; it never touches the decision path.
type Updater struct {
	mu sync.Mutex

	cfg   Config
	stats *Stats

	bounds      BinBoundaries
	baseVersion string
	working     map[StateKey]ActionValues
	pending     int64 // observations applied since last Commit/Rebase
}

// NewUpdater seeds an updater from base. It panics when base is nil or
// cfg is invalid: both are programmer errors, not runtime conditions.
// A nil stats is replaced with a private instance so callers that do not
// care about counters can pass nil.
func NewUpdater(base *Snapshot, cfg Config, stats *Stats) *Updater {
	if base == nil {
		panic("policy: NewUpdater requires a non-nil base snapshot")
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("policy: NewUpdater config: %v", err))
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Updater{
		cfg:         cfg,
		stats:       stats,
		bounds:      cloneBounds(base.Bounds),
		baseVersion: base.Version,
		working:     cloneTable(base.Table),
	}
}

// Apply folds one observation into the working table. Only the observed
// action's cell moves; the other action's value is untouched. A state not
// yet in the table is seeded with the neutral prior for both actions
// before the update is applied.
//
// Rewards outside [RewardMin, RewardMax] are applied as-is but logged and
// counted as anomalous. Observations that cannot be folded at all (unknown
// action, state key outside the bin ranges, non-finite reward) are skipped
// and counted; skipping keeps the working table publishable, since Commit
// output must still pass snapshot validation.
func (u *Updater) Apply(obs FeedbackObservation) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.applyLocked(obs)
}

// ApplyBatch folds observations in slice order. Observations touching the
// same cell compound in that order, so a batch is equivalent to the same
// sequence of single Apply calls.
func (u *Updater) ApplyBatch(obs []FeedbackObservation) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, o := range obs {
		u.applyLocked(o)
	}
}

func (u *Updater) applyLocked(obs FeedbackObservation) {
	if !IsValidAction(string(obs.Action)) {
		logrus.Warnf("[updater] skipping observation with unknown action %q for state %s", obs.Action, obs.State)
		u.stats.SkippedObservations.Add(1)
		return
	}
	if err := u.checkStateLocked(obs.State); err != nil {
		logrus.Warnf("[updater] skipping observation: %v", err)
		u.stats.SkippedObservations.Add(1)
		return
	}
	if !isFinite(obs.Reward) {
		logrus.Warnf("[updater] skipping non-finite reward %v for state %s", obs.Reward, obs.State)
		u.stats.SkippedObservations.Add(1)
		return
	}
	if obs.Reward < u.cfg.RewardMin || obs.Reward > u.cfg.RewardMax {
		logrus.Warnf("[updater] anomalous reward %.4f outside [%.2f, %.2f] for state %s",
			obs.Reward, u.cfg.RewardMin, u.cfg.RewardMax, obs.State)
		u.stats.AnomalousRewards.Add(1)
	}

	values, ok := u.working[obs.State]
	if !ok {
		values = ActionValues{P2P: u.cfg.NeutralPrior, Server: u.cfg.NeutralPrior}
	}
	q := values.Value(obs.Action)
	q += u.cfg.LearningRate * (obs.Reward - q)
	u.working[obs.State] = values.withValue(obs.Action, q)
	u.pending++
	u.stats.UpdatesApplied.Add(1)
}

// checkStateLocked rejects state keys that could never come out of Encode
// under the current boundaries. Such keys only arise from hand-built
// observations; folding them in would make the next Commit unpublishable.
func (u *Updater) checkStateLocked(s StateKey) error {
	latBins, lossBins, bwBins := u.bounds.binCounts()
	if s.Lat < 0 || s.Lat >= latBins {
		return fmt.Errorf("state %s: latency bin out of range [0, %d)", s, latBins)
	}
	if s.Loss < 0 || s.Loss >= lossBins {
		return fmt.Errorf("state %s: loss bin out of range [0, %d)", s, lossBins)
	}
	if s.BW < 0 || s.BW >= bwBins {
		return fmt.Errorf("state %s: bandwidth bin out of range [0, %d)", s, bwBins)
	}
	if !IsValidLinkType(string(s.Link)) {
		return fmt.Errorf("state %s: unknown link type %q", s, s.Link)
	}
	return nil
}

// Commit freezes the current working table into a new immutable snapshot
// with a fresh version, CreatedAt of now, and the base's bin boundaries.
// The working copy continues from the committed values, so observations
// applied after Commit compound on top of them. The caller is expected to
// hand the snapshot to a Publisher; Commit itself publishes nothing.
func (u *Updater) Commit() *Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := NewSnapshot(uuid.New().String(), time.Now().UTC(), u.bounds, u.working)
	u.baseVersion = snap.Version
	u.pending = 0
	logrus.Infof("[updater] committed snapshot version=%s states=%d", snap.Version, len(snap.Table))
	return snap
}

// Rebase adopts snap as the new working base, discarding observations
// applied since the last Commit. Call it after a snapshot from elsewhere
// (a retraining run, another writer) wins publication: last writer wins,
// and the dropped local increments are counted as superseded.
func (u *Updater) Rebase(snap *Snapshot) {
	if snap == nil {
		panic("policy: Rebase requires a non-nil snapshot")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending > 0 {
		logrus.Warnf("[updater] rebase onto version=%s drops %d unpublished updates", snap.Version, u.pending)
		u.stats.SupersededUpdates.Add(u.pending)
	}
	u.bounds = cloneBounds(snap.Bounds)
	u.baseVersion = snap.Version
	u.working = cloneTable(snap.Table)
	u.pending = 0
}

// Pending reports how many observations have been folded in since the
// last Commit or Rebase.
func (u *Updater) Pending() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending
}

// BaseVersion reports the version the working table was last seeded from,
// either the construction base, the last Commit, or the last Rebase.
func (u *Updater) BaseVersion() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.baseVersion
}
