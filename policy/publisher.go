package policy

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Publisher owns the live snapshot reference. Readers get it through
// Current, a single atomic pointer load with no lock involved, safe under
// any number of concurrent callers while publishes are in flight. An
// in-flight publish is never observable half-done; a reader sees the old
// snapshot or the new one, nothing in between.
//
// Writes go through Publish/ForcePublish, which serialize on a mutex so
// concurrent publishers cannot interleave their validate-compare-swap
// sequences. Snapshot construction always happens off to the side; the
// swap itself is one pointer store.
//
// Publisher implements SnapshotSource, so it plugs straight into an
// Engine.
type Publisher struct {
	current atomic.Pointer[Snapshot]

	mu    sync.Mutex // serializes Publish and ForcePublish
	stats *Stats
}

// NewPublisher returns a publisher with no snapshot installed. Until the
// first successful Publish, Current returns nil and engines reading from
// it fall back to the relay server. A nil stats is replaced with a
// private instance.
func NewPublisher(stats *Stats) *Publisher {
	if stats == nil {
		stats = NewStats()
	}
	return &Publisher{stats: stats}
}

// Current returns the live snapshot, or nil when none has been published
// yet. The returned snapshot is immutable and remains valid indefinitely;
// later publishes replace the reference, never the contents.
func (p *Publisher) Current() *Snapshot {
	return p.current.Load()
}

// Publish validates candidate and installs it as the live snapshot.
//
// A structurally invalid candidate is rejected with InvalidModelError. A
// candidate whose CreatedAt is not strictly after the live snapshot's is
// rejected with StaleVersionError; republishing the live snapshot itself
// falls under the same rule. On any rejection the previously installed
// snapshot stays in effect untouched.
func (p *Publisher) Publish(candidate *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkLocked(candidate); err != nil {
		return err
	}
	cur := p.current.Load()
	if cur != nil && !candidate.CreatedAt.After(cur.CreatedAt) {
		p.stats.StaleRejected.Add(1)
		err := &StaleVersionError{
			CandidateVersion: candidate.Version,
			CandidateTime:    candidate.CreatedAt,
			CurrentVersion:   cur.Version,
			CurrentTime:      cur.CreatedAt,
		}
		logrus.Warnf("[publisher] %v", err)
		return err
	}
	p.installLocked(candidate, cur)
	return nil
}

// ForcePublish validates candidate and installs it without the staleness
// check. It exists for explicit rollback and recovery: reinstating an
// older snapshot after a bad publish is an operator decision, not a
// normal pipeline step. Structural validation still applies.
func (p *Publisher) ForcePublish(candidate *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkLocked(candidate); err != nil {
		return err
	}
	cur := p.current.Load()
	if cur != nil && !candidate.CreatedAt.After(cur.CreatedAt) {
		logrus.Warnf("[publisher] force publish of version=%s over newer version=%s", candidate.Version, cur.Version)
	}
	p.installLocked(candidate, cur)
	return nil
}

func (p *Publisher) checkLocked(candidate *Snapshot) error {
	if candidate == nil {
		p.stats.InvalidRejected.Add(1)
		err := invalidModelf("nil snapshot")
		logrus.Warnf("[publisher] rejected candidate: %v", err)
		return err
	}
	if err := candidate.Validate(); err != nil {
		p.stats.InvalidRejected.Add(1)
		logrus.Warnf("[publisher] rejected candidate version=%q: %v", candidate.Version, err)
		return err
	}
	return nil
}

func (p *Publisher) installLocked(candidate, prev *Snapshot) {
	p.current.Store(candidate)
	p.stats.Publishes.Add(1)
	prevVersion := "<none>"
	if prev != nil {
		prevVersion = prev.Version
	}
	logrus.Infof("[publisher] published snapshot version=%s states=%d (replaced %s)",
		candidate.Version, len(candidate.Table), prevVersion)
}
