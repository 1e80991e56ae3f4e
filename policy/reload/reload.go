// Package reload feeds snapshot files into a live publisher. It is the
// only part of the system that touches the filesystem; decode or publish
// failures are logged and dropped so the last good snapshot keeps serving.
//
// Two intake styles are provided: Watcher reacts to debounced fsnotify
// events on local paths that deliver them, and Poller re-reads on a fixed
// interval (for network mounts and other paths where events are
// unreliable). Both load once on Start so a file already in place is
// picked up at launch.
package reload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/pathwise/pathwise/policy"
)

// Target accepts decoded snapshot candidates. *policy.Publisher satisfies
// it; tests substitute recording targets.
type Target interface {
	Publish(*policy.Snapshot) error
}

const (
	defaultDebounce     = 500 * time.Millisecond
	debounceTick        = 100 * time.Millisecond
	defaultPollInterval = 30 * time.Second
)

// loadAndPublish reads the snapshot at path and hands it to the target.
// Every failure mode keeps the target's current snapshot serving: a
// missing or malformed file is logged and skipped, a stale candidate is
// expected traffic (re-reading an already-published file) and logged at
// debug only.
func loadAndPublish(path string, target Target, source string) {
	snap, err := policy.ReadSnapshotFile(path)
	if err != nil {
		logrus.Warnf("[reload] %s: load failed, keeping current snapshot: %v", source, err)
		return
	}
	if err := target.Publish(snap); err != nil {
		if policy.IsStaleVersion(err) {
			logrus.Debugf("[reload] %s: snapshot version=%s not newer than current, skipped", source, snap.Version)
			return
		}
		logrus.Warnf("[reload] %s: publish rejected, keeping current snapshot: %v", source, err)
		return
	}
	logrus.Infof("[reload] %s: published snapshot version=%s from %s", source, snap.Version, path)
}

// Watcher watches one snapshot file and republishes it when it changes.
// The parent directory is watched rather than the file itself, so the
// usual write-temp-then-rename delivery of a new snapshot is seen as a
// change to the target path.
type Watcher struct {
	path   string
	target Target

	watcher     *fsnotify.Watcher
	debounceDur time.Duration

	mu      sync.Mutex
	pending time.Time // zero when no settled-change check is owed
	running bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher prepares a watcher for the snapshot file at path. Nothing is
// loaded or watched until Start.
func NewWatcher(path string, target Target) (*Watcher, error) {
	if target == nil {
		return nil, fmt.Errorf("reload: nil target")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:        filepath.Clean(path),
		target:      target,
		watcher:     fw,
		debounceDur: defaultDebounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start performs the initial load (a missing or bad file is logged, not
// fatal) and begins watching. Non-blocking; the event loop runs until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	loadAndPublish(w.path, w.target, "initial load")

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		// The run loop never launched; leave the watcher stoppable as if
		// Start had not been called.
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logrus.Infof("[reload] watching %s for snapshot updates", w.path)

	go w.run(ctx)
	return nil
}

// Stop halts the event loop and closes the underlying filesystem watcher,
// ending this Watcher's life. Safe to call repeatedly and on a watcher
// that never started (the filesystem watcher is released either way).
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		logrus.Errorf("[reload] error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.Errorf("[reload] watch error: %v", err)
		case <-ticker.C:
			w.processSettled()
		}
	}
}

// handleEvent records a pending change for the watched path. Rapid
// successive writes (editors, slow copies) collapse into one reload once
// the file has been quiet for the debounce window.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processSettled() {
	w.mu.Lock()
	due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounceDur
	if due {
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if due {
		loadAndPublish(w.path, w.target, "file change")
	}
}

// Poller re-reads one snapshot file on a fixed interval and publishes it
// when its stat signature (mtime, size) has changed since the last
// attempt. The stat is recorded per attempt, not per success, so a
// persistently bad file is read once per change rather than every tick.
type Poller struct {
	path     string
	target   Target
	interval time.Duration

	mu       sync.Mutex
	running  bool
	lastMod  time.Time
	lastSize int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller prepares a poller for the snapshot file at path. An interval
// of zero or less falls back to the default of 30 seconds.
func NewPoller(path string, target Target, interval time.Duration) (*Poller, error) {
	if target == nil {
		return nil, fmt.Errorf("reload: nil target")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		path:     filepath.Clean(path),
		target:   target,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start performs the initial load and begins polling. Non-blocking; the
// poll loop runs until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.recordStat()
	loadAndPublish(p.path, p.target, "initial load")
	logrus.Infof("[reload] polling %s every %s for snapshot updates", p.path, p.interval)

	go p.run(ctx)
	return nil
}

// Stop halts the poll loop. Safe to call once after Start; a poller that
// never started is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.changed() {
				loadAndPublish(p.path, p.target, "poll")
			}
		}
	}
}

// changed reports whether the file's stat signature moved since the last
// check, updating the recorded signature either way. A missing file is
// not a change; the current snapshot keeps serving until one appears.
func (p *Poller) changed() bool {
	info, err := os.Stat(p.path)
	if err != nil {
		logrus.Debugf("[reload] poll stat %s: %v", p.path, err)
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.ModTime().Equal(p.lastMod) && info.Size() == p.lastSize {
		return false
	}
	p.lastMod = info.ModTime()
	p.lastSize = info.Size()
	return true
}

func (p *Poller) recordStat() {
	info, err := os.Stat(p.path)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.lastMod = info.ModTime()
	p.lastSize = info.Size()
	p.mu.Unlock()
}
