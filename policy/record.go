package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DecisionRecord captures what the engine used for one decision so an
// external collaborator can persist it and later reconstruct a
// FeedbackObservation once the session's rating is known. The core emits
// records and forgets them; persistence is the collaborator's job.
type DecisionRecord struct {
	At      time.Time     // decision wall-clock time
	Reading MetricReading // raw metrics the caller supplied
	State   StateKey      // key encoded under the snapshot's boundaries
	Action  Action        // path selected
	Basis   string        // decision basis (see Basis* constants)
	P2P     float64       // table value at decision time; 0 when unseen
	Server  float64       // table value at decision time; 0 when unseen
	Version string        // snapshot version; empty before the first publish
}

// Observation pairs the record with a normalized reward, producing the
// feedback observation the Updater consumes.
func (r DecisionRecord) Observation(reward float64) FeedbackObservation {
	return FeedbackObservation{State: r.State, Action: r.Action, Reward: reward}
}

// RecordSink receives one DecisionRecord per decision. Implementations on
// the engine's sink path MUST NOT block: Record is called inline from
// Decide. Wrap slow consumers in a BufferedSink.
type RecordSink interface {
	Record(rec DecisionRecord)
}

// NopSink discards all records. Used when no feedback collection is wired.
type NopSink struct{}

// Record implements RecordSink for NopSink.
func (NopSink) Record(DecisionRecord) {}

// BufferedSink decouples a downstream consumer from the decision path with
// a bounded queue. Enqueueing never blocks; when the queue is full the
// record is dropped and the drop count is exposed via Dropped. The
// downstream sink is invoked from a single goroutine, so it needs no
// internal synchronization of its own.
type BufferedSink struct {
	queue chan DecisionRecord
	out   RecordSink

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64
}

// defaultRecordQueue bounds the sink buffer when the caller passes a
// non-positive size.
const defaultRecordQueue = 4096

// NewBufferedSink starts a buffered sink draining into out. The caller
// must invoke Close on shutdown to flush buffered records.
func NewBufferedSink(out RecordSink, queueSize int) *BufferedSink {
	if queueSize <= 0 {
		queueSize = defaultRecordQueue
	}
	b := &BufferedSink{
		queue: make(chan DecisionRecord, queueSize),
		out:   out,
		done:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Record buffers rec without blocking. Records arriving while the queue is
// full, or after Close, are dropped and counted.
func (b *BufferedSink) Record(rec DecisionRecord) {
	select {
	case <-b.done:
		b.dropped.Add(1)
		return
	default:
	}
	select {
	case b.queue <- rec:
	default:
		d := b.dropped.Add(1)
		if d == 1 || d%1000 == 0 {
			logrus.Warnf("[feedback] record sink backpressure: dropped %d records", d)
		}
	}
}

// Dropped returns how many records were discarded due to backpressure or
// arrival after Close.
func (b *BufferedSink) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting records, then drains whatever is buffered into
// the downstream sink and waits for the drain goroutine to exit. Safe to
// call more than once.
func (b *BufferedSink) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

func (b *BufferedSink) run() {
	defer b.wg.Done()
	for {
		select {
		case rec := <-b.queue:
			b.out.Record(rec)
		case <-b.done:
			// Drain anything that made it into the buffer before Close.
			for {
				select {
				case rec := <-b.queue:
					b.out.Record(rec)
				default:
					return
				}
			}
		}
	}
}
