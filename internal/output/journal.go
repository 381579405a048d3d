package output

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stenotouch/internal/metrics"
	"stenotouch/internal/steno"
	"stenotouch/internal/store"
)

// JournalOptions configures a JournalSink.
type JournalOptions struct {
	Options

	// BufferSize is how many entries may wait for the writer. Strokes
	// submitted while it is full are dropped. Defaults to 256.
	BufferSize int
	// BatchSize is the number of strokes written per transaction.
	// Defaults to 32.
	BatchSize int
	// FlushInterval bounds how long a stroke waits for its batch to fill.
	// Defaults to one second.
	FlushInterval time.Duration
	// Now timestamps strokes. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	stroke store.Stroke
	layout *LayoutInfo
}

// JournalSink records strokes in a store from a background writer.
// SubmitStroke and SetLayout must be called from a single goroutine.
type JournalSink struct {
	store   *store.Store
	log     *slog.Logger
	metrics *metrics.StenoMetrics
	now     func() time.Time

	batchSize int
	interval  time.Duration

	layout  LayoutInfo
	queue   chan entry
	closing chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournalSink starts the writer. The caller keeps ownership of st and
// must close it after the sink.
func NewJournalSink(st *store.Store, opts JournalOptions) *JournalSink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	j := &JournalSink{
		store:     st,
		log:       opts.logger().With("component", "journal"),
		metrics:   opts.Metrics,
		now:       opts.Now,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		queue:     make(chan entry, opts.BufferSize),
		closing:   make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

// SetLayout tags subsequent strokes with info and records the layout
// version in the journal.
func (j *JournalSink) SetLayout(info LayoutInfo) {
	j.layout = info
	j.enqueue(entry{layout: &info})
}

// SubmitStroke implements chord.Sink.
func (j *JournalSink) SubmitStroke(s steno.Stroke) {
	j.enqueue(entry{stroke: store.Stroke{
		Time:        j.now(),
		Stroke:      s,
		Layout:      j.layout.Name,
		Fingerprint: j.layout.Fingerprint,
		Modality:    j.layout.Modality,
	}})
}

func (j *JournalSink) enqueue(e entry) {
	select {
	case <-j.closing:
		j.drop(e)
		return
	default:
	}
	select {
	case j.queue <- e:
	default:
		j.drop(e)
	}
}

func (j *JournalSink) drop(e entry) {
	j.dropped.Add(1)
	if e.layout == nil {
		j.log.Warn("journal queue full, stroke dropped", "steno", e.stroke.Stroke.String())
	}
	if j.metrics != nil {
		j.metrics.RecordSinkError()
	}
}

// run drains the queue. A batch is written when it is full, when the
// ticker fires, before a layout record, and on close.
func (j *JournalSink) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	batch := make([]store.Stroke, 0, j.batchSize)
	for {
		select {
		case e := <-j.queue:
			batch = j.handle(batch, e)
		case <-ticker.C:
			batch = j.flush(batch)
		case <-j.closing:
			for {
				select {
				case e := <-j.queue:
					batch = j.handle(batch, e)
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

func (j *JournalSink) handle(batch []store.Stroke, e entry) []store.Stroke {
	if e.layout == nil {
		batch = append(batch, e.stroke)
		if len(batch) >= j.batchSize {
			batch = j.flush(batch)
		}
		return batch
	}

	batch = j.flush(batch)
	info := e.layout
	if info.Fingerprint == "" {
		return batch
	}
	if err := j.store.RecordLayout(info.Name, info.Fingerprint, info.Source, j.now()); err != nil {
		j.log.Error("failed to record layout", "layout", info.Name, "error", err)
		if j.metrics != nil {
			j.metrics.RecordSinkError()
		}
	}
	return batch
}

func (j *JournalSink) flush(batch []store.Stroke) []store.Stroke {
	if len(batch) == 0 {
		return batch
	}
	if err := j.store.InsertBatch(batch); err != nil {
		j.failed.Add(uint64(len(batch)))
		j.log.Error("failed to write strokes", "count", len(batch), "error", err)
		if j.metrics != nil {
			for range batch {
				j.metrics.RecordSinkError()
			}
		}
	} else {
		j.written.Add(uint64(len(batch)))
		j.log.Debug("strokes written", "count", len(batch))
	}
	return batch[:0]
}

// Close writes whatever is queued and stops the writer.
func (j *JournalSink) Close() error {
	j.once.Do(func() {
		close(j.closing)
		j.wg.Wait()
		j.log.Debug("journal closed",
			"written", j.written.Load(),
			"dropped", j.dropped.Load(),
			"failed", j.failed.Load())
	})
	return nil
}

// Written returns the number of strokes stored so far.
func (j *JournalSink) Written() uint64 { return j.written.Load() }

// Dropped returns the number of entries refused because the queue was full
// or the sink was closed.
func (j *JournalSink) Dropped() uint64 { return j.dropped.Load() }
