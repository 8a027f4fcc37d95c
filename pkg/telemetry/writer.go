package telemetry

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sinkMaxAttempts bounds the retries of one record against one sink
	// before giving up on that delivery.
	sinkMaxAttempts = 3
	sinkBaseBackoff = 50 * time.Millisecond

	// sinkDisableThreshold is the number of consecutive full-record
	// delivery failures (each already having exhausted sinkMaxAttempts)
	// before a sink is disabled for the rest of the writer's lifetime.
	sinkDisableThreshold = 5
)

// sinkState tracks one configured sink's retry/disable bookkeeping,
// separate from the Sink implementation itself so a flaky sink never
// blocks or poisons the others.
type sinkState struct {
	sink                Sink
	consecutiveFailures atomic.Uint32
	disabled            atomic.Bool
}

// DeliveryResult reports how one dequeued record fared across every
// configured sink, so a caller can fold the outcome into its own metrics
// without duplicating the writer's retry/disable bookkeeping.
type DeliveryResult struct {
	Written int // sinks that persisted the record
	Stopped int // sinks that did not persist it: retries exhausted, or disabled
}

// Writer is the single consumer goroutine draining a Ring into its
// configured sinks. Producers publish via TryPush and never wait on the
// writer; a full ring means a dropped record, counted but otherwise
// silent.
type Writer struct {
	ring       *Ring
	sinkStates []*sinkState

	written atomic.Uint64
	dropped atomic.Uint64
	stopped atomic.Uint64

	onDelivered func(DeliveryResult)

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWriter builds a Writer over ring, delivering every dequeued record
// to each of sinks in order.
func NewWriter(ring *Ring, sinks ...Sink) *Writer {
	states := make([]*sinkState, len(sinks))
	for i, s := range sinks {
		states[i] = &sinkState{sink: s}
	}

	return &Writer{ring: ring, sinkStates: states, done: make(chan struct{})}
}

// OnDelivered registers fn to be called, from the writer goroutine, once
// per dequeued record after every sink has had its attempt. Must be set
// before Start.
func (w *Writer) OnDelivered(fn func(DeliveryResult)) {
	w.onDelivered = fn
}

// TryLog publishes rec without blocking; returns false (and bumps the
// dropped counter) if the ring is full.
func (w *Writer) TryLog(rec Record) bool {
	if w.ring.TryPush(rec) {
		return true
	}

	w.dropped.Add(1)

	return false
}

// Start launches the consumer goroutine. Idempotent.
func (w *Writer) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}

	w.wg.Add(1)
	go w.run()
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			w.drain()
			return
		default:
		}

		rec, ok := w.ring.TryPop()
		if !ok {
			runtime.Gosched()
			continue
		}

		w.deliver(rec)
	}
}

func (w *Writer) drain() {
	for {
		rec, ok := w.ring.TryPop()
		if !ok {
			return
		}

		w.deliver(rec)
	}
}

// deliver hands rec to every configured sink, retrying each with bounded
// backoff before counting it failed. A sink that fails sinkDisableThreshold
// deliveries in a row (each already retried) is disabled: the writer stops
// calling it and every record it would have received from then on counts
// as stopped instead of silently vanishing.
func (w *Writer) deliver(rec Record) {
	var result DeliveryResult

	for _, st := range w.sinkStates {
		if st.disabled.Load() {
			result.Stopped++
			w.stopped.Add(1)

			continue
		}

		if w.writeWithRetry(st, rec) {
			st.consecutiveFailures.Store(0)
			w.written.Add(1)
			result.Written++

			continue
		}

		if st.consecutiveFailures.Add(1) >= sinkDisableThreshold {
			st.disabled.Store(true)
		}

		result.Stopped++
		w.stopped.Add(1)
	}

	if w.onDelivered != nil {
		w.onDelivered(result)
	}
}

// writeWithRetry attempts st.sink.Write up to sinkMaxAttempts times,
// sleeping an exponentially growing backoff between attempts.
func (w *Writer) writeWithRetry(st *sinkState, rec Record) bool {
	for attempt := 1; attempt <= sinkMaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(sinkBaseBackoff * time.Duration(1<<(attempt-2)))
		}

		if err := st.sink.Write(rec); err == nil {
			return true
		}
	}

	return false
}

// Stop signals the writer to drain remaining records and return, then
// flushes and closes every sink.
func (w *Writer) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}

	close(w.done)
	w.wg.Wait()

	for _, st := range w.sinkStates {
		_ = st.sink.Flush()
		_ = st.sink.Close()
	}
}

// WrittenCount reports how many sink writes succeeded.
func (w *Writer) WrittenCount() uint64 { return w.written.Load() }

// DroppedCount reports how many TryLog calls found the ring full.
func (w *Writer) DroppedCount() uint64 { return w.dropped.Load() }

// StoppedCount reports how many record/sink deliveries did not persist:
// those that failed after every retry, plus those skipped because the
// sink had been disabled after persistent failures.
func (w *Writer) StoppedCount() uint64 { return w.stopped.Load() }
