// Package engine wires the address cache, mitigation table, protocol
// parser, behavioral analyzer and telemetry into the short-circuit
// decision pipeline, and owns the ingestion queue's worker pool.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zuudevs/grid-watcher/pkg/behavior"
	"github.com/zuudevs/grid-watcher/pkg/bloom"
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/metrics"
	"github.com/zuudevs/grid-watcher/pkg/mitigation"
	"github.com/zuudevs/grid-watcher/pkg/queue"
	"github.com/zuudevs/grid-watcher/pkg/telemetry"
)

// State is the engine's own lifecycle: Constructed -> Running -> Stopped.
type State int32

const (
	StateConstructed State = iota
	StateRunning
	StateStopped
)

var (
	// ErrNotRunning is returned by ProcessSync when the engine is
	// not in StateRunning.
	ErrNotRunning = errors.New("engine is not running")
)

// Engine is the decision engine plus its ingestion pipeline.
type Engine struct {
	cfg ids.EngineConfig

	state atomic.Int32

	whitelistCache *bloom.Filter
	blockedCache   *bloom.Filter

	mitigationTable *mitigation.Table
	sourceStates    *behavior.Table
	analyzer        *behavior.Analyzer

	ring *queue.Ring
	pool *queue.Pool

	writer *telemetry.Writer

	counters   *metrics.Counters
	latency    *metrics.LatencyTracker
	throughput *metrics.ThroughputTracker

	startedAt time.Time

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup

	// fatalErr is set by failFatal when an unsupervised worker panic forces
	// the engine to Stopped outside of a normal Stop() call.
	fatalErr atomic.Pointer[error]

	now func() time.Time
}

// New constructs an Engine from a validated configuration. Construction
// fails only if cfg itself is invalid.
func New(cfg ids.EngineConfig, writer *telemetry.Writer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:             cfg,
		whitelistCache:  bloom.New(),
		blockedCache:    bloom.New(),
		mitigationTable: mitigation.New(cfg.MaxConcurrentBlocks),
		sourceStates:    behavior.NewTable(cfg.DosWindow, cfg.PortScanWindow, cfg.PortScanThreshold, cfg.MaxSources()),
		analyzer: behavior.NewAnalyzer(cfg.DosPacketThreshold, cfg.DosByteThreshold, cfg.PortScanThreshold,
			cfg.WriteReadRatioThreshold, cfg.ExceptionRateThreshold),
		ring:       queue.NewRing(cfg.PacketQueueCapacity),
		writer:     writer,
		counters:   &metrics.Counters{},
		latency:    metrics.NewLatencyTracker(),
		throughput: metrics.NewThroughputTracker(),
		now:        time.Now,
	}

	e.pool = queue.NewPool(e.ring, cfg.WorkerCount, cfg.WorkerSupervision, e.handleJob)
	e.pool.OnFatalPanic(func(recovered any) {
		e.failFatal(fmt.Errorf("worker panic with supervision disabled: %v", recovered))
	})

	if writer != nil {
		writer.OnDelivered(func(res telemetry.DeliveryResult) {
			if res.Written > 0 {
				e.counters.LogsWritten.Add(uint64(res.Written))
			}

			if res.Stopped > 0 {
				e.counters.LogsStopped.Add(uint64(res.Stopped))
			}
		})
	}

	for _, addr := range cfg.WhitelistedAddresses {
		e.mitigationTable.AddWhitelist(addr)
		e.whitelistCache.Add(addr)
	}

	return e, nil
}

// Start transitions Constructed -> Running, launches the worker pool and
// the periodic cleanup task. Idempotent.
func (e *Engine) Start() {
	if !e.state.CompareAndSwap(int32(StateConstructed), int32(StateRunning)) {
		return
	}

	e.startedAt = e.now()
	e.cleanupStop = make(chan struct{})

	e.pool.Start(e.cfg.WorkerCount)

	e.cleanupWG.Add(1)
	go e.runCleanup()
}

// Stop transitions to Stopped, joins workers (draining the queue unless
// cfg.DrainOnStop is false) and flushes the logger. Idempotent.
func (e *Engine) Stop() {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		return
	}

	close(e.cleanupStop)
	e.cleanupWG.Wait()

	e.pool.Stop(e.cfg.DrainOnStop)

	if e.writer != nil {
		e.writer.Stop()
	}
}

// failFatal transitions the engine straight to Stopped and records err,
// called from the panicking worker goroutine itself when worker
// supervision is disabled. It must not block on cleanupWG or the pool:
// the calling goroutine is still inside the pool's worker loop and hasn't
// returned yet, so waiting on it here would deadlock against itself.
func (e *Engine) failFatal(err error) {
	e.fatalErr.CompareAndSwap(nil, &err)

	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		return
	}

	close(e.cleanupStop)

	go func() {
		e.cleanupWG.Wait()

		if e.writer != nil {
			e.writer.Stop()
		}
	}()
}

func (e *Engine) runCleanup() {
	defer e.cleanupWG.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.cleanupStop:
			return
		case <-ticker.C:
			now := e.now()

			e.mitigationTable.Cleanup(now)
			e.sourceStates.Cleanup(now, 10*e.cfg.DosWindow)

			if e.blockedCache.FillRatio() > 0.5 {
				e.rebuildBlockedCache()
			}
		}
	}
}

func (e *Engine) rebuildBlockedCache() {
	e.blockedCache.Reset()

	for _, rec := range e.mitigationTable.Snapshot(e.now()) {
		e.blockedCache.Add(rec.Addr)
	}
}

func (e *Engine) handleJob(job queue.PacketJob) {
	e.processInternal(ids.PacketInput{
		Buffer:  job.Buffer,
		Src:     job.Src,
		Dst:     job.Dst,
		SrcPort: job.SrcPort,
		DstPort: job.DstPort,
		Arrival: time.Unix(0, job.Arrival),
	})
}

// Submit hands a packet to the ingestion queue without blocking.
func (e *Engine) Submit(input ids.PacketInput) ids.SubmitResult {
	ok := e.ring.TryEnqueue(queue.PacketJob{
		Buffer:  input.Buffer,
		Src:     input.Src,
		Dst:     input.Dst,
		SrcPort: input.SrcPort,
		DstPort: input.DstPort,
		Arrival: input.Arrival.UnixNano(),
	})

	if !ok {
		e.counters.QueueFullDrops.Add(1)
		return ids.QueueFull
	}

	return ids.Submitted
}

// ProcessSync runs the decision pipeline inline and returns the outcome.
// Only valid while the engine is Running.
func (e *Engine) ProcessSync(input ids.PacketInput) (ids.Decision, error) {
	if State(e.state.Load()) != StateRunning {
		return ids.Drop, ErrNotRunning
	}

	return e.processInternal(input), nil
}
