package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs a fixed number of worker goroutines that drain a Ring,
// invoking handle for each job. Workers yield briefly when the ring is
// empty rather than busy-spin or block.
type Pool struct {
	ring    *Ring
	handle  func(PacketJob)
	running atomic.Bool
	wg      sync.WaitGroup

	panics       atomic.Uint64
	supervised   bool
	drain        atomic.Bool
	onFatalPanic func(recovered any)
}

// NewPool builds a Pool over ring. workerCount is not used here: the
// number of worker goroutines is the count passed to Start. When
// supervised is true, a worker goroutine that panics while handling a job
// is recovered and the worker keeps running. When supervised is false, a
// panic is still recovered (a worker goroutine never crashes the process),
// but it is fatal to the pool: the pool stops taking new jobs and, if set,
// onFatalPanic is invoked so the owner can react (see OnFatalPanic).
func NewPool(ring *Ring, workerCount uint32, supervised bool, handle func(PacketJob)) *Pool {
	p := &Pool{ring: ring, handle: handle, supervised: supervised}
	p.drain.Store(true)

	return p
}

// OnFatalPanic registers fn to be called, from the panicking worker
// goroutine, the first time an unsupervised worker panic occurs. Must be
// set before Start; only meaningful when the pool was built with
// supervised=false.
func (p *Pool) OnFatalPanic(fn func(recovered any)) {
	p.onFatalPanic = fn
}

// Start launches the worker goroutines. Idempotent.
func (p *Pool) Start(workerCount uint32) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	for i := uint32(0); i < workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

func (p *Pool) runWorker() {
	defer p.wg.Done()

	for p.running.Load() {
		job, ok := p.ring.TryDequeue()
		if !ok {
			runtime.Gosched()
			continue
		}

		p.dispatch(job)
	}

	if !p.drain.Load() {
		return
	}

	// Drain whatever remains so in-flight work is not silently discarded.
	for {
		job, ok := p.ring.TryDequeue()
		if !ok {
			return
		}

		p.dispatch(job)
	}
}

func (p *Pool) dispatch(job PacketJob) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		p.panics.Add(1)

		if p.supervised {
			return
		}

		// Unsupervised: this panic is fatal to the pool. Stop pulling new
		// jobs rather than silently continuing, and skip the normal
		// drain-on-exit pass so a repeatedly-panicking handler can't churn
		// through the rest of the queue.
		p.drain.Store(false)
		p.running.Store(false)

		if p.onFatalPanic != nil {
			p.onFatalPanic(r)
		}
	}()

	p.handle(job)
}

// Stop signals workers to finish their current job and exit, then waits
// for all of them to return. If drain is false, queued-but-unprocessed
// jobs are discarded instead of finished.
func (p *Pool) Stop(drain bool) {
	p.drain.Store(drain)

	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.wg.Wait()
}

// PanicCount reports how many worker panics were recovered, supervised or not.
func (p *Pool) PanicCount() uint64 {
	return p.panics.Load()
}
