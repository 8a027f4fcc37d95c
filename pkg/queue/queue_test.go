package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	r := NewRing(4)

	job := PacketJob{Src: ids.NewAddr(1, 1, 1, 1)}
	require.True(t, r.TryEnqueue(job))

	got, ok := r.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, job.Src, got.Src)
}

func TestDequeueEmptyFails(t *testing.T) {
	r := NewRing(4)

	_, ok := r.TryDequeue()
	assert.False(t, ok)
}

func TestEnqueueFullFails(t *testing.T) {
	r := NewRing(2)

	require.True(t, r.TryEnqueue(PacketJob{}))
	require.True(t, r.TryEnqueue(PacketJob{}))
	assert.False(t, r.TryEnqueue(PacketJob{}))
}

func TestFIFOOrderPreservedSingleProducer(t *testing.T) {
	r := NewRing(8)

	for i := 0; i < 8; i++ {
		require.True(t, r.TryEnqueue(PacketJob{SrcPort: uint16(i)}))
	}

	for i := 0; i < 8; i++ {
		got, ok := r.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, uint16(i), got.SrcPort)
	}
}

func TestConcurrentProducersConsumersNoLossNoDuplication(t *testing.T) {
	r := NewRing(1024)
	const totalJobs = 5000

	var produced atomic.Int64
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := produced.Add(1)
				if n > totalJobs {
					return
				}

				for !r.TryEnqueue(PacketJob{SrcPort: uint16(n)}) {
					// ring momentarily full; retry
				}
			}
		}()
	}

	seen := make([]int32, totalJobs+2)
	var consumed atomic.Int64
	var cwg sync.WaitGroup

	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for consumed.Load() < totalJobs {
				job, ok := r.TryDequeue()
				if !ok {
					continue
				}

				atomic.AddInt32(&seen[job.SrcPort], 1)
				consumed.Add(1)
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	for i := 1; i <= totalJobs; i++ {
		assert.Equal(t, int32(1), seen[i], "job %d seen %d times", i, seen[i])
	}
}

func TestPoolProcessesEnqueuedJobs(t *testing.T) {
	r := NewRing(64)

	var processed atomic.Int64
	pool := NewPool(r, 4, true, func(PacketJob) {
		processed.Add(1)
	})
	pool.Start(4)

	for i := 0; i < 100; i++ {
		require.Eventually(t, func() bool { return r.TryEnqueue(PacketJob{}) }, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool { return processed.Load() == 100 }, time.Second, time.Millisecond)

	pool.Stop(true)
	assert.Equal(t, int64(100), processed.Load())
}

func TestPoolSupervisionRecoversFromPanic(t *testing.T) {
	r := NewRing(8)

	var processed atomic.Int64
	pool := NewPool(r, 1, true, func(job PacketJob) {
		if job.SrcPort == 1 {
			panic("simulated handler failure")
		}
		processed.Add(1)
	})
	pool.Start(1)

	require.True(t, r.TryEnqueue(PacketJob{SrcPort: 1}))
	require.True(t, r.TryEnqueue(PacketJob{SrcPort: 2}))

	require.Eventually(t, func() bool { return processed.Load() == 1 }, time.Second, time.Millisecond)

	pool.Stop(true)
	assert.Equal(t, uint64(1), pool.PanicCount())
}

func TestUnsupervisedPoolStopsOnPanicInsteadOfCrashing(t *testing.T) {
	r := NewRing(8)

	var fatal atomic.Value // recovered value
	pool := NewPool(r, 1, false, func(job PacketJob) {
		panic("simulated handler failure")
	})
	pool.OnFatalPanic(func(recovered any) {
		fatal.Store(recovered)
	})
	pool.Start(1)

	require.True(t, r.TryEnqueue(PacketJob{}))

	require.Eventually(t, func() bool { return fatal.Load() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), pool.PanicCount())

	// The pool stopped itself; Stop must still return without hanging.
	pool.Stop(true)
}
