package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuudevs/grid-watcher/pkg/ids"
)

func testConfig() ids.EngineConfig {
	cfg := ids.DefaultEngineConfig()
	cfg.PacketQueueCapacity = 64
	cfg.LogQueueCapacity = 64
	cfg.WorkerCount = 2

	return cfg
}

func wellFormedModbusRead() []byte {
	buf := make([]byte, 12)
	buf[4], buf[5] = 0x00, 0x06
	buf[7] = 0x03
	buf[8], buf[9] = 0x00, 0x64
	buf[10], buf[11] = 0x00, 0x0a

	return buf
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerCount = 0

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestProcessSyncBeforeStartFails(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	_, err = e.ProcessSync(ids.PacketInput{Arrival: time.Now()})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestNormalModbusReadIsAllowed(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	input := ids.PacketInput{
		Buffer:  wellFormedModbusRead(),
		Src:     ids.NewAddr(192, 168, 1, 10),
		Dst:     ids.NewAddr(192, 168, 1, 100),
		SrcPort: 51000,
		DstPort: 502,
		Arrival: time.Now(),
	}

	decision, err := e.ProcessSync(input)
	require.NoError(t, err)
	assert.Equal(t, ids.Allow, decision)

	snap := e.StatisticsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters.PacketsProcessed)
	assert.Equal(t, uint64(1), snap.Counters.PacketsAllowed)
}

func TestWhitelistedSourceAlwaysAllowed(t *testing.T) {
	cfg := testConfig()
	addr := ids.NewAddr(10, 0, 0, 1)
	cfg.WhitelistedAddresses = []ids.Addr{addr}

	e, err := New(cfg, nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	input := ids.PacketInput{Src: addr, Dst: ids.NewAddr(10, 0, 0, 2), Arrival: time.Now()}

	decision, err := e.ProcessSync(input)
	require.NoError(t, err)
	assert.Equal(t, ids.Allow, decision)
}

func TestBlockedSourceIsDropped(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	addr := ids.NewAddr(203, 0, 113, 50)
	e.Block(addr, ids.AttackBruteForce)

	decision, err := e.ProcessSync(ids.PacketInput{Src: addr, Arrival: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, ids.Drop, decision)
}

func TestUnblockRestoresAllow(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	addr := ids.NewAddr(203, 0, 113, 51)
	e.Block(addr, ids.AttackBruteForce)
	assert.True(t, e.Unblock(addr))

	decision, err := e.ProcessSync(ids.PacketInput{Src: addr, Dst: ids.NewAddr(1, 1, 1, 1), Arrival: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, ids.Allow, decision)
}

func TestUnauthorizedWriteFloodTriggersAutoBlock(t *testing.T) {
	cfg := testConfig()
	cfg.WriteReadRatioThreshold = 3.0
	cfg.AutoBlockEnabled = true

	e, err := New(cfg, nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	writeFrame := make([]byte, 12)
	writeFrame[4], writeFrame[5] = 0x00, 0x06
	writeFrame[7] = 16 // write multiple coils

	src := ids.NewAddr(203, 0, 113, 45)
	dst := ids.NewAddr(192, 168, 1, 100)

	var lastDecision ids.Decision
	for i := 0; i < 10; i++ {
		lastDecision, err = e.ProcessSync(ids.PacketInput{
			Buffer: writeFrame, Src: src, Dst: dst, SrcPort: 51000, DstPort: 502, Arrival: time.Now(),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, ids.Drop, lastDecision)
	assert.True(t, e.mitigationTable.IsBlocked(src, time.Now()))
}

func TestSubmitAndAsyncProcessing(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	result := e.Submit(ids.PacketInput{
		Buffer: wellFormedModbusRead(), Src: ids.NewAddr(1, 1, 1, 1), Dst: ids.NewAddr(2, 2, 2, 2),
		SrcPort: 51000, DstPort: 502, Arrival: time.Now(),
	})
	assert.Equal(t, ids.Submitted, result)

	require.Eventually(t, func() bool {
		return e.StatisticsSnapshot().Counters.PacketsProcessed == 1
	}, time.Second, time.Millisecond)
}

func TestDoubleStartAndStopAreIdempotent(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
}

func TestUnsupervisedWorkerPanicStopsEngine(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerSupervision = false

	e, err := New(cfg, nil)
	require.NoError(t, err)
	e.Start()
	t.Cleanup(func() { e.pool.Stop(false) })

	errTestPanic := errors.New("simulated worker panic")
	e.failFatal(errTestPanic)

	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, e.Err(), errTestPanic)

	_, err = e.ProcessSync(ids.PacketInput{Arrival: time.Now()})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestBlockedListReflectsActiveBlocks(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	addr := ids.NewAddr(203, 0, 113, 60)
	e.Block(addr, ids.AttackPortScan)

	list := e.BlockedList()
	require.Len(t, list, 1)
	assert.Equal(t, addr, list[0].Addr)
}
