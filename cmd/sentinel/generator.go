package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/zuudevs/grid-watcher/pkg/engine"
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/scan"
)

const ephemeralPortLow, ephemeralPortHigh = 49152, 65535

// generator stands in for the packet-capture collaborator that a real
// deployment wires to a libpcap or AF_PACKET feed. It submits a mix of
// well-formed Modbus reads and a configurable fraction of write floods so
// the demo binary has something for the behavioral analyzer to catch. Each
// simulated connection reserves its source port from a real ephemeral port
// allocator and releases it as soon as the packet has been built, before
// it is submitted.
type generator struct {
	eng     *engine.Engine
	cfg     GeneratorConfig
	sources []ids.Addr
	dst     ids.Addr
	rnd     *rand.Rand
	ports   *scan.PortAllocator
	stop    chan struct{}
}

func newGenerator(eng *engine.Engine, cfg GeneratorConfig) *generator {
	if cfg.SourceCount <= 0 {
		cfg.SourceCount = 1
	}

	sources := make([]ids.Addr, cfg.SourceCount)
	for i := range sources {
		sources[i] = ids.NewAddr(203, 0, 113, byte(i+1))
	}

	return &generator{
		eng:     eng,
		cfg:     cfg,
		sources: sources,
		dst:     ids.NewAddr(192, 168, 1, 100),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // demo traffic, not security sensitive
		ports:   scan.NewPortAllocator(ephemeralPortLow, ephemeralPortHigh),
		stop:    make(chan struct{}),
	}
}

// run submits packets at approximately cfg.PacketsPerSec until Stop is
// called. It is meant to run in its own goroutine.
func (g *generator) run() {
	rate := g.cfg.PacketsPerSec
	if rate <= 0 {
		rate = 1
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.eng.Submit(g.nextPacket())
		}
	}
}

func (g *generator) Stop() {
	close(g.stop)
}

func (g *generator) nextPacket() ids.PacketInput {
	src := g.sources[g.rnd.Intn(len(g.sources))]

	buf := make([]byte, 12)
	buf[4], buf[5] = 0x00, 0x06
	buf[8], buf[9] = 0x00, 0x64
	buf[10], buf[11] = 0x00, 0x0a

	if g.rnd.Float64() < g.cfg.AttackFraction {
		buf[7] = 16 // write multiple coils, fed fast enough to trip the ratio rule
	} else {
		buf[7] = 3 // read holding registers
	}

	srcPort, err := g.ports.Reserve(context.Background())
	if err != nil {
		srcPort = ephemeralPortLow
	} else {
		defer g.ports.Release(srcPort)
	}

	return ids.PacketInput{
		Buffer:  buf,
		Src:     src,
		Dst:     g.dst,
		SrcPort: srcPort,
		DstPort: 502,
		Arrival: time.Now(),
	}
}
