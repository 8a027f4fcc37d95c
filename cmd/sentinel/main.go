package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/zuudevs/grid-watcher/pkg/config"
	"github.com/zuudevs/grid-watcher/pkg/engine"
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/lifecycle"
	"github.com/zuudevs/grid-watcher/pkg/logger"
	"github.com/zuudevs/grid-watcher/pkg/metrics"
	"github.com/zuudevs/grid-watcher/pkg/telemetry"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/sentinel/sentinel.json", "Path to sentinel config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
		}
		// No config file at the default path: run with DefaultConfig,
		// already populated above, for the demo/generator path.
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	sentinelLogger, err := lifecycle.CreateComponentLogger("sentinel", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	sizeWorkersAndQueues(&cfg.Engine)

	sinks, closeSinks, err := buildSinks(ctx, cfg, sentinelLogger)
	if err != nil {
		return err
	}
	defer closeSinks()

	ring := telemetry.NewRing(cfg.Engine.LogQueueCapacity)
	writer := telemetry.NewWriter(ring, sinks...)
	writer.Start()

	eng, err := engine.New(cfg.Engine, writer)
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}

	if cfg.OTel != nil && cfg.OTel.MeterName != "" {
		if err := wireOTel(eng, cfg.OTel); err != nil {
			sentinelLogger.Warn().Err(err).Msg("metrics bridge disabled")
		}
	}

	eng.Start()
	sentinelLogger.Info().Str("config", *configPath).Msg("sentinel engine started")

	var gen *generator
	if cfg.Generator.Enabled {
		gen = newGenerator(eng, cfg.Generator)
		go gen.run()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sentinelLogger.Info().Msg("shutting down")

	if gen != nil {
		gen.Stop()
	}

	eng.Stop()

	return nil
}

// sizeWorkersAndQueues fills in a zero-valued worker count by scaling with
// the available CPUs, the way pkg/scan/ports.go seeds its round-robin
// cursor from runtime.GOMAXPROCS instead of a fixed constant.
func sizeWorkersAndQueues(cfg *ids.EngineConfig) {
	procs := runtime.GOMAXPROCS(0)
	if procs < 1 {
		procs = 1
	}

	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = uint32(procs)
	}
}

func buildSinks(ctx context.Context, cfg Config, lg logger.Logger) ([]telemetry.Sink, func(), error) {
	sinks := make([]telemetry.Sink, 0, 3)
	closers := make([]func(), 0, 2)

	fileSink, err := telemetry.NewFileSink(cfg.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open telemetry log file: %w", err)
	}
	sinks = append(sinks, fileSink)

	if cfg.NATS != nil && cfg.NATS.Subject != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			lg.Warn().Err(err).Msg("NATS sink disabled: connect failed")
		} else {
			js, err := jetstream.New(nc)
			if err != nil {
				lg.Warn().Err(err).Msg("NATS sink disabled: jetstream init failed")
				nc.Close()
			} else {
				sinks = append(sinks, telemetry.NewNATSSink(js, cfg.NATS.Subject))
				closers = append(closers, nc.Close)
			}
		}
	}

	if cfg.Postgres != nil && cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			lg.Warn().Err(err).Msg("Postgres sink disabled: pool init failed")
		} else {
			table := cfg.Postgres.Table
			if table == "" {
				table = "threat_log"
			}
			sinks = append(sinks, telemetry.NewPostgresSink(pool, table))
			closers = append(closers, pool.Close)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	return sinks, closeAll, nil
}

func wireOTel(eng *engine.Engine, cfg *OTelConfig) error {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter(cfg.MeterName)

	prefix := cfg.MetricsPrefix
	if prefix == "" {
		prefix = "sentinel"
	}

	_, err := metrics.NewOTelBridge(meter, prefix, eng.Counters(), eng.Latency(), eng.Throughput(),
		func() int64 { return time.Now().Unix() })

	return err
}
