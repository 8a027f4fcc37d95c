/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// OTelBridge periodically snapshots Counters/LatencyTracker/
// ThroughputTracker into OpenTelemetry instruments. It is a pure
// collaborator: counters are exported as monotonic, latency as three
// gauges (average, min and max), throughput as a gauge. Min and max stand
// for quantiles 0.0 and 1.0; no 0.5 quantile is exported, and the latency
// histogram is not read. It never runs on the
// packet-processing path, only from a periodic export tick.
type OTelBridge struct {
	prefix string

	processed  metric.Int64ObservableCounter
	allowed    metric.Int64ObservableCounter
	dropped    metric.Int64ObservableCounter
	bytesTotal metric.Int64ObservableCounter
	threats    metric.Int64ObservableCounter

	latencyAvg metric.Float64ObservableGauge
	latencyMin metric.Float64ObservableGauge
	latencyMax metric.Float64ObservableGauge

	throughputPackets metric.Int64ObservableGauge
	throughputBytes   metric.Int64ObservableGauge

	counters   *Counters
	latency    *LatencyTracker
	throughput *ThroughputTracker
	nowUnixSec func() int64
}

// NewOTelBridge registers observable instruments against meter, namespaced
// by prefix, and wires their callbacks to read from counters/latency/
// throughput at collection time.
func NewOTelBridge(meter metric.Meter, prefix string, counters *Counters, latency *LatencyTracker,
	throughput *ThroughputTracker, nowUnixSec func() int64,
) (*OTelBridge, error) {
	b := &OTelBridge{
		prefix:     prefix,
		counters:   counters,
		latency:    latency,
		throughput: throughput,
		nowUnixSec: nowUnixSec,
	}

	var err error

	if b.processed, err = meter.Int64ObservableCounter(prefix + ".packets_processed"); err != nil {
		return nil, err
	}

	if b.allowed, err = meter.Int64ObservableCounter(prefix + ".packets_allowed"); err != nil {
		return nil, err
	}

	if b.dropped, err = meter.Int64ObservableCounter(prefix + ".packets_dropped"); err != nil {
		return nil, err
	}

	if b.bytesTotal, err = meter.Int64ObservableCounter(prefix + ".bytes_processed"); err != nil {
		return nil, err
	}

	if b.threats, err = meter.Int64ObservableCounter(prefix + ".threats_detected"); err != nil {
		return nil, err
	}

	if b.latencyAvg, err = meter.Float64ObservableGauge(prefix + ".latency_avg_ns"); err != nil {
		return nil, err
	}

	if b.latencyMin, err = meter.Float64ObservableGauge(prefix + ".latency_min_ns"); err != nil {
		return nil, err
	}

	if b.latencyMax, err = meter.Float64ObservableGauge(prefix + ".latency_max_ns"); err != nil {
		return nil, err
	}

	if b.throughputPackets, err = meter.Int64ObservableGauge(prefix + ".throughput_packets_per_sec"); err != nil {
		return nil, err
	}

	if b.throughputBytes, err = meter.Int64ObservableGauge(prefix + ".throughput_bytes_per_sec"); err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(b.observe,
		b.processed, b.allowed, b.dropped, b.bytesTotal, b.threats,
		b.latencyAvg, b.latencyMin, b.latencyMax,
		b.throughputPackets, b.throughputBytes,
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *OTelBridge) observe(_ context.Context, o metric.Observer) error {
	snap := b.counters.Snapshot()

	o.ObserveInt64(b.processed, int64(snap.PacketsProcessed))
	o.ObserveInt64(b.allowed, int64(snap.PacketsAllowed))
	o.ObserveInt64(b.dropped, int64(snap.PacketsDropped))
	o.ObserveInt64(b.bytesTotal, int64(snap.BytesProcessed))
	o.ObserveInt64(b.threats, int64(snap.ThreatsDetected))

	lat := b.latency.Stats()
	o.ObserveFloat64(b.latencyAvg, lat.AverageNs)
	o.ObserveFloat64(b.latencyMin, float64(lat.Min))
	o.ObserveFloat64(b.latencyMax, float64(lat.Max))

	now := b.nowUnixSec()
	tp := b.throughput.Stats(1, now)
	o.ObserveInt64(b.throughputPackets, int64(tp.Packets))
	o.ObserveInt64(b.throughputBytes, int64(tp.Bytes))

	return nil
}
