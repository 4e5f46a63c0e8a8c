package msclog

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 10us to 10s with logarithmic spacing; a full-speed
// USB block transfer sits around 1ms.
var LatencyBuckets = []uint64{
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 7

// Metrics tracks transfer and logging statistics for a device
type Metrics struct {
	// Host transfer commands
	ReadCmds    atomic.Uint64
	WriteCmds   atomic.Uint64
	ReadBlocks  atomic.Uint64
	WriteBlocks atomic.Uint64
	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	// Transfer aborts by cause
	StallAborts atomic.Uint64
	ResetAborts atomic.Uint64
	IOAborts    atomic.Uint64

	// Log writer
	Records        atomic.Uint64
	RecordBytes    atomic.Uint64
	RecordFailures atomic.Uint64
	RecordLatency  atomic.Uint64 // cumulative, nanoseconds
	SkippedTicks   atomic.Uint64

	// Arbitration
	FileOpens     atomic.Uint64
	FileCloses    atomic.Uint64
	Mounts        atomic.Uint64
	MountFailures atomic.Uint64
	Formats       atomic.Uint64

	// Transfer latency
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Each bucket[i] counts transfers with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a host read command
func (m *Metrics) RecordRead(blocks uint64, latencyNs uint64, success bool) {
	m.ReadCmds.Add(1)
	m.ReadBlocks.Add(blocks)
	if !success {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a host write command
func (m *Metrics) RecordWrite(blocks uint64, latencyNs uint64, success bool) {
	m.WriteCmds.Add(1)
	m.WriteBlocks.Add(blocks)
	if !success {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordAbort records a transfer that stopped early
func (m *Metrics) RecordAbort(cause interfaces.AbortCause) {
	switch cause {
	case interfaces.AbortStall:
		m.StallAborts.Add(1)
	case interfaces.AbortReset:
		m.ResetAborts.Add(1)
	default:
		m.IOAborts.Add(1)
	}
}

// RecordRecord records one attempted log record
func (m *Metrics) RecordRecord(bytes uint64, latencyNs uint64, success bool) {
	if success {
		m.Records.Add(1)
		m.RecordBytes.Add(bytes)
	} else {
		m.RecordFailures.Add(1)
	}
	m.RecordLatency.Add(latencyNs)
}

// recordLatency records transfer latency and updates the histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	ReadCmds    uint64
	WriteCmds   uint64
	ReadBlocks  uint64
	WriteBlocks uint64
	ReadErrors  uint64
	WriteErrors uint64

	StallAborts uint64
	ResetAborts uint64
	IOAborts    uint64

	Records        uint64
	RecordBytes    uint64
	RecordFailures uint64
	SkippedTicks   uint64

	FileOpens     uint64
	FileCloses    uint64
	Mounts        uint64
	MountFailures uint64
	Formats       uint64

	AvgLatencyNs       uint64
	AvgRecordLatencyNs uint64
	UptimeNs           uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	// Computed
	ReadBandwidth  float64 // bytes per second
	WriteBandwidth float64
	ErrorRate      float64 // percentage of failed commands
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadCmds:       m.ReadCmds.Load(),
		WriteCmds:      m.WriteCmds.Load(),
		ReadBlocks:     m.ReadBlocks.Load(),
		WriteBlocks:    m.WriteBlocks.Load(),
		ReadErrors:     m.ReadErrors.Load(),
		WriteErrors:    m.WriteErrors.Load(),
		StallAborts:    m.StallAborts.Load(),
		ResetAborts:    m.ResetAborts.Load(),
		IOAborts:       m.IOAborts.Load(),
		Records:        m.Records.Load(),
		RecordBytes:    m.RecordBytes.Load(),
		RecordFailures: m.RecordFailures.Load(),
		SkippedTicks:   m.SkippedTicks.Load(),
		FileOpens:      m.FileOpens.Load(),
		FileCloses:     m.FileCloses.Load(),
		Mounts:         m.Mounts.Load(),
		MountFailures:  m.MountFailures.Load(),
		Formats:        m.Formats.Load(),
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	if attempts := snap.Records + snap.RecordFailures; attempts > 0 {
		snap.AvgRecordLatencyNs = m.RecordLatency.Load() / attempts
	}

	startTime := m.StartTime.Load()
	if stopTime := m.StopTime.Load(); stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadBandwidth = float64(snap.ReadBlocks*512) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBlocks*512) / uptimeSeconds
	}

	if cmds := snap.ReadCmds + snap.WriteCmds; cmds > 0 {
		snap.ErrorRate = float64(snap.ReadErrors+snap.WriteErrors) / float64(cmds) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(blocks uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(blocks, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(blocks uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(blocks, latencyNs, success)
}

func (o *MetricsObserver) ObserveAbort(cause interfaces.AbortCause) {
	o.metrics.RecordAbort(cause)
}

func (o *MetricsObserver) ObserveRecord(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRecord(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSkippedTick() {
	o.metrics.SkippedTicks.Add(1)
}

func (o *MetricsObserver) ObserveTransition(opened bool) {
	if opened {
		o.metrics.FileOpens.Add(1)
	} else {
		o.metrics.FileCloses.Add(1)
	}
}

func (o *MetricsObserver) ObserveMount(formatted bool, success bool) {
	o.metrics.Mounts.Add(1)
	if formatted {
		o.metrics.Formats.Add(1)
	}
	if !success {
		o.metrics.MountFailures.Add(1)
	}
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
