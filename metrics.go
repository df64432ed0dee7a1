package fcs

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one client. Commands are grouped
// into four classes: query (random numbers, provisioning data, digest, chip
// identity), crypto (encryption/decryption), attestation (subkey,
// measurement, certificate) and control (image authentication, certificate
// send/reload, counters, teardown).
type Metrics struct {
	// Command counters
	QueryOps       atomic.Uint64
	CryptoOps      atomic.Uint64
	AttestationOps atomic.Uint64
	ControlOps     atomic.Uint64

	// Result byte counters
	QueryBytes       atomic.Uint64
	CryptoBytes      atomic.Uint64
	AttestationBytes atomic.Uint64

	// Error counters
	QueryErrors       atomic.Uint64
	CryptoErrors      atomic.Uint64
	AttestationErrors atomic.Uint64
	ControlErrors     atomic.Uint64

	// Timeout counter across all classes
	Timeouts atomic.Uint64

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Client lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordQuery records a query-class command
func (m *Metrics) RecordQuery(bytes uint64, latencyNs uint64, success bool) {
	m.QueryOps.Add(1)
	if success {
		m.QueryBytes.Add(bytes)
	} else {
		m.QueryErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCrypto records an encryption or decryption command
func (m *Metrics) RecordCrypto(bytes uint64, latencyNs uint64, success bool) {
	m.CryptoOps.Add(1)
	if success {
		m.CryptoBytes.Add(bytes)
	} else {
		m.CryptoErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordAttestation records an attestation-class command
func (m *Metrics) RecordAttestation(bytes uint64, latencyNs uint64, success bool) {
	m.AttestationOps.Add(1)
	if success {
		m.AttestationBytes.Add(bytes)
	} else {
		m.AttestationErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordControl records a control-class command
func (m *Metrics) RecordControl(latencyNs uint64, success bool) {
	m.ControlOps.Add(1)
	if !success {
		m.ControlErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTimeout records a completion timeout
func (m *Metrics) RecordTimeout() {
	m.Timeouts.Add(1)
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	// Update histogram buckets (cumulative)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the client as closed
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Command counts
	QueryOps       uint64
	CryptoOps      uint64
	AttestationOps uint64
	ControlOps     uint64

	// Result bytes
	QueryBytes       uint64
	CryptoBytes      uint64
	AttestationBytes uint64

	// Error counts
	QueryErrors       uint64
	CryptoErrors      uint64
	AttestationErrors uint64
	ControlErrors     uint64
	Timeouts          uint64

	// Performance
	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	TotalOps   uint64
	TotalBytes uint64
	ErrorRate  float64 // Percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		QueryOps:          m.QueryOps.Load(),
		CryptoOps:         m.CryptoOps.Load(),
		AttestationOps:    m.AttestationOps.Load(),
		ControlOps:        m.ControlOps.Load(),
		QueryBytes:        m.QueryBytes.Load(),
		CryptoBytes:       m.CryptoBytes.Load(),
		AttestationBytes:  m.AttestationBytes.Load(),
		QueryErrors:       m.QueryErrors.Load(),
		CryptoErrors:      m.CryptoErrors.Load(),
		AttestationErrors: m.AttestationErrors.Load(),
		ControlErrors:     m.ControlErrors.Load(),
		Timeouts:          m.Timeouts.Load(),
	}

	snap.TotalOps = snap.QueryOps + snap.CryptoOps + snap.AttestationOps + snap.ControlOps
	snap.TotalBytes = snap.QueryBytes + snap.CryptoBytes + snap.AttestationBytes

	// Calculate average latency
	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	// Calculate uptime
	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	// Calculate error rate
	totalErrors := snap.QueryErrors + snap.CryptoErrors + snap.AttestationErrors + snap.ControlErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	// Copy histogram bucket counts
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	// Calculate percentiles from histogram
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates a latency percentile from the cumulative
// histogram. It returns the upper bound of the bucket containing the
// percentile.
func (m *Metrics) calculatePercentile(p float64) uint64 {
	opCount := m.OpCount.Load()
	if opCount == 0 {
		return 0
	}

	target := uint64(float64(opCount) * p)
	for i := 0; i < numLatencyBuckets; i++ {
		if m.LatencyBuckets[i].Load() >= target {
			return LatencyBuckets[i]
		}
	}

	// Beyond the largest bucket
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer interface allows pluggable metrics collection
type Observer interface {
	ObserveQuery(bytes uint64, latencyNs uint64, success bool)
	ObserveCrypto(bytes uint64, latencyNs uint64, success bool)
	ObserveAttestation(bytes uint64, latencyNs uint64, success bool)
	ObserveControl(latencyNs uint64, success bool)
	ObserveTimeout()
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveQuery(uint64, uint64, bool)       {}
func (NoOpObserver) ObserveCrypto(uint64, uint64, bool)      {}
func (NoOpObserver) ObserveAttestation(uint64, uint64, bool) {}
func (NoOpObserver) ObserveControl(uint64, bool)             {}
func (NoOpObserver) ObserveTimeout()                         {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveQuery(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordQuery(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveCrypto(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordCrypto(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveAttestation(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordAttestation(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveControl(latencyNs uint64, success bool) {
	o.metrics.RecordControl(latencyNs, success)
}

func (o *MetricsObserver) ObserveTimeout() {
	o.metrics.RecordTimeout()
}

// Compile-time interface checks
var (
	_ Observer = NoOpObserver{}
	_ Observer = (*MetricsObserver)(nil)
)
