package ingest

import "go.uber.org/atomic"

// Metrics keeps process-wide counters across every ingest a Driver runs.
// It is safe for concurrent use: one Metrics is shared by every Driver
// instance the HTTP layer creates.
type Metrics struct {
	activeIngests atomic.Int64
	totalIngests  atomic.Int64
	chunksTotal   atomic.Int64
	bytesTotal    atomic.Int64
}

// NewMetrics returns a zeroed Metrics ready to be shared across Drivers.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ingestStarted() {
	m.activeIngests.Inc()
	m.totalIngests.Inc()
}

func (m *Metrics) ingestFinished() {
	m.activeIngests.Dec()
}

func (m *Metrics) chunkEmitted() {
	m.chunksTotal.Inc()
}

func (m *Metrics) bytesIngested(n int64) {
	m.bytesTotal.Add(n)
}

// Snapshot is a point-in-time, immutable copy of Metrics suitable for JSON
// serialization.
type Snapshot struct {
	ActiveIngests int64 `json:"activeIngests"`
	TotalIngests  int64 `json:"totalIngests"`
	ChunksTotal   int64 `json:"chunksTotal"`
	BytesTotal    int64 `json:"bytesTotal"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ActiveIngests: m.activeIngests.Load(),
		TotalIngests:  m.totalIngests.Load(),
		ChunksTotal:   m.chunksTotal.Load(),
		BytesTotal:    m.bytesTotal.Load(),
	}
}
