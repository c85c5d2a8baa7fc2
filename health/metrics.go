package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// LocalMetrics tracks one worker's own load, updated continuously as
// jobs are accepted and completed, and read by both the Prometheus
// gauges and the poll RPC handler.
type LocalMetrics struct {
	active int64 // atomic

	mu          sync.Mutex
	latencySum  time.Duration
	latencyN    int
	cpuLoad     float64
	termSeen    uint64
}

func NewLocalMetrics() *LocalMetrics {
	return &LocalMetrics{}
}

// BeginJob increments the active connection count; the returned func
// must be called exactly once when the job finishes to record its
// latency and decrement the count.
func (m *LocalMetrics) BeginJob() func() {
	atomic.AddInt64(&m.active, 1)
	start := time.Now()
	return func() {
		atomic.AddInt64(&m.active, -1)
		m.recordLatency(time.Since(start))
	}
}

func (m *LocalMetrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += d
	m.latencyN++
	// keep a bounded rolling window instead of an ever-growing average
	if m.latencyN > 100 {
		m.latencySum /= 2
		m.latencyN /= 2
	}
}

// SetCPULoad records the process's current CPU load fraction (0..1),
// as computed by the caller.
func (m *LocalMetrics) SetCPULoad(load float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuLoad = load
}

// SetTermSeen records the highest directory Raft term this worker has
// observed, carried along in the beacon for operator visibility.
func (m *LocalMetrics) SetTermSeen(term uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if term > m.termSeen {
		m.termSeen = term
	}
}

// Snapshot returns the current Beacon.
func (m *LocalMetrics) Snapshot() Beacon {
	m.mu.Lock()
	defer m.mu.Unlock()
	avgLatency := 0.0
	if m.latencyN > 0 {
		avgLatency = float64(m.latencySum/time.Duration(m.latencyN)) / float64(time.Millisecond)
	}
	return Beacon{
		CPULoad:           m.cpuLoad,
		ActiveConnections: int(atomic.LoadInt64(&m.active)),
		AvgLatencyMs:      avgLatency,
		TermSeen:          m.termSeen,
	}
}
