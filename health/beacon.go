// Package health tracks a cloud worker's own load metrics and scores
// them per spec.md §4.2's health formula, and provides the RPC used
// to poll a peer's live score during dispatcher election.
package health

// MaxConn and LatencyMax are the normalization constants from
// spec.md's score formula.
const (
	MaxConn    = 64
	LatencyMax = 500.0
)

// Beacon is the tuple a worker reports about itself.
type Beacon struct {
	CPULoad           float64 `json:"cpu_load"`
	ActiveConnections int     `json:"active_connections"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	TermSeen          uint64  `json:"term_seen"`
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Score computes spec.md §4.2's health score: higher is better.
func (b Beacon) Score() float64 {
	connFrac := minF(1, float64(b.ActiveConnections)/float64(MaxConn))
	latFrac := minF(1, b.AvgLatencyMs/LatencyMax)
	return 1.0 - (0.5*b.CPULoad + 0.3*connFrac + 0.2*latFrac)
}
