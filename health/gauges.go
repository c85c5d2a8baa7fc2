package health

import "github.com/prometheus/client_golang/prometheus"

// Gauges exposes a worker's own beacon fields as Prometheus gauges on
// the diagnostic mux, alongside the health values already flowing on
// the internal poll RPC.
type Gauges struct {
	CPULoad           prometheus.Gauge
	ActiveConnections prometheus.Gauge
	AvgLatencyMs      prometheus.Gauge
	Score             prometheus.Gauge
}

// NewGauges creates and registers the gauges on reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		CPULoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cpu_load", Help: "Instantaneous CPU load fraction, 0..1.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_active_connections", Help: "Currently active encryption jobs.",
		}),
		AvgLatencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_avg_latency_ms", Help: "Rolling average job latency in milliseconds.",
		}),
		Score: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_health_score", Help: "Derived dispatcher election score, higher is better.",
		}),
	}
	reg.MustRegister(g.CPULoad, g.ActiveConnections, g.AvgLatencyMs, g.Score)
	return g
}

// Update refreshes every gauge from b.
func (g *Gauges) Update(b Beacon) {
	g.CPULoad.Set(b.CPULoad)
	g.ActiveConnections.Set(float64(b.ActiveConnections))
	g.AvgLatencyMs.Set(b.AvgLatencyMs)
	g.Score.Set(b.Score())
}
