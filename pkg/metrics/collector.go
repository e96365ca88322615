package metrics

import (
	"github.com/intellex-clms/tenantdb/pkg/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// Viewer is the read-only side of the connection manager.
type Viewer interface {
	View() []pool.Statistics
	DialCounters() (attempts, failures int64)
}

var (
	poolConnectionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "pool", "connections"),
		"Connections of a tenant pool by acquisition state.",
		[]string{"pool", "state"}, nil,
	)
	poolAcquisitionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "pool", "acquisitions_total"),
		"Connections handed out by a tenant pool.",
		[]string{"pool"}, nil,
	)
	poolAcquireWaitDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "pool", "acquire_wait_seconds"),
		"Time spent waiting for a connection.",
		[]string{"pool", "quantile"}, nil,
	)
	dialAttemptsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "dial_attempts_total"),
		"Connection attempts made by the manager.",
		nil, nil,
	)
	dialFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "", "dial_failures_total"),
		"Connection attempts that failed.",
		nil, nil,
	)
)

// PoolCollector reads pool statistics at scrape time.
type PoolCollector struct {
	viewer Viewer
}

var _ prometheus.Collector = &PoolCollector{}

func NewPoolCollector(viewer Viewer) *PoolCollector {
	return &PoolCollector{viewer: viewer}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnectionsDesc
	ch <- poolAcquisitionsDesc
	ch <- poolAcquireWaitDesc
	ch <- dialAttemptsDesc
	ch <- dialFailuresDesc
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.viewer.View() {
		for state, n := range map[string]int{
			"acquired": st.AcquiredConnections,
			"free":     st.FreeConnections,
			"pending":  st.PendingConnections,
			"active":   st.ActiveConnections,
		} {
			ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(n), st.PoolKey, state)
		}

		ch <- prometheus.MustNewConstMetric(poolAcquisitionsDesc, prometheus.CounterValue, float64(st.Acquisitions), st.PoolKey)
		ch <- prometheus.MustNewConstMetric(poolAcquireWaitDesc, prometheus.GaugeValue, st.AcquireWaitP50.Seconds(), st.PoolKey, "0.5")
		ch <- prometheus.MustNewConstMetric(poolAcquireWaitDesc, prometheus.GaugeValue, st.AcquireWaitP99.Seconds(), st.PoolKey, "0.99")
	}

	attempts, failures := c.viewer.DialCounters()
	ch <- prometheus.MustNewConstMetric(dialAttemptsDesc, prometheus.CounterValue, float64(attempts))
	ch <- prometheus.MustNewConstMetric(dialFailuresDesc, prometheus.CounterValue, float64(failures))
}
