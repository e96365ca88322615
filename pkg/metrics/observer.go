package metrics

import (
	"github.com/intellex-clms/tenantdb/pkg/pool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tenantdb"

// Observer exports manager notifications as Prometheus metrics.
type Observer struct {
	ConnectionErrors  *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	TotalConnections  *prometheus.GaugeVec
}

var _ pool.Observer = &Observer{}

func NewObserver() *Observer {
	return &Observer{
		ConnectionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connection_errors_total",
				Help:      "Errors raised by established connections.",
			},
			[]string{"pool", "host"},
		),
		ActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "health_active_connections",
				Help:      "Connected connections seen by the last health check.",
			},
			[]string{"pool"},
		),
		TotalConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "health_total_connections",
				Help:      "Pooled connections seen by the last health check.",
			},
			[]string{"pool"},
		),
	}
}

// Register adds the observer's metrics to reg.
func (o *Observer) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{o.ConnectionErrors, o.ActiveConnections, o.TotalConnections} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (o *Observer) OnConnectionError(ev pool.ConnectionErrorEvent) {
	o.ConnectionErrors.WithLabelValues(ev.PoolKey, ev.Host).Inc()
}

func (o *Observer) OnHealthCheck(ev pool.HealthCheckEvent) {
	o.ActiveConnections.WithLabelValues(ev.PoolKey).Set(float64(ev.ActiveConnections))
	o.TotalConnections.WithLabelValues(ev.PoolKey).Set(float64(ev.TotalConnections))
}
