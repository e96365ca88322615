package metrics

import (
	"errors"
	"net/http"

	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewServer builds the metrics HTTP server without starting it.
func NewServer(addr string, gatherer prometheus.Gatherer, viewer Viewer) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Pool statistics
	mux.HandleFunc("/pools", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(viewer.View()); err != nil {
			tenantlog.Zero.Error().Err(err).Msg("failed to encode pool statistics")
		}
	})

	// Info endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>tenantdb</title></head>
<body>
<h1>tenantdb connection manager</h1>
<ul>
  <li><a href="/metrics">Prometheus Metrics</a></li>
  <li><a href="/pools">Pool Statistics</a></li>
  <li><a href="/health">Health Check</a></li>
</ul>
</body>
</html>`))
	})

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// StartMetricsServer serves metrics in the background. The caller shuts the
// returned server down.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer, viewer Viewer) *http.Server {
	server := NewServer(addr, gatherer, viewer)

	tenantlog.Zero.Info().
		Str("addr", addr).
		Msg("starting metrics server")

	// Run in background
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tenantlog.Zero.Error().
				Err(err).
				Msg("metrics server failed")
		}
	}()

	return server
}
