// Package metrics exposes Prometheus metrics for the session provisioning
// backend on a dedicated listener, separate from the API server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the /metrics endpoint on its own address.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server for the given service name and listen address.
// An empty address disables the listener; the returned server can still be
// used as a metrics registry.
func New(name, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace(name)}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// Registry returns the registerer backing this server.
func (s *MetricsServer) Registry() prometheus.Registerer {
	return s.registry
}

// ListenAndServe blocks serving the metrics endpoint.
func (s *MetricsServer) ListenAndServe() error {
	if s.srv.Addr == "" {
		return fmt.Errorf("metrics server has no listen address")
	}
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func metricsNamespace(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '-' || r == '.' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}
