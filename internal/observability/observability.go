// Package observability exposes Prometheus-compatible metrics for the board
// module on a private registry served through the API's scrape endpoint.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadboard/leadboard-go/internal/observability/metrics"
)

// Metrics holds all metric collectors for the application on a private
// registry, keeping default-registry noise out of the scrape output.
type Metrics struct {
	registry *prometheus.Registry
	Board    *metrics.BoardMetrics
	Jobs     *metrics.JobMetrics
}

// NewMetrics creates all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	boardMetrics, err := metrics.NewBoardMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create board metrics: %w", err)
	}

	jobMetrics, err := metrics.NewJobMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create job metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Board:    boardMetrics,
		Jobs:     jobMetrics,
	}, nil
}

// Handler returns the scrape handler for embedding in an existing server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
