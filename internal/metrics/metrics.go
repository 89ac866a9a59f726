// Package metrics collects per-run pipeline metrics and writes them in the
// Prometheus text format for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fbpages"

// Collector holds the metrics of one pipeline run on a private registry.
type Collector struct {
	registry *prometheus.Registry

	rowsLoaded   *prometheus.CounterVec
	apiRequests  *prometheus.CounterVec
	runDuration  prometheus.Gauge
	lastSuccess  prometheus.Gauge
	runSucceeded prometheus.Gauge

	start time.Time
}

// NewCollector creates a collector and starts the run clock.
func NewCollector(pipeline string) *Collector {
	labels := prometheus.Labels{"pipeline": pipeline}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rows_loaded_total",
			Help:        "Rows written per table in the last run",
			ConstLabels: labels,
		}, []string{"table"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "api_requests_total",
			Help:        "Graph API requests by HTTP status (0 for transport errors)",
			ConstLabels: labels,
		}, []string{"status"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall-clock duration of the last run",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last successful run",
			ConstLabels: labels,
		}),
		runSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_success",
			Help:        "1 if the last run succeeded, 0 otherwise",
			ConstLabels: labels,
		}),
		start: time.Now(),
	}
	c.registry.MustRegister(c.rowsLoaded, c.apiRequests, c.runDuration, c.lastSuccess, c.runSucceeded)
	return c
}

// ObserveRequest counts one Graph API response.
func (c *Collector) ObserveRequest(status int) {
	c.apiRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (c *Collector) AddRows(table string, n int) {
	c.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

// Finish records the run outcome.
func (c *Collector) Finish(runErr error) {
	c.runDuration.Set(time.Since(c.start).Seconds())
	if runErr != nil {
		c.runSucceeded.Set(0)
		return
	}
	c.runSucceeded.Set(1)
	c.lastSuccess.SetToCurrentTime()
}

// WriteTextfile atomically writes the metrics to path.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
