// Package metrics exposes supervisor counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Start results recorded by StartAttempt.
const (
	ResultStarted     = "started"
	ResultPortInUse   = "port_in_use"
	ResultUnsupported = "unsupported_type"
	ResultSpawnFailed = "spawn_failed"
)

// Metrics holds the supervisor's Prometheus collectors.
//
// All metrics are prefixed with "devdeck_":
//   - devdeck_projects_known - projects in the registry
//   - devdeck_projects_online - projects with a live process
//   - devdeck_project_starts_total{type,result} - start attempts that reached the spawn stage
//   - devdeck_project_stops_total{type} - supervised stops
//   - devdeck_project_exits_total{type} - unsupervised exits seen by a reader
//   - devdeck_log_lines_total - captured output lines
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ProjectsKnown  prometheus.Gauge
	ProjectsOnline prometheus.Gauge
	StartsTotal    *prometheus.CounterVec
	StopsTotal     *prometheus.CounterVec
	ExitsTotal     *prometheus.CounterVec
	LogLinesTotal  prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProjectsKnown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devdeck_projects_known",
			Help: "Number of projects in the registry",
		}),
		ProjectsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devdeck_projects_online",
			Help: "Number of projects with a live process",
		}),
		StartsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devdeck_project_starts_total",
			Help: "Total number of project start attempts",
		}, []string{"type", "result"}),
		StopsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devdeck_project_stops_total",
			Help: "Total number of supervised project stops",
		}, []string{"type"}),
		ExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devdeck_project_exits_total",
			Help: "Total number of unsupervised project exits",
		}, []string{"type"}),
		LogLinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "devdeck_log_lines_total",
			Help: "Total number of captured output lines",
		}),
	}
}

// Gatherer returns the registry backing these metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// SetProjects records the registry size and the number of online projects.
func (m *Metrics) SetProjects(known, online int) {
	if m == nil {
		return
	}
	m.ProjectsKnown.Set(float64(known))
	m.ProjectsOnline.Set(float64(online))
}

// StartAttempt records the outcome of a start request.
func (m *Metrics) StartAttempt(projectType, result string) {
	if m == nil {
		return
	}
	m.StartsTotal.WithLabelValues(projectType, result).Inc()
}

// Stopped records a supervised stop.
func (m *Metrics) Stopped(projectType string) {
	if m == nil {
		return
	}
	m.StopsTotal.WithLabelValues(projectType).Inc()
}

// Exited records an unsupervised exit.
func (m *Metrics) Exited(projectType string) {
	if m == nil {
		return
	}
	m.ExitsTotal.WithLabelValues(projectType).Inc()
}

// LogLine records one captured output line.
func (m *Metrics) LogLine() {
	if m == nil {
		return
	}
	m.LogLinesTotal.Inc()
}
