// Package metrics holds the driver's Prometheus collectors. They live on a
// private registry so a one-shot process can dump them to a node-exporter
// textfile, and a serving process can expose them over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics groups the collectors recorded by the driver.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal       *prometheus.CounterVec
	CommandDuration     *prometheus.HistogramVec
	LockWait            prometheus.Histogram
	ActiveSessions      prometheus.Gauge
	ConnectivityActions *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nxshell_commands_total",
			Help: "Driver commands executed, by command and result",
		}, []string{"command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nxshell_command_duration_seconds",
			Help:    "Driver command duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		}, []string{"command"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nxshell_lock_wait_seconds",
			Help:    "Time spent waiting for the resource lock",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nxshell_cli_sessions_active",
			Help: "Open CLI sessions to managed switches",
		}),
		ConnectivityActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nxshell_connectivity_actions_total",
			Help: "Connectivity actions applied, by type and result",
		}, []string{"type", "result"}),
	}
	m.registry.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.LockWait,
		m.ActiveSessions,
		m.ConnectivityActions,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordCommand counts a finished driver command.
func (m *Metrics) RecordCommand(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result(err)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordLockWait observes how long a command waited for the resource lock.
func (m *Metrics) RecordLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

// SessionOpened increments the active CLI session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active CLI session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordConnectivityAction counts one applied connectivity action.
func (m *Metrics) RecordConnectivityAction(actionType string, err error) {
	if m == nil {
		return
	}
	m.ConnectivityActions.WithLabelValues(actionType, result(err)).Inc()
}

// WriteTextfile dumps the registry in Prometheus text format for the
// node-exporter textfile collector. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
