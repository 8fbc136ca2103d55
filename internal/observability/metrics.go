// Package observability provides Prometheus metrics for the synchronization layer.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates all metric groups behind a single registry.
type Metrics struct {
	Sync     *SyncMetrics
	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry, so independent
// synchronizer instances in tests do not collide on metric registration.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	syncMetrics, err := NewSyncMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	return &Metrics{
		Sync:     syncMetrics,
		registry: registry,
	}, nil
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SyncMetrics contains all Prometheus metrics related to state synchronization.
type SyncMetrics struct {
	ConnectionStatus  *prometheus.GaugeVec
	SnapshotsReceived *prometheus.CounterVec
	Substitutions     prometheus.Counter
	Publishes         prometheus.Counter
	Coalesced         prometheus.Counter
	ListenerFailures  prometheus.Counter
	TransportErrors   *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	ModeSwitches      prometheus.Counter
	LastDeliveryTime  prometheus.Gauge
	FetchDuration     prometheus.Histogram
}

// NewSyncMetrics creates a new instance of SyncMetrics registered on registry.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{
		ConnectionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sync_connection_status",
			Help: "Current transport connection status per mode (1 for active, 0 for inactive)",
		}, []string{"mode"}),
		SnapshotsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_snapshots_received_total",
			Help: "Total number of raw snapshots received, by transport mode",
		}, []string{"mode"}),
		Substitutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_normalize_substitutions_total",
			Help: "Total number of malformed fields replaced with defaults during normalization",
		}),
		Publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_publishes_total",
			Help: "Total number of snapshots published to subscribers",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_snapshots_coalesced_total",
			Help: "Total number of snapshots discarded by coalescing in favor of a newer one",
		}),
		ListenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_listener_failures_total",
			Help: "Total number of subscriber callbacks that failed during fan-out",
		}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_transport_errors_total",
			Help: "Total number of transport errors, by mode",
		}, []string{"mode"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_reconnect_attempts_total",
			Help: "Total number of push reconnection attempts",
		}),
		ModeSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_mode_switches_total",
			Help: "Total number of switches between push and pull delivery modes",
		}),
		LastDeliveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_last_delivery_time_seconds",
			Help: "Timestamp of the last snapshot delivered to subscribers",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_fetch_duration_seconds",
			Help:    "Duration of pull fetch operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	collectors := []prometheus.Collector{
		m.ConnectionStatus,
		m.SnapshotsReceived,
		m.Substitutions,
		m.Publishes,
		m.Coalesced,
		m.ListenerFailures,
		m.TransportErrors,
		m.ReconnectAttempts,
		m.ModeSwitches,
		m.LastDeliveryTime,
		m.FetchDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register sync metrics: %w", err)
		}
	}

	return m, nil
}

// UpdateConnectionStatus marks the given mode as active or inactive.
func (m *SyncMetrics) UpdateConnectionStatus(mode string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.ConnectionStatus.WithLabelValues(mode).Set(v)
}

// IncrementSnapshotsReceived increments the received counter for a mode.
func (m *SyncMetrics) IncrementSnapshotsReceived(mode string) {
	m.SnapshotsReceived.WithLabelValues(mode).Inc()
}

// IncrementTransportErrors increments the transport error counter for a mode.
func (m *SyncMetrics) IncrementTransportErrors(mode string) {
	m.TransportErrors.WithLabelValues(mode).Inc()
}

// RecordPublish records a completed fan-out delivery.
func (m *SyncMetrics) RecordPublish() {
	m.Publishes.Inc()
	m.LastDeliveryTime.SetToCurrentTime()
}
