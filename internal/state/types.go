// Package state defines the normalized snapshot model for the monitoring
// dashboard and the trust boundary that converts raw wire payloads into it.
package state

import "time"

// PowerMode is the reported power mode of the monitored system.
type PowerMode string

const (
	PowerModeIdle        PowerMode = "IDLE"
	PowerModeActive      PowerMode = "ACTIVE"
	PowerModeAlert       PowerMode = "ALERT"
	PowerModeMaintenance PowerMode = "MAINTENANCE"
)

// ComponentStatus describes the health of a remote subsystem.
type ComponentStatus string

const (
	StatusOnline   ComponentStatus = "online"
	StatusDegraded ComponentStatus = "degraded"
	StatusOffline  ComponentStatus = "offline"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SystemStatus holds the monitored system's health fields. All numeric fields
// are clamped to their documented ranges during normalization.
type SystemStatus struct {
	PowerMode        PowerMode       `json:"power_mode"`
	BatteryMinutes   float64         `json:"battery_minutes"` // >= 0
	CPUPercent       float64         `json:"cpu_percent"`     // [0,100]
	StoragePercent   float64         `json:"storage_percent"` // [0,100]
	CameraStatus     ComponentStatus `json:"camera_status"`
	ProcessingStatus ComponentStatus `json:"processing_status"`
	UptimeSeconds    float64         `json:"uptime_seconds"` // >= 0
}

// Position is a tracked entity's location in the camera frame.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Track is one tracked entity.
type Track struct {
	ID          string    `json:"id"`
	Class       string    `json:"class"`
	ThreatScore float64   `json:"threat_score"` // [0,100]
	Position    Position  `json:"position"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Alert is one active alert raised by the remote system.
type Alert struct {
	ID       string    `json:"id"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// NormalizedState is the canonical internal snapshot. Every field holds a
// concrete, type-correct value; collections are empty rather than nil.
// Snapshots are immutable by convention once produced: they are constructed
// fresh on every normalization pass and shared read-only between subscribers.
type NormalizedState struct {
	System     SystemStatus `json:"system"`
	Tracks     []Track      `json:"tracks"`
	Alerts     []Alert      `json:"alerts"`
	ObservedAt time.Time    `json:"observed_at"`
	Version    string       `json:"version"`
}

// Default returns a fully populated snapshot representing "nothing known yet":
// idle power, offline camera and processing, empty collections.
func Default() *NormalizedState {
	return &NormalizedState{
		System: SystemStatus{
			PowerMode:        PowerModeIdle,
			CameraStatus:     StatusOffline,
			ProcessingStatus: StatusOffline,
		},
		Tracks: []Track{},
		Alerts: []Alert{},
	}
}

// Clone returns a deep copy. Collections are copied so the original stays
// untouched if the copy is modified before publication.
func (s *NormalizedState) Clone() *NormalizedState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Tracks = make([]Track, len(s.Tracks))
	copy(clone.Tracks, s.Tracks)
	clone.Alerts = make([]Alert, len(s.Alerts))
	copy(clone.Alerts, s.Alerts)
	return &clone
}

// MarkOffline returns a copy of the snapshot with camera and processing status
// forced to offline. Used when the transport layer has lost the remote system:
// consumers render the last known data with an explicit offline indication.
func (s *NormalizedState) MarkOffline() *NormalizedState {
	clone := s.Clone()
	clone.System.CameraStatus = StatusOffline
	clone.System.ProcessingStatus = StatusOffline
	return clone
}
