package state

import (
	"log/slog"

	"github.com/vantagesec/sentinel-go/internal/observability"
)

// RawPayload is an untrusted, loosely typed wire payload, typically the result
// of decoding a JSON envelope. No invariants are guaranteed.
type RawPayload map[string]any

// Diagnostic records one default substitution made during normalization,
// carrying the original malformed value for diagnosis.
type Diagnostic struct {
	Field    string // dotted path of the offending field
	Reason   string // why the value was rejected
	Original any    // the raw value that was rejected, nil if absent
}

// Normalizer is the sole trust boundary between raw wire payloads and the
// typed snapshot model. It never fails outward: every structural violation is
// replaced by a documented default and surfaced as a warning diagnostic.
type Normalizer struct {
	logger  *slog.Logger
	metrics *observability.SyncMetrics
}

// NewNormalizer creates a Normalizer. Both logger and metrics may be nil, in
// which case diagnostics are only returned, not emitted.
func NewNormalizer(logger *slog.Logger, metrics *observability.SyncMetrics) *Normalizer {
	return &Normalizer{logger: logger, metrics: metrics}
}

// Normalize converts a raw payload into a fully populated NormalizedState.
// Diagnostics for substituted fields are logged as warnings and counted;
// the returned snapshot is always complete and type-correct.
func (n *Normalizer) Normalize(raw RawPayload) *NormalizedState {
	snapshot, diags := n.NormalizeWithDiagnostics(raw)
	for i := range diags {
		d := &diags[i]
		if n.logger != nil {
			n.logger.Warn("malformed field replaced with default",
				"field", d.Field,
				"reason", d.Reason,
				"original", d.Original)
		}
		if n.metrics != nil {
			n.metrics.Substitutions.Inc()
		}
	}
	return snapshot
}

// NormalizeWithDiagnostics is Normalize with the substitution diagnostics
// returned to the caller. Output is deterministic: equivalent raw input yields
// identical output, with no wall-clock dependence beyond timestamp passthrough.
func (n *Normalizer) NormalizeWithDiagnostics(raw RawPayload) (*NormalizedState, []Diagnostic) {
	var diags []Diagnostic
	snapshot := Default()

	if raw == nil {
		diags = append(diags, Diagnostic{Field: "envelope", Reason: "payload absent"})
		return snapshot, diags
	}

	if ok, valid := rawBool(raw["success"]); !valid {
		diags = append(diags, Diagnostic{Field: "success", Reason: "missing or not a boolean", Original: raw["success"]})
	} else if !ok {
		diags = append(diags, Diagnostic{Field: "success", Reason: "envelope reports failure"})
	}

	snapshot.ObservedAt = rawTime(raw, "timestamp", &diags)
	snapshot.Version = rawString(raw, "version", "", &diags)

	data, ok := rawMap(raw["data"])
	if !ok {
		diags = append(diags, Diagnostic{Field: "data", Reason: "missing or not an object", Original: raw["data"]})
		return snapshot, diags
	}

	if system, ok := rawMap(data["system"]); ok {
		snapshot.System = normalizeSystem(system, &diags)
	} else {
		diags = append(diags, Diagnostic{Field: "data.system", Reason: "missing or not an object", Original: data["system"]})
	}

	snapshot.Tracks = normalizeTracks(data, &diags)
	snapshot.Alerts = normalizeAlerts(data, &diags)

	return snapshot, diags
}

func normalizeSystem(system map[string]any, diags *[]Diagnostic) SystemStatus {
	return SystemStatus{
		PowerMode:        normalizePowerMode(system, diags),
		BatteryMinutes:   rawClampedFloat(system, "battery_minutes", "data.system.battery_minutes", 0, maxBatteryMinutes, diags),
		CPUPercent:       rawClampedFloat(system, "cpu_percent", "data.system.cpu_percent", 0, 100, diags),
		StoragePercent:   rawClampedFloat(system, "storage_percent", "data.system.storage_percent", 0, 100, diags),
		CameraStatus:     normalizeComponentStatus(system, "camera_status", "data.system.camera_status", diags),
		ProcessingStatus: normalizeComponentStatus(system, "processing_status", "data.system.processing_status", diags),
		UptimeSeconds:    rawClampedFloat(system, "uptime_seconds", "data.system.uptime_seconds", 0, maxUptimeSeconds, diags),
	}
}

// Upper clamp bounds. Battery runtime and uptime have no natural ceiling in
// the wire contract; these bounds only reject NaN/Inf style garbage.
const (
	maxBatteryMinutes = 1 << 20
	maxUptimeSeconds  = 1 << 32
)

func normalizePowerMode(system map[string]any, diags *[]Diagnostic) PowerMode {
	s, ok := system["power_mode"].(string)
	if !ok {
		*diags = append(*diags, Diagnostic{Field: "data.system.power_mode", Reason: "missing or not a string", Original: system["power_mode"]})
		return PowerModeIdle
	}
	switch mode := PowerMode(s); mode {
	case PowerModeIdle, PowerModeActive, PowerModeAlert, PowerModeMaintenance:
		return mode
	default:
		*diags = append(*diags, Diagnostic{Field: "data.system.power_mode", Reason: "unknown power mode", Original: s})
		return PowerModeIdle
	}
}

func normalizeComponentStatus(m map[string]any, key, field string, diags *[]Diagnostic) ComponentStatus {
	s, ok := m[key].(string)
	if !ok {
		*diags = append(*diags, Diagnostic{Field: field, Reason: "missing or not a string", Original: m[key]})
		return StatusOffline
	}
	switch status := ComponentStatus(s); status {
	case StatusOnline, StatusDegraded, StatusOffline:
		return status
	default:
		*diags = append(*diags, Diagnostic{Field: field, Reason: "unknown status", Original: s})
		return StatusOffline
	}
}

func normalizeSeverity(m map[string]any, field string, diags *[]Diagnostic) Severity {
	s, ok := m["severity"].(string)
	if !ok {
		*diags = append(*diags, Diagnostic{Field: field, Reason: "missing or not a string", Original: m["severity"]})
		return SeverityInfo
	}
	switch severity := Severity(s); severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return severity
	default:
		*diags = append(*diags, Diagnostic{Field: field, Reason: "unknown severity", Original: s})
		return SeverityInfo
	}
}

// normalizeTracks converts the raw track collection. Entries that are not
// objects or lack a string id are dropped: an unidentifiable entity cannot be
// tracked across snapshots, so substituting a default would invent entities.
func normalizeTracks(data map[string]any, diags *[]Diagnostic) []Track {
	tracks := []Track{}
	items, ok := rawSlice(data, "tracks", "data.tracks", diags)
	if !ok {
		return tracks
	}
	for i, item := range items {
		entry, ok := rawMap(item)
		if !ok {
			*diags = append(*diags, Diagnostic{Field: field("data.tracks", i), Reason: "entry is not an object", Original: item})
			continue
		}
		id, ok := entry["id"].(string)
		if !ok || id == "" {
			*diags = append(*diags, Diagnostic{Field: field("data.tracks", i) + ".id", Reason: "missing or not a string", Original: entry["id"]})
			continue
		}
		track := Track{
			ID:          id,
			Class:       rawString(entry, "class", "unknown", diags, field("data.tracks", i)+".class"),
			ThreatScore: rawClampedFloat(entry, "threat_score", field("data.tracks", i)+".threat_score", 0, 100, diags),
			FirstSeen:   rawTime(entry, "first_seen", diags, field("data.tracks", i)+".first_seen"),
			LastSeen:    rawTime(entry, "last_seen", diags, field("data.tracks", i)+".last_seen"),
		}
		if pos, ok := rawMap(entry["position"]); ok {
			track.Position = Position{
				X: rawClampedFloat(pos, "x", field("data.tracks", i)+".position.x", -1e9, 1e9, diags),
				Y: rawClampedFloat(pos, "y", field("data.tracks", i)+".position.y", -1e9, 1e9, diags),
			}
		} else {
			*diags = append(*diags, Diagnostic{Field: field("data.tracks", i) + ".position", Reason: "missing or not an object", Original: entry["position"]})
		}
		tracks = append(tracks, track)
	}
	return tracks
}

func normalizeAlerts(data map[string]any, diags *[]Diagnostic) []Alert {
	alerts := []Alert{}
	items, ok := rawSlice(data, "alerts", "data.alerts", diags)
	if !ok {
		return alerts
	}
	for i, item := range items {
		entry, ok := rawMap(item)
		if !ok {
			*diags = append(*diags, Diagnostic{Field: field("data.alerts", i), Reason: "entry is not an object", Original: item})
			continue
		}
		id, ok := entry["id"].(string)
		if !ok || id == "" {
			*diags = append(*diags, Diagnostic{Field: field("data.alerts", i) + ".id", Reason: "missing or not a string", Original: entry["id"]})
			continue
		}
		alerts = append(alerts, Alert{
			ID:       id,
			Severity: normalizeSeverity(entry, field("data.alerts", i)+".severity", diags),
			Message:  rawString(entry, "message", "", diags, field("data.alerts", i)+".message"),
			RaisedAt: rawTime(entry, "raised_at", diags, field("data.alerts", i)+".raised_at"),
		})
	}
	return alerts
}
