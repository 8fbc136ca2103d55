package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawPayload() RawPayload {
	return RawPayload{
		"success":   true,
		"timestamp": "2026-08-30T12:00:00Z",
		"version":   "3",
		"data": map[string]any{
			"system": map[string]any{
				"power_mode":        "ACTIVE",
				"battery_minutes":   142.0,
				"cpu_percent":       37.5,
				"storage_percent":   81.0,
				"camera_status":     "online",
				"processing_status": "degraded",
				"uptime_seconds":    86400.0,
			},
			"tracks": []any{
				map[string]any{
					"id":           "trk-7",
					"class":        "person",
					"threat_score": 62.0,
					"position":     map[string]any{"x": 0.4, "y": 0.7},
					"first_seen":   "2026-08-30T11:58:00Z",
					"last_seen":    "2026-08-30T11:59:57Z",
				},
			},
			"alerts": []any{
				map[string]any{
					"id":        "alr-1",
					"severity":  "warning",
					"message":   "perimeter breach",
					"raised_at": "2026-08-30T11:59:00Z",
				},
			},
		},
	}
}

func TestNormalizeValidPayload(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil)
	snapshot, diags := n.NormalizeWithDiagnostics(validRawPayload())

	assert.Empty(t, diags)
	assert.Equal(t, PowerModeActive, snapshot.System.PowerMode)
	assert.InDelta(t, 142.0, snapshot.System.BatteryMinutes, 0.001)
	assert.Equal(t, StatusOnline, snapshot.System.CameraStatus)
	assert.Equal(t, StatusDegraded, snapshot.System.ProcessingStatus)
	assert.Equal(t, "3", snapshot.Version)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), snapshot.ObservedAt.UTC())

	require.Len(t, snapshot.Tracks, 1)
	assert.Equal(t, "trk-7", snapshot.Tracks[0].ID)
	assert.Equal(t, "person", snapshot.Tracks[0].Class)
	assert.InDelta(t, 0.4, snapshot.Tracks[0].Position.X, 0.001)

	require.Len(t, snapshot.Alerts, 1)
	assert.Equal(t, SeverityWarning, snapshot.Alerts[0].Severity)
}

// Malformed system fields, null tracks and absent alerts normalize to IDLE,
// clamped battery and empty collections, with one diagnostic per substitution.
func TestNormalizeMalformedPayload(t *testing.T) {
	t.Parallel()

	raw := RawPayload{
		"success":   true,
		"timestamp": "2026-08-30T12:00:00Z",
		"version":   "3",
		"data": map[string]any{
			"system": map[string]any{
				"power_mode":        "UNKNOWN_MODE",
				"battery_minutes":   -5.0,
				"cpu_percent":       37.5,
				"storage_percent":   81.0,
				"camera_status":     "online",
				"processing_status": "online",
				"uptime_seconds":    10.0,
			},
			"tracks": nil,
			// alerts absent entirely
		},
	}

	n := NewNormalizer(nil, nil)
	snapshot, diags := n.NormalizeWithDiagnostics(raw)

	assert.Equal(t, PowerModeIdle, snapshot.System.PowerMode)
	assert.Zero(t, snapshot.System.BatteryMinutes)
	require.NotNil(t, snapshot.Tracks)
	require.NotNil(t, snapshot.Alerts)
	assert.Empty(t, snapshot.Tracks)
	assert.Empty(t, snapshot.Alerts)

	fields := make([]string, 0, len(diags))
	for _, d := range diags {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{
		"data.system.power_mode",
		"data.system.battery_minutes",
		"data.tracks",
		"data.alerts",
	}, fields)
}

func TestNormalizeNeverReturnsNilFields(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil, nil)

	payloads := []RawPayload{
		nil,
		{},
		{"success": "yes"},
		{"success": true, "data": "not-an-object"},
		{"success": true, "data": map[string]any{"system": 42}},
		{"success": true, "data": map[string]any{
			"tracks": []any{"garbage", map[string]any{"class": "person"}},
			"alerts": []any{map[string]any{"severity": "critical"}},
		}},
	}

	for _, raw := range payloads {
		snapshot := n.Normalize(raw)
		require.NotNil(t, snapshot)
		assert.NotNil(t, snapshot.Tracks)
		assert.NotNil(t, snapshot.Alerts)
		assert.Equal(t, PowerModeIdle, snapshot.System.PowerMode)
		assert.Equal(t, StatusOffline, snapshot.System.CameraStatus)
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	t.Parallel()

	raw := validRawPayload()
	system := raw["data"].(map[string]any)["system"].(map[string]any)
	system["cpu_percent"] = 250.0
	system["storage_percent"] = -3.0

	n := NewNormalizer(nil, nil)
	snapshot, diags := n.NormalizeWithDiagnostics(raw)

	assert.InDelta(t, 100.0, snapshot.System.CPUPercent, 0.001)
	assert.Zero(t, snapshot.System.StoragePercent)
	assert.Len(t, diags, 2)
}

func TestNormalizeDropsUnidentifiableEntries(t *testing.T) {
	t.Parallel()

	raw := validRawPayload()
	data := raw["data"].(map[string]any)
	data["tracks"] = append(data["tracks"].([]any), map[string]any{
		"class":        "vehicle",
		"threat_score": 10.0,
	})

	n := NewNormalizer(nil, nil)
	snapshot, diags := n.NormalizeWithDiagnostics(raw)

	require.Len(t, snapshot.Tracks, 1)
	assert.Equal(t, "trk-7", snapshot.Tracks[0].ID)
	require.Len(t, diags, 1)
	assert.Equal(t, "data.tracks[1].id", diags[0].Field)
}

// Determinism: the same raw payload always yields identical output.
func TestNormalizeDeterministic(t *testing.T) {
	t.Parallel()

	raw := validRawPayload()
	raw["data"].(map[string]any)["system"].(map[string]any)["power_mode"] = "BOGUS"

	n := NewNormalizer(nil, nil)
	first := n.Normalize(raw)
	second := n.Normalize(raw)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first, second)
}

func TestNormalizeAcceptsUnixTimestamps(t *testing.T) {
	t.Parallel()

	raw := validRawPayload()
	raw["timestamp"] = 1756555200.0

	n := NewNormalizer(nil, nil)
	snapshot, diags := n.NormalizeWithDiagnostics(raw)

	assert.Empty(t, diags)
	assert.Equal(t, int64(1756555200), snapshot.ObservedAt.Unix())
}

func TestNormalizeIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	raw := validRawPayload()
	raw["extra"] = "ignored"
	raw["data"].(map[string]any)["system"].(map[string]any)["undocumented"] = 1.0

	n := NewNormalizer(nil, nil)
	_, diags := n.NormalizeWithDiagnostics(raw)
	assert.Empty(t, diags)
}
