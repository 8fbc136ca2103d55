package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsFullyPopulated(t *testing.T) {
	t.Parallel()

	s := Default()
	assert.Equal(t, PowerModeIdle, s.System.PowerMode)
	assert.Equal(t, StatusOffline, s.System.CameraStatus)
	assert.Equal(t, StatusOffline, s.System.ProcessingStatus)
	require.NotNil(t, s.Tracks)
	require.NotNil(t, s.Alerts)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	original := Default()
	original.Tracks = []Track{{ID: "trk-1", Class: "person"}}

	clone := original.Clone()
	clone.Tracks[0].Class = "vehicle"
	clone.System.PowerMode = PowerModeAlert

	assert.Equal(t, "person", original.Tracks[0].Class)
	assert.Equal(t, PowerModeIdle, original.System.PowerMode)
}

func TestMarkOfflineLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	original := Default()
	original.System.CameraStatus = StatusOnline
	original.System.ProcessingStatus = StatusOnline

	offline := original.MarkOffline()

	assert.Equal(t, StatusOffline, offline.System.CameraStatus)
	assert.Equal(t, StatusOffline, offline.System.ProcessingStatus)
	assert.Equal(t, StatusOnline, original.System.CameraStatus)
}

func TestCloneNil(t *testing.T) {
	t.Parallel()

	var s *NormalizedState
	assert.Nil(t, s.Clone())
}
