package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The snapshot field names are consumed verbatim by the debug panel.
func TestTelemetrySnapshotWireFieldNames(t *testing.T) {
	snap := TelemetrySnapshot{
		NetworkQuality:   QualityFair,
		AverageRTT:       180.5,
		RTTVariance:      12.25,
		CongestionWindow: 24,
		InSlowStart:      true,
		BufferedAmount:   2048,
		TransferSpeed:    1.5e6,
		PeersConnected:   3,
		TrackCount:       1,
		FPS:              29.7,
		FrameDrops:       4,
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{
		"networkQuality", "averageRTT", "rttVariance", "congestionWindow",
		"inSlowStart", "bufferedAmount", "transferSpeed", "peersConnected",
		"trackCount", "fps", "frameDrops",
	} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 11)
	assert.Equal(t, "fair", fields["networkQuality"])
}
