package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

const testUnitBytes = 16 * 1024

func newTestController(t *testing.T) *CongestionController {
	t.Helper()
	return NewCongestionController(config.DefaultConfig().Congestion, testUnitBytes, time.Unix(0, 0))
}

func TestSlowStartGrowsMonotonicallyAndBounded(t *testing.T) {
	c := newTestController(t)
	growth := config.DefaultConfig().Congestion.SlowStartGrowth
	now := time.Unix(0, 0)

	prev := c.Snapshot().Cwnd
	for i := 0; i < 20 && c.Snapshot().InSlowStart; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)

		cur := c.Snapshot().Cwnd
		assert.GreaterOrEqual(t, cur, prev, "cwnd must not shrink on clean acks in slow start")
		// Per-ack growth never exceeds the configured multiplicative factor.
		assert.LessOrEqual(t, cur, prev*growth+1e-9)
		prev = cur
	}
}

func TestSlowStartExitsAtThreshold(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	cfg.InitialSSThresh = 8
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	now := time.Unix(0, 0)
	for i := 0; i < 16; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}

	snap := c.Snapshot()
	assert.False(t, snap.InSlowStart)
	assert.GreaterOrEqual(t, snap.Cwnd, cfg.InitialSSThresh)
}

func TestCongestionAvoidanceGrowsAdditively(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	cfg.InitialSSThresh = 4
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	now := time.Unix(0, 0)
	// Drive past the threshold into congestion avoidance.
	for i := 0; i < 4; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}
	require.False(t, c.Snapshot().InSlowStart)

	before := c.Snapshot().Cwnd
	c.OnSent(testUnitBytes)
	now = now.Add(20 * time.Millisecond)
	c.OnAck(20*time.Millisecond, testUnitBytes, now)
	after := c.Snapshot().Cwnd

	assert.InDelta(t, before+1/before, after, 1e-9, "avoidance adds ~1/cwnd per acked unit")
}

func TestCongestionSignalHalvesWindow(t *testing.T) {
	c := newTestController(t)
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}

	before := c.Snapshot().Cwnd
	c.OnCongestionSignal()
	snap := c.Snapshot()

	assert.InDelta(t, before/2, snap.SSThresh, 1e-9)
	assert.InDelta(t, snap.SSThresh, snap.Cwnd, 1e-9)
	assert.False(t, snap.InSlowStart)
}

func TestThreeTimeoutsResetToMinimumAndSlowStart(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}

	for i := 0; i < cfg.TimeoutResetCount; i++ {
		c.OnTimeout()
	}

	snap := c.Snapshot()
	assert.Equal(t, cfg.MinWindow, snap.Cwnd)
	assert.True(t, snap.InSlowStart)
	assert.Equal(t, cfg.TimeoutResetCount, c.ConsecutiveTimeouts())
}

func TestAckClearsTimeoutRun(t *testing.T) {
	c := newTestController(t)
	c.OnTimeout()
	c.OnTimeout()
	require.Equal(t, 2, c.ConsecutiveTimeouts())

	c.OnAck(20*time.Millisecond, 0, time.Unix(1, 0))
	assert.Zero(t, c.ConsecutiveTimeouts())
}

func TestSendAllowedNeverExceedsWindow(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	cfg.InitialWindow = 2
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	require.True(t, c.SendAllowed(testUnitBytes))
	c.OnSent(testUnitBytes)
	require.True(t, c.SendAllowed(testUnitBytes))
	c.OnSent(testUnitBytes)

	// Window is two units; a third in-flight unit must be refused.
	assert.False(t, c.SendAllowed(testUnitBytes))
	assert.False(t, c.SendAllowed(1))
}

func TestSustainedRTTSpikeFiresCongestionSignal(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}
	before := c.Snapshot().Cwnd

	// One outlier is tolerated.
	c.OnSent(testUnitBytes)
	c.OnAck(400*time.Millisecond, testUnitBytes, now)
	assert.InDelta(t, before+ackGrowth(c), c.Snapshot().Cwnd, before, "single spike must not halve")

	for i := 0; i < cfg.SpikeSampleCount; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(400 * time.Millisecond)
		c.OnAck(400*time.Millisecond, testUnitBytes, now)
	}
	assert.Less(t, c.Snapshot().Cwnd, before, "sustained spike must shrink the window")
	assert.False(t, c.Snapshot().InSlowStart)
}

// ackGrowth approximates the expected per-ack growth for delta assertions.
func ackGrowth(c *CongestionController) float64 {
	if c.Snapshot().InSlowStart {
		return 1
	}
	return 1 / c.Snapshot().Cwnd
}

func TestBackpressureHighWaterFiresSignal(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(20 * time.Millisecond)
		c.OnAck(20*time.Millisecond, testUnitBytes, now)
	}
	before := c.Snapshot().Cwnd

	assert.False(t, c.CheckBackpressure(cfg.BufferHighWaterBytes))
	assert.Equal(t, before, c.Snapshot().Cwnd)

	assert.True(t, c.CheckBackpressure(cfg.BufferHighWaterBytes+1))
	assert.InDelta(t, before/2, c.Snapshot().Cwnd, 1e-9)
}

func TestRTOTracksEstimator(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	// No samples yet: deadline stays at the conservative maximum.
	assert.Equal(t, cfg.MaxRTO, c.RTO())

	now := time.Unix(0, 0)
	for i := 0; i < 20; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(100 * time.Millisecond)
		c.OnAck(100*time.Millisecond, testUnitBytes, now)
	}

	rto := c.RTO()
	assert.GreaterOrEqual(t, rto, cfg.MinRTO)
	assert.LessOrEqual(t, rto, cfg.MaxRTO)
	// Stable 100ms RTT with shrinking variance should land near the mean.
	assert.Less(t, rto, 400*time.Millisecond)
}

func TestRecentRTTSamplesKeepsRingOrder(t *testing.T) {
	cfg := config.DefaultConfig().Congestion
	cfg.RTTSampleWindow = 4
	c := NewCongestionController(cfg, testUnitBytes, time.Unix(0, 0))

	now := time.Unix(0, 0)
	for i := 1; i <= 6; i++ {
		c.OnSent(testUnitBytes)
		now = now.Add(time.Duration(i) * time.Millisecond)
		c.OnAck(time.Duration(i)*time.Millisecond, testUnitBytes, now)
	}

	assert.Equal(t, []float64{3, 4, 5, 6}, c.RecentRTTSamples())
}
