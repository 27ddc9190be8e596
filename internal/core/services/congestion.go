package services

import (
	"math"
	"time"

	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

// CongestionController is a Reno-style slow-start/congestion-avoidance state
// machine driven by application-level ack round trips and transport
// backpressure. The window is tracked in abstract units; one unit corresponds
// to unitBytes on the wire (the device strategy's chunk size), which keeps
// the unit-to-byte mapping consistent per peer.
//
// The controller is not safe for concurrent use. It is owned by exactly one
// PeerLink and every entry point runs inside the session's single-writer
// loop.
type CongestionController struct {
	cfg       config.CongestionConfig
	unitBytes float64

	cwnd        float64
	ssthresh    float64
	inSlowStart bool

	// Jacobson/Karn estimator state, in milliseconds.
	rttMean     float64
	rttVariance float64
	hasRTT      bool

	// Ring buffer of recent RTT samples, kept for the debug surface.
	rttSamples []float64
	sampleHead int
	sampleLen  int

	spikeRun            int
	bytesInFlight       int64
	consecutiveTimeouts int
	lastAckAt           time.Time
}

// WindowSnapshot is the controller state exposed for telemetry. Read-only.
type WindowSnapshot struct {
	Cwnd                float64
	SSThresh            float64
	InSlowStart         bool
	RTTMean             float64 // milliseconds
	RTTVariance         float64 // milliseconds
	BytesInFlight       int64
	ConsecutiveTimeouts int
	LastAckAt           time.Time
}

// NewCongestionController creates a controller with the configured initial
// window. unitBytes must match the chunk size this peer's units are sent at.
func NewCongestionController(cfg config.CongestionConfig, unitBytes int, now time.Time) *CongestionController {
	return &CongestionController{
		cfg:         cfg,
		unitBytes:   float64(unitBytes),
		cwnd:        cfg.InitialWindow,
		ssthresh:    cfg.InitialSSThresh,
		inSlowStart: true,
		rttSamples:  make([]float64, cfg.RTTSampleWindow),
		lastAckAt:   now,
	}
}

// SendAllowed reports whether sizeBytes more may be put in flight without
// exceeding the window.
func (c *CongestionController) SendAllowed(sizeBytes int) bool {
	return float64(c.bytesInFlight)+float64(sizeBytes) <= c.cwnd*c.unitBytes
}

// OnSent records bytes handed to the transport.
func (c *CongestionController) OnSent(sizeBytes int) {
	c.bytesInFlight += int64(sizeBytes)
}

// OnAck consumes one acknowledged round trip. ackedBytes is zero for
// heartbeat probes, which update the RTT estimator without growing the
// window. An RTT spike sustained over the configured sample count counts as
// a congestion signal.
func (c *CongestionController) OnAck(rtt time.Duration, ackedBytes int, now time.Time) {
	c.consecutiveTimeouts = 0
	c.lastAckAt = now

	if ackedBytes > 0 {
		c.bytesInFlight -= int64(ackedBytes)
		if c.bytesInFlight < 0 {
			c.bytesInFlight = 0
		}
	}

	if c.observeRTT(rtt) {
		c.OnCongestionSignal()
		return
	}

	if ackedBytes <= 0 {
		return
	}

	ackedUnits := float64(ackedBytes) / c.unitBytes
	if c.inSlowStart {
		// Multiplicative growth: with the default factor of 2 the window
		// doubles every RTT's worth of acks.
		c.cwnd += (c.cfg.SlowStartGrowth - 1) * ackedUnits
		if c.cwnd >= c.ssthresh {
			c.inSlowStart = false
		}
	} else {
		// Additive probing: roughly one unit per RTT.
		c.cwnd += ackedUnits / c.cwnd
	}
}

// OnCongestionSignal halves the window and leaves slow start.
func (c *CongestionController) OnCongestionSignal() {
	c.ssthresh = math.Max(c.cwnd/2, c.cfg.MinWindow)
	c.cwnd = c.ssthresh
	c.inSlowStart = false
	c.spikeRun = 0
}

// OnTimeout records a missed ack deadline. A single timeout behaves like a
// congestion signal; reaching the configured consecutive count collapses the
// window to the minimum and re-enters slow start. Outstanding bytes are
// considered lost either way.
func (c *CongestionController) OnTimeout() {
	c.consecutiveTimeouts++
	c.bytesInFlight = 0

	if c.consecutiveTimeouts >= c.cfg.TimeoutResetCount {
		c.ssthresh = math.Max(c.cwnd/2, c.cfg.MinWindow)
		c.cwnd = c.cfg.MinWindow
		c.inSlowStart = true
		return
	}
	c.OnCongestionSignal()
}

// CheckBackpressure treats the transport's buffered-but-unsent bytes as a
// congestion signal once they cross the high-water mark. Returns true when
// the signal fired.
func (c *CongestionController) CheckBackpressure(bufferedAmount int64) bool {
	if bufferedAmount <= c.cfg.BufferHighWaterBytes {
		return false
	}
	c.OnCongestionSignal()
	return true
}

// RTO is the ack deadline: rttMean + deviationFactor*rttVariance, clamped to
// the configured bounds.
func (c *CongestionController) RTO() time.Duration {
	if !c.hasRTT {
		return c.cfg.MaxRTO
	}
	rto := time.Duration((c.rttMean + c.cfg.DeviationFactor*c.rttVariance) * float64(time.Millisecond))
	if rto < c.cfg.MinRTO {
		return c.cfg.MinRTO
	}
	if rto > c.cfg.MaxRTO {
		return c.cfg.MaxRTO
	}
	return rto
}

// ConsecutiveTimeouts reports missed deadlines since the last ack.
func (c *CongestionController) ConsecutiveTimeouts() int {
	return c.consecutiveTimeouts
}

// LastAckAt reports when the last ack or heartbeat reply arrived.
func (c *CongestionController) LastAckAt() time.Time {
	return c.lastAckAt
}

// Snapshot exposes the controller state for the telemetry aggregator.
func (c *CongestionController) Snapshot() WindowSnapshot {
	return WindowSnapshot{
		Cwnd:                c.cwnd,
		SSThresh:            c.ssthresh,
		InSlowStart:         c.inSlowStart,
		RTTMean:             c.rttMean,
		RTTVariance:         c.rttVariance,
		BytesInFlight:       c.bytesInFlight,
		ConsecutiveTimeouts: c.consecutiveTimeouts,
		LastAckAt:           c.lastAckAt,
	}
}

// observeRTT folds one sample into the smoothed estimator and reports
// whether a sustained spike crossed the congestion threshold. Samples above
// the threshold are held out of the estimator until the run either resolves
// as noise or reaches the configured count; folding them in immediately
// would balloon the variance and let a step change mask itself.
func (c *CongestionController) observeRTT(rtt time.Duration) bool {
	sample := float64(rtt) / float64(time.Millisecond)
	if sample < 0 {
		return false
	}

	c.recordSample(sample)

	if !c.hasRTT {
		c.rttMean = sample
		c.rttVariance = sample / 2
		c.hasRTT = true
		return false
	}

	if sample > c.rttMean+c.cfg.DeviationFactor*c.rttVariance {
		c.spikeRun++
		if c.spikeRun < c.cfg.SpikeSampleCount {
			return false
		}
		// Confirmed shift: start adapting the estimator to the new level.
		c.updateEstimator(sample)
		return true
	}

	c.spikeRun = 0
	c.updateEstimator(sample)
	return false
}

func (c *CongestionController) updateEstimator(sample float64) {
	err := sample - c.rttMean
	c.rttMean += c.cfg.RTTAlpha * err
	c.rttVariance += c.cfg.RTTVarianceBeta * (math.Abs(err) - c.rttVariance)
}

func (c *CongestionController) recordSample(sample float64) {
	c.rttSamples[c.sampleHead] = sample
	c.sampleHead = (c.sampleHead + 1) % len(c.rttSamples)
	if c.sampleLen < len(c.rttSamples) {
		c.sampleLen++
	}
}

// RecentRTTSamples returns the ring buffer contents, oldest first.
func (c *CongestionController) RecentRTTSamples() []float64 {
	out := make([]float64, 0, c.sampleLen)
	start := (c.sampleHead - c.sampleLen + len(c.rttSamples)) % len(c.rttSamples)
	for i := 0; i < c.sampleLen; i++ {
		out = append(out, c.rttSamples[(start+i)%len(c.rttSamples)])
	}
	return out
}
