package domain

import "time"

// NetworkQuality is the coarse link classification shown in the debug panel.
type NetworkQuality string

const (
	QualityExcellent NetworkQuality = "excellent"
	QualityGood      NetworkQuality = "good"
	QualityFair      NetworkQuality = "fair"
	QualityPoor      NetworkQuality = "poor"
)

// TelemetrySnapshot is the aggregate observability surface. Field names and
// units are a wire contract with the debug panel and must not change.
type TelemetrySnapshot struct {
	NetworkQuality   NetworkQuality `json:"networkQuality"`
	AverageRTT       float64        `json:"averageRTT"`  // milliseconds
	RTTVariance      float64        `json:"rttVariance"` // milliseconds
	CongestionWindow float64        `json:"congestionWindow"`
	InSlowStart      bool           `json:"inSlowStart"`
	BufferedAmount   int64          `json:"bufferedAmount"`
	TransferSpeed    float64        `json:"transferSpeed"` // bytes per second
	PeersConnected   int            `json:"peersConnected"`
	TrackCount       int            `json:"trackCount"`
	FPS              float64        `json:"fps"`
	FrameDrops       uint64         `json:"frameDrops"`
}

// PeerTelemetry is the per-peer view behind the aggregate snapshot.
type PeerTelemetry struct {
	PeerID           PeerID         `json:"peerId"`
	NetworkQuality   NetworkQuality `json:"networkQuality"`
	RTTMean          float64        `json:"rttMean"`     // milliseconds
	RTTVariance      float64        `json:"rttVariance"` // milliseconds
	CongestionWindow float64        `json:"congestionWindow"`
	SlowStartThresh  float64        `json:"slowStartThreshold"`
	InSlowStart      bool           `json:"inSlowStart"`
	BytesInFlight    int64          `json:"bytesInFlight"`
	BufferedAmount   int64          `json:"bufferedAmount"`
	FramesSent       uint64         `json:"framesSent"`
	FramesDropped    uint64         `json:"framesDropped"`
	BytesSent        uint64         `json:"bytesSent"`
	LastAckAt        time.Time      `json:"lastAckAt"`
}
