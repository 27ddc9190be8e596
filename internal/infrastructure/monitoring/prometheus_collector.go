package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

// PrometheusCollector mirrors the telemetry surface into Prometheus metrics.
// It implements ports.TelemetrySink and is driven by the aggregator's
// sampling cadence.
type PrometheusCollector struct {
	networkQuality   prometheus.Gauge
	averageRTT       prometheus.Gauge
	rttVariance      prometheus.Gauge
	congestionWindow prometheus.Gauge
	slowStart        prometheus.Gauge
	bufferedBytes    prometheus.Gauge
	transferSpeed    prometheus.Gauge
	peersConnected   prometheus.Gauge
	trackCount       prometheus.Gauge
	fps              prometheus.Gauge
	frameDrops       prometheus.Gauge

	peerRTT     *prometheus.GaugeVec
	peerWindow  *prometheus.GaugeVec
	peerDrops   *prometheus.GaugeVec
	peerQuality *prometheus.GaugeVec

	rttObserved prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		networkQuality: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_network_quality",
			Help: "Aggregate link classification (0=excellent 1=good 2=fair 3=poor)",
		}),
		averageRTT: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_average_rtt_milliseconds",
			Help: "Mean smoothed RTT across peers",
		}),
		rttVariance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_rtt_variance_milliseconds",
			Help: "Mean RTT variance across peers",
		}),
		congestionWindow: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_congestion_window_units",
			Help: "Mean congestion window across peers, in send units",
		}),
		slowStart: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_slow_start",
			Help: "1 when any peer link is still in slow start",
		}),
		bufferedBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_buffered_bytes",
			Help: "Transport bytes buffered but not yet flushed, summed over peers",
		}),
		transferSpeed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_transfer_speed_bytes_per_second",
			Help: "Outbound media throughput over the last sample interval",
		}),
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_peers_connected",
			Help: "Number of connected peers",
		}),
		trackCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_track_count",
			Help: "Number of active outbound tracks",
		}),
		fps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_fps",
			Help: "Units published per second over the last sample interval",
		}),
		frameDrops: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ponslink_frame_drops_total",
			Help: "Frames dropped by window gating since the daemon started",
		}),

		peerRTT: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ponslink_peer_rtt_milliseconds",
			Help: "Smoothed RTT per peer",
		}, []string{"peer_id"}),
		peerWindow: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ponslink_peer_congestion_window_units",
			Help: "Congestion window per peer, in send units",
		}, []string{"peer_id"}),
		peerDrops: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ponslink_peer_frame_drops",
			Help: "Frames dropped per peer for the current session",
		}, []string{"peer_id"}),
		peerQuality: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ponslink_peer_network_quality",
			Help: "Link classification per peer (0=excellent 1=good 2=fair 3=poor)",
		}, []string{"peer_id"}),

		rttObserved: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ponslink_rtt_seconds",
			Help:    "Distribution of smoothed per-peer RTT at sample time",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.3, 0.5, 1, 2},
		}),
	}
}

// PublishTelemetry implements ports.TelemetrySink.
func (p *PrometheusCollector) PublishTelemetry(snapshot domain.TelemetrySnapshot, peers []domain.PeerTelemetry) {
	p.networkQuality.Set(float64(qualityValue(snapshot.NetworkQuality)))
	p.averageRTT.Set(snapshot.AverageRTT)
	p.rttVariance.Set(snapshot.RTTVariance)
	p.congestionWindow.Set(snapshot.CongestionWindow)
	p.bufferedBytes.Set(float64(snapshot.BufferedAmount))
	p.transferSpeed.Set(snapshot.TransferSpeed)
	p.peersConnected.Set(float64(snapshot.PeersConnected))
	p.trackCount.Set(float64(snapshot.TrackCount))
	p.fps.Set(snapshot.FPS)
	p.frameDrops.Set(float64(snapshot.FrameDrops))
	if snapshot.InSlowStart {
		p.slowStart.Set(1)
	} else {
		p.slowStart.Set(0)
	}

	// Stale peer labels would keep reporting the last seen values.
	p.peerRTT.Reset()
	p.peerWindow.Reset()
	p.peerDrops.Reset()
	p.peerQuality.Reset()
	for _, peer := range peers {
		labels := prometheus.Labels{"peer_id": string(peer.PeerID)}
		p.peerRTT.With(labels).Set(peer.RTTMean)
		p.peerWindow.With(labels).Set(peer.CongestionWindow)
		p.peerDrops.With(labels).Set(float64(peer.FramesDropped))
		p.peerQuality.With(labels).Set(float64(qualityValue(peer.NetworkQuality)))
		if peer.RTTMean > 0 {
			p.rttObserved.Observe(peer.RTTMean / 1000)
		}
	}
}

func qualityValue(q domain.NetworkQuality) int {
	switch q {
	case domain.QualityExcellent:
		return 0
	case domain.QualityGood:
		return 1
	case domain.QualityFair:
		return 2
	default:
		return 3
	}
}
