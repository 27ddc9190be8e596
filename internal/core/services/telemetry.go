package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

// Aggregator samples every peer link on a fixed interval and rolls the
// counters up into the debug panel's telemetry surface. It is purely
// observational: it classifies and reports, but never feeds back into the
// congestion controllers.
type Aggregator struct {
	cfg    config.TelemetryConfig
	coord  *Coordinator
	logger *zap.SugaredLogger
	clk    clock.Clock

	mu    sync.Mutex
	sinks []ports.TelemetrySink

	lastBytesSent       uint64
	lastFramesPublished uint64
	lastSampleAt        time.Time
	lastQuality         map[domain.PeerID]domain.NetworkQuality

	latest      domain.TelemetrySnapshot
	latestPeers []domain.PeerTelemetry
}

func NewAggregator(cfg config.TelemetryConfig, coord *Coordinator, logger *zap.SugaredLogger, clk clock.Clock) *Aggregator {
	return &Aggregator{
		cfg:         cfg,
		coord:       coord,
		logger:      logger,
		clk:         clk,
		lastQuality: make(map[domain.PeerID]domain.NetworkQuality),
		latest: domain.TelemetrySnapshot{
			NetworkQuality: domain.QualityExcellent,
		},
	}
}

// AddSink registers a telemetry consumer (prometheus, websocket push).
func (a *Aggregator) AddSink(s ports.TelemetrySink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Run samples until the context ends.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := a.clk.NewTicker(a.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.Sample()
		}
	}
}

// Sample takes one telemetry snapshot. Exported so tests (and the debug API)
// can drive sampling deterministically.
func (a *Aggregator) Sample() {
	now := a.clk.Now()
	peers := a.coord.LinkStats()
	over := a.coord.Overview()

	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := now.Sub(a.lastSampleAt).Seconds()
	if a.lastSampleAt.IsZero() || elapsed <= 0 {
		elapsed = a.cfg.SampleInterval.Seconds()
	}

	snap := domain.TelemetrySnapshot{
		NetworkQuality: domain.QualityExcellent,
		PeersConnected: over.PeersConnected,
		TrackCount:     over.TrackCount,
		FrameDrops:     over.FramesDropped,
	}

	if over.BytesSent >= a.lastBytesSent {
		snap.TransferSpeed = float64(over.BytesSent-a.lastBytesSent) / elapsed
	}
	if over.FramesPublished >= a.lastFramesPublished {
		snap.FPS = float64(over.FramesPublished-a.lastFramesPublished) / elapsed
	}
	a.lastBytesSent = over.BytesSent
	a.lastFramesPublished = over.FramesPublished
	a.lastSampleAt = now

	seen := make(map[domain.PeerID]struct{}, len(peers))
	for i := range peers {
		p := &peers[i]
		p.NetworkQuality = a.Classify(p.RTTMean)
		seen[p.PeerID] = struct{}{}

		prev, known := a.lastQuality[p.PeerID]
		if known && prev != p.NetworkQuality {
			a.coord.NotifyQuality(p.PeerID, prev, p.NetworkQuality)
		}
		a.lastQuality[p.PeerID] = p.NetworkQuality

		snap.AverageRTT += p.RTTMean
		snap.RTTVariance += p.RTTVariance
		snap.CongestionWindow += p.CongestionWindow
		snap.BufferedAmount += p.BufferedAmount
		if p.InSlowStart {
			snap.InSlowStart = true
		}
		if qualityRank(p.NetworkQuality) > qualityRank(snap.NetworkQuality) {
			snap.NetworkQuality = p.NetworkQuality
		}
	}
	if len(peers) > 0 {
		n := float64(len(peers))
		snap.AverageRTT /= n
		snap.RTTVariance /= n
		snap.CongestionWindow /= n
	}
	for id := range a.lastQuality {
		if _, ok := seen[id]; !ok {
			delete(a.lastQuality, id)
		}
	}

	a.latest = snap
	a.latestPeers = peers
	for _, s := range a.sinks {
		s.PublishTelemetry(snap, peers)
	}
}

// Latest returns the most recent snapshot for pull-based consumers.
func (a *Aggregator) Latest() (domain.TelemetrySnapshot, []domain.PeerTelemetry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	peers := make([]domain.PeerTelemetry, len(a.latestPeers))
	copy(peers, a.latestPeers)
	return a.latest, peers
}

// Classify buckets a smoothed RTT into the debug panel's quality bands.
func (a *Aggregator) Classify(rttMeanMillis float64) domain.NetworkQuality {
	rtt := time.Duration(rttMeanMillis * float64(time.Millisecond))
	switch {
	case rtt < a.cfg.ExcellentBelow:
		return domain.QualityExcellent
	case rtt < a.cfg.GoodBelow:
		return domain.QualityGood
	case rtt < a.cfg.FairBelow:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}

func qualityRank(q domain.NetworkQuality) int {
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
