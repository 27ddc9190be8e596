package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/repositories/memory"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/transport"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

func newTestAggregator(t *testing.T) (*Aggregator, *Coordinator) {
	t.Helper()
	cfg := config.DefaultConfig()
	clk := clock.NewManual(time.Unix(1700000000, 0))
	logger := zap.NewNop().Sugar()
	router := NewControlRouter(cfg.Transport, logger)
	coord := NewCoordinator(cfg, transport.NewMemoryTransport(), memory.NewMemorySessionRepository(), router, nil, logger, clk)
	return NewAggregator(cfg.Telemetry, coord, logger, clk), coord
}

func TestClassifyQualityBands(t *testing.T) {
	agg, _ := newTestAggregator(t)

	tests := []struct {
		rttMillis float64
		want      domain.NetworkQuality
	}{
		{0, domain.QualityExcellent},
		{49, domain.QualityExcellent},
		{50, domain.QualityGood},
		{149, domain.QualityGood},
		{150, domain.QualityFair},
		{299, domain.QualityFair},
		{300, domain.QualityPoor},
		{1500, domain.QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, agg.Classify(tt.rttMillis), "rtt %.0fms", tt.rttMillis)
	}
}

func TestSampleWithNoSession(t *testing.T) {
	agg, _ := newTestAggregator(t)

	agg.Sample()
	snap, peers := agg.Latest()

	assert.Empty(t, peers)
	assert.Equal(t, domain.QualityExcellent, snap.NetworkQuality)
	assert.Zero(t, snap.TrackCount)
	assert.Zero(t, snap.AverageRTT)
	assert.False(t, snap.InSlowStart)
}

type captureSink struct {
	snaps []domain.TelemetrySnapshot
}

func (s *captureSink) PublishTelemetry(snapshot domain.TelemetrySnapshot, peers []domain.PeerTelemetry) {
	s.snaps = append(s.snaps, snapshot)
}

func TestSamplePublishesToSinks(t *testing.T) {
	agg, _ := newTestAggregator(t)
	sink := &captureSink{}
	agg.AddSink(sink)

	agg.Sample()
	agg.Sample()
	assert.Len(t, sink.snaps, 2)
}

func TestQualityRankOrdersWorstLast(t *testing.T) {
	assert.Less(t, qualityRank(domain.QualityExcellent), qualityRank(domain.QualityGood))
	assert.Less(t, qualityRank(domain.QualityGood), qualityRank(domain.QualityFair))
	assert.Less(t, qualityRank(domain.QualityFair), qualityRank(domain.QualityPoor))
}
