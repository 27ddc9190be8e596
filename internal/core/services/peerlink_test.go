package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/transport"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

func newTestLink(t *testing.T) (*PeerLink, *transport.MemoryTransport, time.Time) {
	t.Helper()
	start := time.Unix(1700000000, 0)
	tr := transport.NewMemoryTransport()
	tr.Connect("peer-a")
	ctrl := NewCongestionController(config.DefaultConfig().Congestion, testUnitBytes, start)
	link := NewPeerLink("peer-a", ctrl, tr, zap.NewNop().Sugar())
	return link, tr, start
}

func unitOf(seq uint64, size int, at time.Time) *domain.EncodedUnit {
	return &domain.EncodedUnit{Sequence: seq, Timestamp: at, Payload: make([]byte, size)}
}

func TestPeerLinkOfferDropsWhenWindowFull(t *testing.T) {
	link, tr, now := newTestLink(t)

	// Initial window is two units, so a third full-size unit has no room.
	require.NoError(t, link.Offer(unitOf(0, testUnitBytes, now), now))
	require.NoError(t, link.Offer(unitOf(1, testUnitBytes, now), now))
	err := link.Offer(unitOf(2, testUnitBytes, now), now)
	assert.ErrorIs(t, err, domain.ErrBackpressureRejected)

	stats := link.Stats()
	assert.Equal(t, uint64(2), stats.FramesSent)
	assert.Equal(t, uint64(1), stats.FramesDropped)
	assert.Len(t, tr.MediaSent("peer-a"), 2)
}

func TestPeerLinkAckFreesWindowAndFeedsEstimator(t *testing.T) {
	link, _, now := newTestLink(t)

	require.NoError(t, link.Offer(unitOf(0, testUnitBytes, now), now))
	later := now.Add(40 * time.Millisecond)
	link.HandleAck(0, later)

	stats := link.Stats()
	assert.Zero(t, stats.BytesInFlight)
	assert.InDelta(t, 40.0, stats.RTTMean, 0.5)
	assert.Greater(t, stats.CongestionWindow, 2.0)
	assert.Equal(t, later, stats.LastAckAt)
}

func TestPeerLinkAckForUnknownSequenceIsIgnored(t *testing.T) {
	link, _, now := newTestLink(t)

	require.NoError(t, link.Offer(unitOf(0, testUnitBytes, now), now))
	before := link.Stats()
	link.HandleAck(99, now.Add(time.Second))
	after := link.Stats()

	assert.Equal(t, before.BytesInFlight, after.BytesInFlight)
	assert.Equal(t, before.RTTMean, after.RTTMean)
}

func TestPeerLinkBufferedHighWaterHalvesWindow(t *testing.T) {
	link, tr, now := newTestLink(t)
	cfg := config.DefaultConfig().Congestion

	tr.SetBuffered("peer-a", cfg.BufferHighWaterBytes+1)
	require.NoError(t, link.Offer(unitOf(0, 512, now), now))

	stats := link.Stats()
	assert.Equal(t, cfg.MinWindow, stats.CongestionWindow)
	assert.False(t, stats.InSlowStart)
}

func TestPeerLinkOfferAfterTransportGone(t *testing.T) {
	link, tr, now := newTestLink(t)
	require.NoError(t, tr.ClosePeer("peer-a"))

	err := link.Offer(unitOf(0, 512, now), now)
	var linkErr *domain.PeerLinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, domain.PeerID("peer-a"), linkErr.PeerID)
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
}

func TestPeerLinkTickExpiresPendingFrames(t *testing.T) {
	link, _, now := newTestLink(t)
	cfg := config.DefaultConfig().Congestion

	// Seed the estimator so the deadline sits at the RTO floor.
	require.NoError(t, link.Offer(unitOf(0, testUnitBytes, now), now))
	link.HandleAck(0, now.Add(20*time.Millisecond))

	sentAt := now.Add(100 * time.Millisecond)
	require.NoError(t, link.Offer(unitOf(1, testUnitBytes, sentAt), sentAt))

	assert.False(t, link.Tick(sentAt.Add(cfg.MinRTO-time.Millisecond)))
	assert.False(t, link.Tick(sentAt.Add(cfg.MinRTO+time.Millisecond)))
	assert.Zero(t, link.Stats().BytesInFlight)
	assert.Equal(t, 1, link.ctrl.ConsecutiveTimeouts())
}

func TestPeerLinkCloseIsIdempotent(t *testing.T) {
	link, tr, now := newTestLink(t)

	link.Close()
	link.Close()
	assert.ErrorIs(t, tr.Send("peer-a", []byte{1}), domain.ErrTransportClosed)

	err := link.Offer(unitOf(0, 512, now), now)
	var linkErr *domain.PeerLinkError
	require.ErrorAs(t, err, &linkErr)
}
