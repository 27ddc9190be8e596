package services

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
)

// PeerLink owns the outbound path to one peer: its congestion controller,
// in-flight bookkeeping and drop accounting. Links are fully independent; a
// slow or dead peer never affects the others.
//
// Like the controller it wraps, a PeerLink is not safe for concurrent use
// and runs inside the session's single-writer loop.
type PeerLink struct {
	peerID    domain.PeerID
	ctrl      *CongestionController
	transport ports.Transport
	logger    *zap.SugaredLogger

	framesSent    uint64
	framesDropped uint64
	bytesSent     uint64

	// In-flight frames awaiting acks, in send order.
	pending []pendingFrame
	closed  bool
}

type pendingFrame struct {
	sequence uint64
	size     int
	sentAt   time.Time
}

// NewPeerLink wires a link to its transport handle. unitBytes is the chunk
// size the device strategy selected for this session.
func NewPeerLink(peerID domain.PeerID, ctrl *CongestionController, transport ports.Transport, logger *zap.SugaredLogger) *PeerLink {
	return &PeerLink{
		peerID:    peerID,
		ctrl:      ctrl,
		transport: transport,
		logger:    logger,
	}
}

// PeerID returns the peer this link serves.
func (l *PeerLink) PeerID() domain.PeerID { return l.peerID }

// Offer tries to send one unit. When the window has no capacity the unit is
// dropped for this peer only and domain.ErrBackpressureRejected is returned;
// that is expected behavior, not a failure. A closed transport surfaces as a
// *domain.PeerLinkError so the coordinator can tear the link down.
func (l *PeerLink) Offer(unit *domain.EncodedUnit, now time.Time) error {
	if l.closed {
		return &domain.PeerLinkError{PeerID: l.peerID, Cause: domain.ErrTransportClosed}
	}

	l.ctrl.CheckBackpressure(l.transport.BufferedAmount(l.peerID))

	size := unit.Size()
	if !l.ctrl.SendAllowed(size) {
		l.framesDropped++
		return domain.ErrBackpressureRejected
	}

	err := l.transport.Send(l.peerID, domain.MarshalUnit(unit))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBackpressureRejected):
		l.framesDropped++
		l.ctrl.OnCongestionSignal()
		return domain.ErrBackpressureRejected
	case errors.Is(err, domain.ErrTransportClosed):
		return &domain.PeerLinkError{PeerID: l.peerID, Cause: err}
	default:
		l.framesDropped++
		l.logger.Warnw("media send failed", "peer_id", l.peerID, "error", err)
		return &domain.PeerLinkError{PeerID: l.peerID, Cause: err}
	}

	l.ctrl.OnSent(size)
	l.framesSent++
	l.bytesSent += uint64(size)
	l.pending = append(l.pending, pendingFrame{sequence: unit.Sequence, size: size, sentAt: now})
	return nil
}

// HandleAck resolves one acked sequence number into an RTT sample.
func (l *PeerLink) HandleAck(sequence uint64, now time.Time) {
	for i, p := range l.pending {
		if p.sequence != sequence {
			continue
		}
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		l.ctrl.OnAck(now.Sub(p.sentAt), p.size, now)
		return
	}
	// Ack for a frame already expired by a timeout; the estimator has no
	// send time to pair it with.
}

// HandleHeartbeatReply feeds a probe round trip into the estimator without
// growing the window.
func (l *PeerLink) HandleHeartbeatReply(rtt time.Duration, now time.Time) {
	l.ctrl.OnAck(rtt, 0, now)
}

// Tick expires frames whose ack deadline passed. Returns true when the
// consecutive-timeout budget is exhausted and the peer should be treated as
// disconnected.
func (l *PeerLink) Tick(now time.Time) bool {
	rto := l.ctrl.RTO()
	expired := false
	for _, p := range l.pending {
		if now.Sub(p.sentAt) > rto {
			expired = true
			break
		}
	}
	if expired {
		// All outstanding frames ride the same collapsed window.
		l.pending = l.pending[:0]
		l.ctrl.OnTimeout()
		l.logger.Debugw("ack deadline missed",
			"peer_id", l.peerID,
			"rto", rto,
			"consecutive", l.ctrl.ConsecutiveTimeouts(),
		)
	}
	return l.ctrl.ConsecutiveTimeouts() >= l.ctrl.cfg.TimeoutResetCount
}

// Close releases the transport handle. Safe to call more than once.
func (l *PeerLink) Close() {
	if l.closed {
		return
	}
	l.closed = true
	if err := l.transport.ClosePeer(l.peerID); err != nil && !errors.Is(err, domain.ErrTransportClosed) {
		l.logger.Debugw("transport close", "peer_id", l.peerID, "error", err)
	}
}

// Stats exposes the link counters for the telemetry aggregator. The
// NetworkQuality field is left for the aggregator to classify.
func (l *PeerLink) Stats() domain.PeerTelemetry {
	snap := l.ctrl.Snapshot()
	return domain.PeerTelemetry{
		PeerID:           l.peerID,
		RTTMean:          snap.RTTMean,
		RTTVariance:      snap.RTTVariance,
		CongestionWindow: snap.Cwnd,
		SlowStartThresh:  snap.SSThresh,
		InSlowStart:      snap.InSlowStart,
		BytesInFlight:    snap.BytesInFlight,
		BufferedAmount:   l.transport.BufferedAmount(l.peerID),
		FramesSent:       l.framesSent,
		FramesDropped:    l.framesDropped,
		BytesSent:        l.bytesSent,
		LastAckAt:        snap.LastAckAt,
	}
}
