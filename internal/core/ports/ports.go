package ports

import (
	"context"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

// Transport is the per-peer point-to-point channel boundary. Media sends are
// fire-and-forget over a lossy channel; control messages travel on a separate
// reliable ordered channel. Signaling and channel negotiation happen outside
// this core.
type Transport interface {
	// Send pushes one media payload to a peer. Returns
	// domain.ErrBackpressureRejected when the underlying channel refuses the
	// write, domain.ErrTransportClosed when the peer is gone.
	Send(peerID domain.PeerID, payload []byte) error

	// SendControl pushes one control envelope on the reliable channel.
	SendControl(peerID domain.PeerID, payload []byte) error

	// BufferedAmount reports bytes buffered but not yet flushed for a peer.
	BufferedAmount(peerID domain.PeerID) int64

	// ClosePeer releases the channels held for one peer.
	ClosePeer(peerID domain.PeerID) error

	// SetHandler installs the event sink. Must be called before any peer
	// channel opens.
	SetHandler(h TransportHandler)
}

// TransportHandler receives asynchronous transport events. Implementations
// must funnel these into the session's single-writer loop.
type TransportHandler interface {
	HandlePeerOpen(peerID domain.PeerID)
	HandlePeerClose(peerID domain.PeerID, err error)
	HandleControlMessage(peerID domain.PeerID, payload []byte)
}

// CaptureSource produces the sequence of encodable units for one shared
// file. The driving cadence is external; Next never blocks.
type CaptureSource interface {
	// Next returns the next unit, domain.ErrNoUnitReady when nothing is due
	// this tick, domain.ErrEndOfStream on exhaustion, or a *domain.SourceError
	// when the underlying file became unreadable.
	Next(ctx context.Context) (*domain.EncodedUnit, error)

	SourceID() string
	Kind() domain.SourceKind
	Close() error
}

// SessionRepository persists the session and peer roster so other instances
// (and the debug API) can observe active shares.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.StreamSession) error
	Delete(ctx context.Context, id domain.SessionID) error
	Get(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error)
	ListActive(ctx context.Context) ([]*domain.StreamSession, error)
	AddPeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error
	RemovePeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error
	Peers(ctx context.Context, id domain.SessionID) ([]domain.PeerID, error)
}

// TelemetrySink consumes periodic telemetry snapshots. Sinks are purely
// observational and never feed back into the congestion controllers.
type TelemetrySink interface {
	PublishTelemetry(snapshot domain.TelemetrySnapshot, peers []domain.PeerTelemetry)
}

// EventPublisher fans session events out to interested parties (the UI
// bridge, a distributed bus).
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.SessionEvent) error
}
