package transport

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

const (
	mediaChannelLabel   = "pons-media"
	controlChannelLabel = "pons-control"
)

// DataChannelTransport carries the media fan-out and the control plane over
// WebRTC data channels, one pair per peer. The media channel is unordered
// with zero retransmits (late frames are worthless), the control channel is
// the SCTP default: reliable and ordered. Signaling and PeerConnection
// negotiation happen outside this adapter.
type DataChannelTransport struct {
	cfg    config.TransportConfig
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	handler ports.TransportHandler
	peers   map[domain.PeerID]*peerChannels
}

type peerChannels struct {
	media   *webrtc.DataChannel
	control *webrtc.DataChannel
}

func NewDataChannelTransport(cfg config.TransportConfig, logger *zap.SugaredLogger) *DataChannelTransport {
	return &DataChannelTransport{
		cfg:    cfg,
		logger: logger,
		peers:  make(map[domain.PeerID]*peerChannels),
	}
}

// SetHandler implements ports.Transport.
func (t *DataChannelTransport) SetHandler(h ports.TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// AttachPeer creates the media and control channels on an already-negotiated
// PeerConnection. The handler's HandlePeerOpen fires once the control
// channel is open.
func (t *DataChannelTransport) AttachPeer(peerID domain.PeerID, pc *webrtc.PeerConnection) error {
	ordered := false
	maxRetransmits := uint16(0)
	media, err := pc.CreateDataChannel(mediaChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return fmt.Errorf("failed to create media channel for %s: %w", peerID, err)
	}

	control, err := pc.CreateDataChannel(controlChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("failed to create control channel for %s: %w", peerID, err)
	}

	control.OnOpen(func() {
		t.logger.Debugw("control channel open", "peer_id", peerID)
		if h := t.currentHandler(); h != nil {
			h.HandlePeerOpen(peerID)
		}
	})
	control.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h := t.currentHandler(); h != nil {
			h.HandleControlMessage(peerID, msg.Data)
		}
	})
	onClose := func() {
		t.mu.Lock()
		_, known := t.peers[peerID]
		delete(t.peers, peerID)
		t.mu.Unlock()
		if known {
			if h := t.currentHandler(); h != nil {
				h.HandlePeerClose(peerID, domain.ErrTransportClosed)
			}
		}
	}
	control.OnClose(onClose)
	media.OnClose(onClose)

	t.mu.Lock()
	t.peers[peerID] = &peerChannels{media: media, control: control}
	t.mu.Unlock()
	return nil
}

// Send implements ports.Transport. Fire-and-forget on the lossy channel.
func (t *DataChannelTransport) Send(peerID domain.PeerID, payload []byte) error {
	p, err := t.peer(peerID)
	if err != nil {
		return err
	}
	if p.media.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrTransportClosed
	}
	if err := p.media.Send(payload); err != nil {
		return fmt.Errorf("media send to %s: %w", peerID, err)
	}
	return nil
}

// SendControl implements ports.Transport on the reliable channel.
func (t *DataChannelTransport) SendControl(peerID domain.PeerID, payload []byte) error {
	p, err := t.peer(peerID)
	if err != nil {
		return err
	}
	if p.control.ReadyState() != webrtc.DataChannelStateOpen {
		return domain.ErrTransportClosed
	}
	if err := p.control.Send(payload); err != nil {
		return fmt.Errorf("control send to %s: %w", peerID, err)
	}
	return nil
}

// BufferedAmount implements ports.Transport: bytes queued on the media
// channel but not yet handed to the network.
func (t *DataChannelTransport) BufferedAmount(peerID domain.PeerID) int64 {
	p, err := t.peer(peerID)
	if err != nil {
		return 0
	}
	return int64(p.media.BufferedAmount())
}

// ClosePeer implements ports.Transport. The PeerConnection itself is owned
// by the signaling layer and left alone.
func (t *DataChannelTransport) ClosePeer(peerID domain.PeerID) error {
	t.mu.Lock()
	p, ok := t.peers[peerID]
	delete(t.peers, peerID)
	t.mu.Unlock()
	if !ok {
		return domain.ErrTransportClosed
	}
	if err := p.media.Close(); err != nil {
		t.logger.Debugw("media channel close", "peer_id", peerID, "error", err)
	}
	if err := p.control.Close(); err != nil {
		t.logger.Debugw("control channel close", "peer_id", peerID, "error", err)
	}
	return nil
}

func (t *DataChannelTransport) peer(peerID domain.PeerID) (*peerChannels, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[peerID]
	if !ok {
		return nil, domain.ErrTransportClosed
	}
	return p, nil
}

func (t *DataChannelTransport) currentHandler() ports.TransportHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handler
}
