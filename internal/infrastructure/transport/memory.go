package transport

import (
	"sync"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
)

// MemoryTransport is a loopback ports.Transport. It backs the local demo
// mode of the daemon and lets tests script peer lifecycles, inject control
// messages, and shape the reported buffered amount without any network.
type MemoryTransport struct {
	mu      sync.Mutex
	handler ports.TransportHandler
	peers   map[domain.PeerID]*memoryPeer
}

type memoryPeer struct {
	media    [][]byte
	control  [][]byte
	buffered int64
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{peers: make(map[domain.PeerID]*memoryPeer)}
}

// SetHandler implements ports.Transport.
func (t *MemoryTransport) SetHandler(h ports.TransportHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Connect registers a peer and fires HandlePeerOpen, mirroring a control
// channel coming up.
func (t *MemoryTransport) Connect(peerID domain.PeerID) {
	t.mu.Lock()
	if _, ok := t.peers[peerID]; !ok {
		t.peers[peerID] = &memoryPeer{}
	}
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.HandlePeerOpen(peerID)
	}
}

// Disconnect drops a peer and fires HandlePeerClose with the given cause.
func (t *MemoryTransport) Disconnect(peerID domain.PeerID, cause error) {
	t.mu.Lock()
	_, known := t.peers[peerID]
	delete(t.peers, peerID)
	h := t.handler
	t.mu.Unlock()
	if known && h != nil {
		h.HandlePeerClose(peerID, cause)
	}
}

// InjectControl delivers an inbound control payload as if the peer sent it.
func (t *MemoryTransport) InjectControl(peerID domain.PeerID, payload []byte) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.HandleControlMessage(peerID, payload)
	}
}

// SetBuffered overrides the buffered amount reported for a peer.
func (t *MemoryTransport) SetBuffered(peerID domain.PeerID, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		p.buffered = n
	}
}

// Send implements ports.Transport.
func (t *MemoryTransport) Send(peerID domain.PeerID, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return domain.ErrTransportClosed
	}
	p.media = append(p.media, append([]byte(nil), payload...))
	return nil
}

// SendControl implements ports.Transport.
func (t *MemoryTransport) SendControl(peerID domain.PeerID, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return domain.ErrTransportClosed
	}
	p.control = append(p.control, append([]byte(nil), payload...))
	return nil
}

// BufferedAmount implements ports.Transport.
func (t *MemoryTransport) BufferedAmount(peerID domain.PeerID) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[peerID]; ok {
		return p.buffered
	}
	return 0
}

// ClosePeer implements ports.Transport.
func (t *MemoryTransport) ClosePeer(peerID domain.PeerID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[peerID]; !ok {
		return domain.ErrTransportClosed
	}
	delete(t.peers, peerID)
	return nil
}

// MediaSent returns copies of every media payload delivered to a peer.
func (t *MemoryTransport) MediaSent(peerID domain.PeerID) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return nil
	}
	out := make([][]byte, len(p.media))
	copy(out, p.media)
	return out
}

// ControlSent returns copies of every control payload delivered to a peer.
func (t *MemoryTransport) ControlSent(peerID domain.PeerID) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		return nil
	}
	out := make([][]byte, len(p.control))
	copy(out, p.control)
	return out
}
