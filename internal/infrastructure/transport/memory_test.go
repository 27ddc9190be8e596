package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

type recordingHandler struct {
	opened  []domain.PeerID
	closed  []domain.PeerID
	control [][]byte
}

func (h *recordingHandler) HandlePeerOpen(peerID domain.PeerID) {
	h.opened = append(h.opened, peerID)
}

func (h *recordingHandler) HandlePeerClose(peerID domain.PeerID, err error) {
	h.closed = append(h.closed, peerID)
}

func (h *recordingHandler) HandleControlMessage(peerID domain.PeerID, payload []byte) {
	h.control = append(h.control, payload)
}

func TestMemoryTransportPeerLifecycle(t *testing.T) {
	tr := NewMemoryTransport()
	h := &recordingHandler{}
	tr.SetHandler(h)

	tr.Connect("peer-a")
	require.Equal(t, []domain.PeerID{"peer-a"}, h.opened)

	require.NoError(t, tr.Send("peer-a", []byte{1, 2, 3}))
	require.NoError(t, tr.SendControl("peer-a", []byte(`{"type":"heartbeat"}`)))
	assert.Len(t, tr.MediaSent("peer-a"), 1)
	assert.Len(t, tr.ControlSent("peer-a"), 1)

	tr.Disconnect("peer-a", domain.ErrTransportClosed)
	require.Equal(t, []domain.PeerID{"peer-a"}, h.closed)

	err := tr.Send("peer-a", []byte{4})
	assert.True(t, errors.Is(err, domain.ErrTransportClosed))
}

func TestMemoryTransportBufferedAmount(t *testing.T) {
	tr := NewMemoryTransport()
	tr.SetHandler(&recordingHandler{})
	tr.Connect("peer-a")

	assert.Zero(t, tr.BufferedAmount("peer-a"))
	tr.SetBuffered("peer-a", 4096)
	assert.Equal(t, int64(4096), tr.BufferedAmount("peer-a"))
	assert.Zero(t, tr.BufferedAmount("peer-unknown"))
}

func TestMemoryTransportInjectControl(t *testing.T) {
	tr := NewMemoryTransport()
	h := &recordingHandler{}
	tr.SetHandler(h)
	tr.Connect("peer-a")

	tr.InjectControl("peer-a", []byte(`{"type":"unit-ack","payload":{"sequence":7}}`))
	require.Len(t, h.control, 1)
}

func TestMemoryTransportClosePeerUnknown(t *testing.T) {
	tr := NewMemoryTransport()
	err := tr.ClosePeer("nobody")
	assert.True(t, errors.Is(err, domain.ErrTransportClosed))
}
