package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

func newTestRouter(t *testing.T) *ControlRouter {
	t.Helper()
	return NewControlRouter(config.DefaultConfig().Transport, zap.NewNop().Sugar())
}

func TestRouterDispatchesByType(t *testing.T) {
	r := newTestRouter(t)

	var gotPeer domain.PeerID
	var gotEnv domain.Envelope
	r.Register(domain.TypeUnitAck, func(peerID domain.PeerID, env domain.Envelope) {
		gotPeer = peerID
		gotEnv = env
	})

	require.NoError(t, r.Dispatch("peer-a", []byte(`{"type":"unit-ack","payload":{"sequence":12}}`)))
	assert.Equal(t, domain.PeerID("peer-a"), gotPeer)

	var ack domain.UnitAck
	require.NoError(t, gotEnv.DecodePayload(domain.TypeUnitAck, &ack))
	assert.Equal(t, uint64(12), ack.Sequence)
}

func TestRouterDropsMalformedAndUnknown(t *testing.T) {
	r := newTestRouter(t)

	assert.Error(t, r.Dispatch("peer-a", []byte("not json")))

	// Unknown types are dropped silently so new client versions do not
	// error older sharers.
	assert.NoError(t, r.Dispatch("peer-a", []byte(`{"type":"future-thing","payload":{}}`)))
}

func TestRouterRejectsOversizedMessage(t *testing.T) {
	cfg := config.DefaultConfig().Transport
	r := NewControlRouter(cfg, zap.NewNop().Sugar())

	big := bytes.Repeat([]byte("a"), cfg.MaxMessageBytes+1)
	assert.Error(t, r.Dispatch("peer-a", big))
}

func TestRouterRateLimitsPerPeer(t *testing.T) {
	cfg := config.DefaultConfig().Transport
	r := NewControlRouter(cfg, zap.NewNop().Sugar())
	r.Register(domain.TypeHeartbeat, func(domain.PeerID, domain.Envelope) {})

	payload := []byte(`{"type":"heartbeat","payload":{"sentAt":1}}`)
	limited := false
	for i := 0; i < cfg.ControlBurst+1; i++ {
		if err := r.Dispatch("peer-noisy", payload); err != nil {
			limited = true
		}
	}
	assert.True(t, limited, "burst budget should exhaust")

	// The quiet peer has its own bucket.
	assert.NoError(t, r.Dispatch("peer-quiet", payload))
}
