package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/tracing"
)

// ControlHandler processes one inbound control envelope from a peer.
type ControlHandler func(peerID domain.PeerID, env domain.Envelope)

// ControlRouter decodes inbound control-channel payloads and dispatches them
// to registered per-type handlers. Each peer gets its own token bucket so a
// chatty peer cannot starve the others.
type ControlRouter struct {
	cfg    config.TransportConfig
	logger *zap.SugaredLogger

	mu       sync.Mutex
	handlers map[string]ControlHandler
	limiters map[domain.PeerID]*rate.Limiter
}

func NewControlRouter(cfg config.TransportConfig, logger *zap.SugaredLogger) *ControlRouter {
	return &ControlRouter{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]ControlHandler),
		limiters: make(map[domain.PeerID]*rate.Limiter),
	}
}

// Register installs the handler for one message type, replacing any previous
// one.
func (r *ControlRouter) Register(msgType string, h ControlHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = h
}

// Dispatch parses a raw control payload and routes it. Oversized, malformed,
// rate-limited and unknown-type messages are dropped with a log line; a
// misbehaving peer must not be able to error the session.
func (r *ControlRouter) Dispatch(peerID domain.PeerID, payload []byte) error {
	if len(payload) > r.cfg.MaxMessageBytes {
		return fmt.Errorf("control message from %s exceeds %d bytes", peerID, r.cfg.MaxMessageBytes)
	}
	if !r.limiter(peerID).Allow() {
		return fmt.Errorf("control message from %s rate limited", peerID)
	}

	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("malformed control message from %s: %w", peerID, err)
	}

	r.mu.Lock()
	h, ok := r.handlers[env.Type]
	r.mu.Unlock()
	if !ok {
		r.logger.Debugw("unhandled control message", "peer_id", peerID, "type", env.Type)
		return nil
	}

	_, span := tracing.TraceControlMessage(context.Background(), env.Type, string(peerID))
	h(peerID, env)
	span.End()
	return nil
}

// Forget drops the per-peer limiter state after a disconnect.
func (r *ControlRouter) Forget(peerID domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, peerID)
}

func (r *ControlRouter) limiter(peerID domain.PeerID) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[peerID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.ControlMessagesPerSecond), r.cfg.ControlBurst)
		r.limiters[peerID] = l
	}
	return l
}
