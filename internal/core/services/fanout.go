package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/tracing"
)

// InboundControl is a user-facing control message received from a peer,
// surfaced to the UI bridge.
type InboundControl struct {
	PeerID   domain.PeerID
	Envelope domain.Envelope
}

// Coordinator owns the active StreamSession and the per-peer links, and is
// the single broadcast point for produced units. Asynchronous transport
// events and the tick loop are serialized through one mutex, preserving the
// single-writer discipline every PeerLink and controller relies on.
type Coordinator struct {
	cfg       *config.Config
	transport ports.Transport
	repo      ports.SessionRepository
	router    *ControlRouter
	bus       ports.EventPublisher // optional
	logger    *zap.SugaredLogger
	clk       clock.Clock

	mu        sync.Mutex
	connected map[domain.PeerID]struct{}
	session   *sessionState

	// Counters carried across link teardown so totals never go backwards.
	retiredFramesSent    uint64
	retiredFramesDropped uint64
	retiredBytesSent     uint64

	events   chan domain.SessionEvent
	controls chan InboundControl
}

type sessionState struct {
	meta     *domain.StreamSession
	source   ports.CaptureSource
	profile  QualityProfile
	strategy DeviceStrategy
	links    map[domain.PeerID]*PeerLink
	cancel   context.CancelFunc
	done     chan struct{}

	framesPublished uint64
}

// SessionOverview is the coordinator-level part of the telemetry surface.
type SessionOverview struct {
	Active          bool
	TrackCount      int
	PeersConnected  int
	FramesPublished uint64
	FramesSent      uint64
	FramesDropped   uint64
	BytesSent       uint64
	TargetFPS       int
}

// NewCoordinator wires the fan-out engine to its transport. The coordinator
// installs itself as the transport's event handler and claims the ack,
// heartbeat and user control message types on the router.
func NewCoordinator(
	cfg *config.Config,
	transport ports.Transport,
	repo ports.SessionRepository,
	router *ControlRouter,
	bus ports.EventPublisher,
	logger *zap.SugaredLogger,
	clk clock.Clock,
) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		transport: transport,
		repo:      repo,
		router:    router,
		bus:       bus,
		logger:    logger,
		clk:       clk,
		connected: make(map[domain.PeerID]struct{}),
		events:    make(chan domain.SessionEvent, 64),
		controls:  make(chan InboundControl, 64),
	}

	router.Register(domain.TypeUnitAck, c.handleUnitAck)
	router.Register(domain.TypeHeartbeat, c.handleHeartbeat)
	router.Register(domain.TypeHeartbeatReply, c.handleHeartbeatReply)
	router.Register(domain.TypePlaylistNav, c.handleUserControl)
	router.Register(domain.TypeSubtitleRemote, c.handleUserControl)

	transport.SetHandler(c)
	return c
}

// Events is the outbound session event stream. Events are dropped, not
// blocked on, when the consumer lags.
func (c *Coordinator) Events() <-chan domain.SessionEvent { return c.events }

// Controls surfaces inbound user control messages (playlist navigation,
// subtitle toggles) to the UI bridge.
func (c *Coordinator) Controls() <-chan InboundControl { return c.controls }

// StartSession begins streaming one capture source to every connected peer.
// Only one session may be active at a time.
func (c *Coordinator) StartSession(ctx context.Context, source ports.CaptureSource, tier domain.QualityTier, cap Capability) (*domain.StreamSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, domain.ErrSessionActive
	}

	profile := ProfileFor(tier)
	strategy := StrategyFor(cap)

	meta := &domain.StreamSession{
		ID:        domain.NewSessionID(),
		SourceID:  source.SourceID(),
		Kind:      source.Kind(),
		Quality:   tier,
		StartedAt: c.clk.Now(),
	}

	ctx, span := tracing.TraceSessionOperation(ctx, "start", string(meta.ID))
	defer span.End()

	if err := c.repo.Save(ctx, meta); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &sessionState{
		meta:     meta,
		source:   source,
		profile:  profile,
		strategy: strategy,
		links:    make(map[domain.PeerID]*PeerLink),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for peerID := range c.connected {
		c.attachLinkLocked(s, peerID)
	}
	c.session = s

	c.logger.Infow("stream session started",
		"session_id", meta.ID,
		"source_id", meta.SourceID,
		"kind", meta.Kind,
		"quality", tier,
		"target_fps", c.targetFPS(s),
		"peers", len(s.links),
	)
	c.emit(domain.SessionEvent{Kind: domain.EventSessionStarted, SessionID: meta.ID, Timestamp: c.clk.Now()})

	go c.run(runCtx, s)
	return meta, nil
}

// StopSession ends the active session, tearing down every peer link and
// releasing the source.
func (c *Coordinator) StopSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.ErrNoActiveSession
	}

	ctx, span := tracing.TraceSessionOperation(ctx, "stop", string(c.session.meta.ID))
	defer span.End()

	c.endSessionLocked(ctx, nil)
	return nil
}

// Session returns the active session metadata, or nil.
func (c *Coordinator) Session() *domain.StreamSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	meta := *c.session.meta
	return &meta
}

// AddPeer creates the link state for a newly connected peer. Safe to call
// for an already-known peer.
func (c *Coordinator) AddPeer(peerID domain.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[peerID] = struct{}{}

	if c.session == nil {
		return
	}
	if _, ok := c.session.links[peerID]; ok {
		return
	}
	if len(c.session.links) >= c.cfg.Session.MaxPeers {
		c.logger.Warnw("peer cap reached, not attaching link", "peer_id", peerID)
		return
	}
	c.attachLinkLocked(c.session, peerID)
	c.emit(domain.SessionEvent{
		Kind:      domain.EventPeerJoined,
		SessionID: c.session.meta.ID,
		PeerID:    peerID,
		Timestamp: c.clk.Now(),
	})
}

// RemovePeer tears down one peer's link without disturbing the others.
// Removing an unknown or already-removed peer is a no-op.
func (c *Coordinator) RemovePeer(peerID domain.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removePeerLocked(peerID, nil)
}

// HandlePeerOpen implements ports.TransportHandler.
func (c *Coordinator) HandlePeerOpen(peerID domain.PeerID) {
	c.AddPeer(peerID)
}

// HandlePeerClose implements ports.TransportHandler.
func (c *Coordinator) HandlePeerClose(peerID domain.PeerID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removePeerLocked(peerID, err)
}

// HandleControlMessage implements ports.TransportHandler.
func (c *Coordinator) HandleControlMessage(peerID domain.PeerID, payload []byte) {
	if err := c.router.Dispatch(peerID, payload); err != nil {
		c.logger.Debugw("control message dropped", "peer_id", peerID, "error", err)
	}
}

// BroadcastPlaylistNav sends a playlist navigation command to every
// connected peer on the reliable channel.
func (c *Coordinator) BroadcastPlaylistNav(action string, index *int) error {
	env, err := domain.NewEnvelope(domain.TypePlaylistNav, domain.PlaylistNav{Action: action, Index: index})
	if err != nil {
		return err
	}
	return c.broadcastControl(env)
}

// BroadcastSubtitleRemote toggles a subtitle track for every viewer.
func (c *Coordinator) BroadcastSubtitleRemote(trackID string, enabled bool) error {
	env, err := domain.NewEnvelope(domain.TypeSubtitleRemote, domain.SubtitleRemote{TrackID: trackID, Enabled: enabled})
	if err != nil {
		return err
	}
	return c.broadcastControl(env)
}

// Overview reports coordinator-level counters for the telemetry aggregator.
func (c *Coordinator) Overview() SessionOverview {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := SessionOverview{
		PeersConnected: len(c.connected),
		FramesSent:     c.retiredFramesSent,
		FramesDropped:  c.retiredFramesDropped,
		BytesSent:      c.retiredBytesSent,
	}
	if c.session != nil {
		o.Active = true
		o.TrackCount = 1
		o.FramesPublished = c.session.framesPublished
		o.TargetFPS = c.targetFPS(c.session)
		for _, l := range c.session.links {
			st := l.Stats()
			o.FramesSent += st.FramesSent
			o.FramesDropped += st.FramesDropped
			o.BytesSent += st.BytesSent
		}
	}
	return o
}

// LinkStats snapshots every live link for the telemetry aggregator.
func (c *Coordinator) LinkStats() []domain.PeerTelemetry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	out := make([]domain.PeerTelemetry, 0, len(c.session.links))
	for _, l := range c.session.links {
		out = append(out, l.Stats())
	}
	return out
}

// NotifyQuality lets the telemetry aggregator surface classification
// transitions on the event stream. Observational only.
func (c *Coordinator) NotifyQuality(peerID domain.PeerID, from, to domain.NetworkQuality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	kind := domain.EventQualityRecovered
	if to == domain.QualityPoor && from != domain.QualityPoor {
		kind = domain.EventQualityDegraded
	}
	c.emit(domain.SessionEvent{
		Kind:      kind,
		SessionID: c.session.meta.ID,
		PeerID:    peerID,
		Timestamp: c.clk.Now(),
	})
}

// run drives the capture cadence, ack deadlines and heartbeats for one
// session until it ends.
func (c *Coordinator) run(ctx context.Context, s *sessionState) {
	defer close(s.done)
	fps := c.targetFPS(s)
	frames := c.clk.NewTicker(time.Second / time.Duration(fps))
	defer frames.Stop()
	hearts := c.clk.NewTicker(c.cfg.Session.HeartbeatInterval)
	defer hearts.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.C():
			c.frameTick(ctx, s)
		case <-hearts.C():
			c.heartbeatTick(s)
		}
	}
}

func (c *Coordinator) frameTick(ctx context.Context, s *sessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	now := c.clk.Now()

	unit, err := s.source.Next(ctx)
	switch {
	case err == nil:
		c.publishLocked(s, unit, now)
	case errors.Is(err, domain.ErrNoUnitReady):
		// idle tick for raster/image sources
	case errors.Is(err, domain.ErrEndOfStream):
		c.logger.Infow("capture source exhausted", "session_id", s.meta.ID)
		c.emit(domain.SessionEvent{Kind: domain.EventSourceEnded, SessionID: s.meta.ID, Timestamp: now})
		c.endSessionLocked(ctx, nil)
		return
	default:
		c.logger.Errorw("capture source failed", "session_id", s.meta.ID, "error", err)
		c.emit(domain.SessionEvent{Kind: domain.EventSourceEnded, SessionID: s.meta.ID, Err: err, Timestamp: now})
		c.endSessionLocked(ctx, err)
		return
	}

	// Ack deadline sweep. Links past their timeout budget are treated as
	// disconnected.
	for _, l := range c.linksSnapshotLocked(s) {
		if l.Tick(now) {
			c.removePeerLocked(l.PeerID(), domain.ErrTransportClosed)
		}
	}
}

// publishLocked is the only broadcast point: every produced unit is offered
// to every live link, each gated by its own window. The link set is
// snapshotted first so teardown during iteration is safe.
func (c *Coordinator) publishLocked(s *sessionState, unit *domain.EncodedUnit, now time.Time) {
	s.framesPublished++
	for _, l := range c.linksSnapshotLocked(s) {
		err := l.Offer(unit, now)
		if err == nil || errors.Is(err, domain.ErrBackpressureRejected) {
			continue
		}
		var linkErr *domain.PeerLinkError
		if errors.As(err, &linkErr) {
			c.removePeerLocked(linkErr.PeerID, linkErr)
		}
	}
}

func (c *Coordinator) heartbeatTick(s *sessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	env, err := domain.NewEnvelope(domain.TypeHeartbeat, domain.Heartbeat{SentAtUnixNano: c.clk.Now().UnixNano()})
	if err != nil {
		return
	}
	raw, _ := json.Marshal(env)
	for _, l := range c.linksSnapshotLocked(s) {
		if err := c.transport.SendControl(l.PeerID(), raw); errors.Is(err, domain.ErrTransportClosed) {
			c.removePeerLocked(l.PeerID(), err)
		}
	}
}

func (c *Coordinator) handleUnitAck(peerID domain.PeerID, env domain.Envelope) {
	var ack domain.UnitAck
	if err := env.DecodePayload(domain.TypeUnitAck, &ack); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	if l, ok := c.session.links[peerID]; ok {
		l.HandleAck(ack.Sequence, c.clk.Now())
	}
}

func (c *Coordinator) handleHeartbeat(peerID domain.PeerID, env domain.Envelope) {
	// Echo the probe back unchanged; the sender derives the round trip.
	reply := domain.Envelope{Type: domain.TypeHeartbeatReply, Payload: env.Payload}
	raw, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := c.transport.SendControl(peerID, raw); err != nil {
		c.logger.Debugw("heartbeat reply failed", "peer_id", peerID, "error", err)
	}
}

func (c *Coordinator) handleHeartbeatReply(peerID domain.PeerID, env domain.Envelope) {
	var hb domain.Heartbeat
	if err := env.DecodePayload(domain.TypeHeartbeatReply, &hb); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	l, ok := c.session.links[peerID]
	if !ok {
		return
	}
	now := c.clk.Now()
	rtt := now.Sub(time.Unix(0, hb.SentAtUnixNano))
	if rtt < 0 {
		return
	}
	l.HandleHeartbeatReply(rtt, now)
}

func (c *Coordinator) handleUserControl(peerID domain.PeerID, env domain.Envelope) {
	select {
	case c.controls <- InboundControl{PeerID: peerID, Envelope: env}:
	default:
		c.logger.Warnw("control consumer lagging, message dropped", "peer_id", peerID, "type", env.Type)
	}
}

func (c *Coordinator) attachLinkLocked(s *sessionState, peerID domain.PeerID) {
	ctrl := NewCongestionController(c.cfg.Congestion, s.strategy.MaxChunkBytes, c.clk.Now())
	s.links[peerID] = NewPeerLink(peerID, ctrl, c.transport, c.logger)
	if err := c.repo.AddPeer(context.Background(), s.meta.ID, peerID); err != nil {
		c.logger.Warnw("failed to record peer in session roster", "peer_id", peerID, "error", err)
	}
}

func (c *Coordinator) removePeerLocked(peerID domain.PeerID, cause error) {
	delete(c.connected, peerID)
	if c.session == nil {
		return
	}
	l, ok := c.session.links[peerID]
	if !ok {
		return
	}
	st := l.Stats()
	c.retiredFramesSent += st.FramesSent
	c.retiredFramesDropped += st.FramesDropped
	c.retiredBytesSent += st.BytesSent

	l.Close()
	delete(c.session.links, peerID)
	c.router.Forget(peerID)
	if err := c.repo.RemovePeer(context.Background(), c.session.meta.ID, peerID); err != nil {
		c.logger.Warnw("failed to remove peer from session roster", "peer_id", peerID, "error", err)
	}

	c.logger.Infow("peer link removed", "peer_id", peerID, "cause", cause)
	c.emit(domain.SessionEvent{
		Kind:      domain.EventPeerDropped,
		SessionID: c.session.meta.ID,
		PeerID:    peerID,
		Err:       cause,
		Timestamp: c.clk.Now(),
	})
}

func (c *Coordinator) endSessionLocked(ctx context.Context, cause error) {
	s := c.session
	s.cancel()
	for peerID, l := range s.links {
		st := l.Stats()
		c.retiredFramesSent += st.FramesSent
		c.retiredFramesDropped += st.FramesDropped
		c.retiredBytesSent += st.BytesSent
		l.Close()
		delete(s.links, peerID)
	}
	if err := s.source.Close(); err != nil {
		c.logger.Debugw("source close", "session_id", s.meta.ID, "error", err)
	}
	if err := c.repo.Delete(ctx, s.meta.ID); err != nil {
		c.logger.Warnw("failed to delete session record", "session_id", s.meta.ID, "error", err)
	}
	c.session = nil

	c.logger.Infow("stream session ended", "session_id", s.meta.ID, "cause", cause)
	c.emit(domain.SessionEvent{
		Kind:      domain.EventSessionEnded,
		SessionID: s.meta.ID,
		Err:       cause,
		Timestamp: c.clk.Now(),
	})
}

func (c *Coordinator) broadcastControl(env domain.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for peerID := range c.connected {
		if err := c.transport.SendControl(peerID, raw); err != nil {
			c.logger.Debugw("control broadcast failed", "peer_id", peerID, "type", env.Type, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) linksSnapshotLocked(s *sessionState) []*PeerLink {
	out := make([]*PeerLink, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) targetFPS(s *sessionState) int {
	fps := s.profile.TargetFPS
	if s.strategy.MaxFrameRate > 0 && s.strategy.MaxFrameRate < fps {
		fps = s.strategy.MaxFrameRate
	}
	if fps <= 0 {
		fps = 1
	}
	return fps
}

func (c *Coordinator) emit(ev domain.SessionEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debugw("event consumer lagging, event dropped", "kind", ev.Kind)
	}
	if c.bus != nil {
		go func() {
			if err := c.bus.PublishEvent(context.Background(), ev); err != nil {
				c.logger.Debugw("event bus publish failed", "kind", ev.Kind, "error", err)
			}
		}()
	}
}
