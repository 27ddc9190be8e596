package memory

import (
	"context"
	"sync"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
)

// MemorySessionRepository keeps the session roster in process memory. It is
// the default store when Redis is disabled.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.StreamSession
	peers    map[domain.SessionID]map[domain.PeerID]struct{}
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.StreamSession),
		peers:    make(map[domain.SessionID]map[domain.PeerID]struct{}),
	}
}

func (r *MemorySessionRepository) Save(ctx context.Context, session *domain.StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.ID] = &copied
	if _, ok := r.peers[session.ID]; !ok {
		r.peers[session.ID] = make(map[domain.PeerID]struct{})
	}
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	delete(r.peers, id)
	return nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.StreamSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		copied := *session
		out = append(out, &copied)
	}
	return out, nil
}

func (r *MemorySessionRepository) AddPeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	r.peers[id][peer] = struct{}{}
	return nil
}

func (r *MemorySessionRepository) RemovePeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.peers[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	delete(roster, peer)
	return nil
}

func (r *MemorySessionRepository) Peers(ctx context.Context, id domain.SessionID) ([]domain.PeerID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]domain.PeerID, 0, len(roster))
	for peer := range roster {
		out = append(out, peer)
	}
	return out, nil
}
