package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

func TestMemorySessionRepositoryLifecycle(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := &domain.StreamSession{
		ID:        domain.SessionID("s-1"),
		SourceID:  "movie.mp4",
		Kind:      domain.SourceVideo,
		Quality:   domain.TierHigh,
		StartedAt: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, session))

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.SourceID, got.SourceID)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, repo.Delete(ctx, session.ID))
	_, err = repo.Get(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemorySessionRepositoryPeerRoster(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()
	id := domain.SessionID("s-1")

	require.NoError(t, repo.Save(ctx, &domain.StreamSession{ID: id}))
	require.NoError(t, repo.AddPeer(ctx, id, "peer-a"))
	require.NoError(t, repo.AddPeer(ctx, id, "peer-b"))
	require.NoError(t, repo.AddPeer(ctx, id, "peer-a"))

	peers, err := repo.Peers(ctx, id)
	require.NoError(t, err)
	assert.Len(t, peers, 2)

	require.NoError(t, repo.RemovePeer(ctx, id, "peer-a"))
	peers, err = repo.Peers(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerID{"peer-b"}, peers)

	err = repo.AddPeer(ctx, "missing", "peer-c")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
