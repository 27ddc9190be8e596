package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/retry"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/tracing"
)

// RedisSessionRepository shares the session roster across instances, letting
// the debug API on any node see every active share. Transient Redis errors
// are retried with backoff; a missing key maps to domain.ErrSessionNotFound.
type RedisSessionRepository struct {
	client   *redis.Client
	prefix   string
	retryCfg retry.Config
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client:   client,
		prefix:   "ponslink:session:",
		retryCfg: retry.DefaultConfig(),
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) peersKey(id domain.SessionID) string {
	return r.prefix + string(id) + ":peers"
}

func (r *RedisSessionRepository) activeKey() string {
	return r.prefix + "active"
}

func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.StreamSession) error {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "save")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return retry.Retry(ctx, r.retryCfg, func() error {
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, r.sessionKey(session.ID), data, 0)
		pipe.SAdd(ctx, r.activeKey(), string(session.ID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to save session in Redis: %w", err)
		}
		return nil
	})
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "delete")
	defer span.End()

	return retry.Retry(ctx, r.retryCfg, func() error {
		pipe := r.client.TxPipeline()
		pipe.SRem(ctx, r.activeKey(), string(id))
		pipe.Del(ctx, r.sessionKey(id))
		pipe.Del(ctx, r.peersKey(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete session from Redis: %w", err)
		}
		return nil
	})
}

func (r *RedisSessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	ctx, span := tracing.TraceRepositoryOperation(ctx, "get")
	defer span.End()

	return retry.RetryWithResult(ctx, r.notFoundAware(), func() (*domain.StreamSession, error) {
		data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get session from Redis: %w", err)
		}

		var session domain.StreamSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return &session, nil
	})
}

func (r *RedisSessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	ids, err := retry.RetryWithResult(ctx, r.retryCfg, func() ([]string, error) {
		ids, err := r.client.SMembers(ctx, r.activeKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list active sessions: %w", err)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.StreamSession, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, domain.SessionID(id))
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Stale set member; the session key already expired.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (r *RedisSessionRepository) AddPeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error {
	return retry.Retry(ctx, r.retryCfg, func() error {
		if err := r.client.SAdd(ctx, r.peersKey(id), string(peer)).Err(); err != nil {
			return fmt.Errorf("failed to add peer to roster: %w", err)
		}
		return nil
	})
}

func (r *RedisSessionRepository) RemovePeer(ctx context.Context, id domain.SessionID, peer domain.PeerID) error {
	return retry.Retry(ctx, r.retryCfg, func() error {
		if err := r.client.SRem(ctx, r.peersKey(id), string(peer)).Err(); err != nil {
			return fmt.Errorf("failed to remove peer from roster: %w", err)
		}
		return nil
	})
}

func (r *RedisSessionRepository) Peers(ctx context.Context, id domain.SessionID) ([]domain.PeerID, error) {
	return retry.RetryWithResult(ctx, r.retryCfg, func() ([]domain.PeerID, error) {
		members, err := r.client.SMembers(ctx, r.peersKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list session peers: %w", err)
		}
		out := make([]domain.PeerID, 0, len(members))
		for _, m := range members {
			out = append(out, domain.PeerID(m))
		}
		return out, nil
	})
}

func (r *RedisSessionRepository) notFoundAware() retry.Config {
	cfg := r.retryCfg
	cfg.NonRetryableErrors = []error{domain.ErrSessionNotFound}
	return cfg
}
