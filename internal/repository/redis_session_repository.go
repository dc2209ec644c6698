package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisSessionRepository implements SessionRepository
var _ interfaces.SessionRepository = (*redisSessionRepository)(nil)

// Key layout:
//
//	login_session:{sessionUUID}      -> JSON session, TTL
//	account_sessions:{accountID}     -> set of session UUIDs, TTL refreshed
//	                                    on every SetSession
type redisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSessionRepository creates a new Redis-backed SessionRepository.
// ttl bounds how long a session may wait for the lobby handoff.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.SessionRepository {
	return &redisSessionRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("login_session:%s", id)
}

func accountSetKey(accountID uint32) string {
	return fmt.Sprintf("account_sessions:%d", accountID)
}

// SetSession stores the session and registers it in the account's set.
func (r *redisSessionRepository) SetSession(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionKey(session.ID)
	setKey := accountSetKey(session.AccountID)

	// Pipeline keeps the session key and the account set in step.
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, payload, r.ttl)
	pipe.SAdd(ctx, setKey, session.ID.String())
	pipe.Expire(ctx, setKey, r.ttl)

	r.logger.Debug("Storing login session",
		zap.String("sessionID", session.ID.String()),
		zap.Uint32("accountID", session.AccountID),
		zap.Duration("ttl", r.ttl),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to store session in redis", zap.Error(err), zap.String("sessionID", session.ID.String()))
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// GetSession retrieves a session by its UUID.
func (r *redisSessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Session not found in redis", zap.String("sessionID", id.String()))
			return nil, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to get session from redis", zap.Error(err), zap.String("sessionID", id.String()))
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Corrupted data in Redis is a serious problem, not a cache miss.
		r.logger.Error("Failed to unmarshal session data from redis", zap.Error(err), zap.String("sessionID", id.String()))
		return nil, fmt.Errorf("corrupted session data in redis for %s: %w", id, err)
	}
	return &session, nil
}

// DeleteSession removes a single session and its set entry.
func (r *redisSessionRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	session, err := r.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil // already gone, deletion is idempotent
		}
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, accountSetKey(session.AccountID), id.String())

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete session from redis", zap.Error(err), zap.String("sessionID", id.String()))
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	r.logger.Info("Session deleted", zap.String("sessionID", id.String()), zap.Uint32("accountID", session.AccountID))
	return nil
}

// DeleteSessionsByAccountID removes every session of an account using the
// account's session set.
func (r *redisSessionRepository) DeleteSessionsByAccountID(ctx context.Context, accountID uint32) (int64, error) {
	log := r.logger.With(zap.Uint32("accountID", accountID))
	setKey := accountSetKey(accountID)

	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			log.Debug("No session set found for account")
			return 0, nil
		}
		log.Error("Failed to get session set from redis", zap.Error(err))
		return 0, fmt.Errorf("failed to get session set for account %d: %w", accountID, err)
	}
	if len(ids) == 0 {
		r.client.Del(ctx, setKey)
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, idStr := range ids {
		id, parseErr := uuid.Parse(idStr)
		if parseErr != nil {
			log.Warn("Malformed session id in account set", zap.String("value", idStr))
			continue
		}
		keys = append(keys, sessionKey(id))
	}

	pipe := r.client.Pipeline()
	var delCmd *redis.IntCmd
	if len(keys) > 0 {
		delCmd = pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, setKey)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("Failed to delete account sessions from redis", zap.Error(err))
		return 0, fmt.Errorf("failed to delete sessions for account %d: %w", accountID, err)
	}

	var deleted int64
	if delCmd != nil {
		deleted, _ = delCmd.Result()
	}
	log.Info("Deleted account sessions", zap.Int64("deleted", deleted))
	return deleted, nil
}

// ListSessions returns all live sessions by scanning the session keyspace.
// The session count is small (players mid-login), so SCAN is fine here.
func (r *redisSessionRepository) ListSessions(ctx context.Context) ([]models.Session, error) {
	sessions := make([]models.Session, 0)

	iter := r.client.Scan(ctx, 0, "login_session:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("failed to read session %s: %w", iter.Val(), err)
		}
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			r.logger.Warn("Skipping corrupted session entry", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan sessions in redis", zap.Error(err))
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return sessions, nil
}

// CountSessions returns the number of live sessions.
func (r *redisSessionRepository) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, "login_session:*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to count sessions in redis", zap.Error(err))
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
