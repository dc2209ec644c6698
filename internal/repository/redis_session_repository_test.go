package repository

import (
	"context"
	"testing"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupSessionRepo starts a miniredis instance and wires the repository to it.
func setupSessionRepo(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, interfaces.SessionRepository) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisSessionRepository(client, ttl, zap.NewNop())
}

func testSession(accountID uint32) *models.Session {
	return &models.Session{
		ID:        uuid.New(),
		AccountID: accountID,
		Username:  "adventurer",
		ClientIP:  "203.0.113.7",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSetAndGetSession(t *testing.T) {
	_, repo := setupSessionRepo(t, 5*time.Minute)
	ctx := context.Background()

	session := testSession(1001)
	require.NoError(t, repo.SetSession(ctx, session))

	got, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.AccountID, got.AccountID)
	assert.Equal(t, session.Username, got.Username)
	assert.Equal(t, session.ClientIP, got.ClientIP)
}

func TestGetSessionNotFound(t *testing.T) {
	_, repo := setupSessionRepo(t, 5*time.Minute)

	_, err := repo.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionExpires(t *testing.T) {
	mr, repo := setupSessionRepo(t, time.Minute)
	ctx := context.Background()

	session := testSession(1002)
	require.NoError(t, repo.SetSession(ctx, session))

	mr.FastForward(2 * time.Minute)

	_, err := repo.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	_, repo := setupSessionRepo(t, time.Minute)
	ctx := context.Background()

	session := testSession(1003)
	require.NoError(t, repo.SetSession(ctx, session))

	require.NoError(t, repo.DeleteSession(ctx, session.ID))
	require.NoError(t, repo.DeleteSession(ctx, session.ID))

	_, err := repo.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestDeleteSessionsByAccountID(t *testing.T) {
	_, repo := setupSessionRepo(t, time.Minute)
	ctx := context.Background()

	first := testSession(2000)
	second := testSession(2000)
	other := testSession(2001)
	require.NoError(t, repo.SetSession(ctx, first))
	require.NoError(t, repo.SetSession(ctx, second))
	require.NoError(t, repo.SetSession(ctx, other))

	deleted, err := repo.DeleteSessionsByAccountID(ctx, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = repo.GetSession(ctx, first.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	// The unrelated account keeps its session.
	_, err = repo.GetSession(ctx, other.ID)
	assert.NoError(t, err)
}

func TestListAndCountSessions(t *testing.T) {
	_, repo := setupSessionRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.SetSession(ctx, testSession(3000)))
	require.NoError(t, repo.SetSession(ctx, testSession(3001)))

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	count, err := repo.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
