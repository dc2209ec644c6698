package interfaces

import (
	"context"

	"login-server/internal/models"

	"github.com/google/uuid"
)

// SessionRepository defines storage for live login sessions.
type SessionRepository interface {
	// SetSession stores a session under its UUID and records it in the
	// account's session set. Existing sessions for the account are kept;
	// the lobby decides about duplicate logins.
	SetSession(ctx context.Context, session *models.Session) error

	// GetSession retrieves a session by its UUID.
	// Returns models.ErrSessionNotFound if it does not exist or expired.
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// DeleteSession removes a single session.
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// DeleteSessionsByAccountID removes every session of an account and
	// returns the number of sessions deleted.
	DeleteSessionsByAccountID(ctx context.Context, accountID uint32) (int64, error)

	// ListSessions returns all live sessions, for the admin API.
	ListSessions(ctx context.Context) ([]models.Session, error)

	// CountSessions returns the number of live sessions.
	CountSessions(ctx context.Context) (int64, error)
}
