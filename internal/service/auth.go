package service

import (
	"context"

	"login-server/internal/models"
)

// AuthService is the login server's core contract: everything the TCP
// frontend can ask for on behalf of a client.
type AuthService interface {
	// AttemptLogin verifies credentials and opens a login session.
	// Returns models.ErrInvalidCredentials when the account does not
	// exist or the password is wrong, models.ErrAccountBanned /
	// models.ErrAccountDisabled for blocked accounts.
	AttemptLogin(ctx context.Context, username, password, clientIP string) (*models.Session, error)

	// CreateAccount registers a new account. Returns
	// models.ErrAccountCreationClosed when creation is disabled in the
	// settings and models.ErrAccountAlreadyExists on a duplicate name.
	CreateAccount(ctx context.Context, username, password string) (*models.Account, error)

	// ChangePassword verifies the old password and stores a new one.
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error

	// KickAccount drops every live session of an account, e.g. after a
	// ban. Returns the number of sessions removed.
	KickAccount(ctx context.Context, accountID uint32) (int64, error)
}
