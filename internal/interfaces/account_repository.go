package interfaces

import (
	"context"

	"login-server/internal/models"
)

// AccountRepository defines persistence for game accounts.
type AccountRepository interface {
	// CreateAccount inserts a new account.
	// Returns models.ErrAccountAlreadyExists on a duplicate username.
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByUsername retrieves an account by its username.
	// Returns models.ErrAccountNotFound if it does not exist.
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)

	// GetAccountByID retrieves an account by its id.
	// Returns models.ErrAccountNotFound if it does not exist.
	GetAccountByID(ctx context.Context, id uint32) (*models.Account, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id uint32, passwordHash string) error

	// TouchLastLogin records a successful login time.
	TouchLastLogin(ctx context.Context, id uint32) error

	// GetAccountCount retrieves the total number of accounts.
	GetAccountCount(ctx context.Context) (int64, error)
}
