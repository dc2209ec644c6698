package repository

import (
	"context"
	"errors"
	"fmt"

	"login-server/internal/interfaces"
	"login-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Compile-time check to ensure pgAccountRepository implements AccountRepository
var _ interfaces.AccountRepository = (*pgAccountRepository)(nil)

type pgAccountRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgAccountRepository creates a new PostgreSQL-backed AccountRepository.
func NewPgAccountRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AccountRepository {
	return &pgAccountRepository{
		db:     db,
		logger: logger.Named("PgAccountRepo"),
	}
}

// CreateAccount inserts a new account into the database.
func (r *pgAccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (username, password_hash, status) VALUES ($1, $2, $3) RETURNING id, created_at`
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("username", account.Username))
	err := r.db.QueryRow(ctx, query, account.Username, account.PasswordHash, account.Status).
		Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation (duplicate username)
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to create duplicate account", zap.String("username", account.Username))
			return models.ErrAccountAlreadyExists
		}
		r.logger.Error("Failed to create account in postgres", zap.Error(err), zap.String("username", account.Username))
		return fmt.Errorf("failed to create account in postgres: %w", err)
	}
	r.logger.Info("Account created successfully", zap.Uint32("accountID", account.ID), zap.String("username", account.Username))
	return nil
}

// GetAccountByUsername retrieves an account by its username.
func (r *pgAccountRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT id, username, password_hash, status, created_at, COALESCE(last_login_at, 'epoch'::timestamptz) FROM accounts WHERE username = $1`
	account := &models.Account{}
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("username", username))
	err := r.db.QueryRow(ctx, query, username).
		Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Status, &account.CreatedAt, &account.LastLoginAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Account not found by username", zap.String("username", username))
			return nil, models.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account by username from postgres", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get account by username from postgres: %w", err)
	}
	return account, nil
}

// GetAccountByID retrieves an account by its id.
func (r *pgAccountRepository) GetAccountByID(ctx context.Context, id uint32) (*models.Account, error) {
	query := `SELECT id, username, password_hash, status, created_at, COALESCE(last_login_at, 'epoch'::timestamptz) FROM accounts WHERE id = $1`
	account := &models.Account{}
	r.logger.Debug("Executing query", zap.String("query", query), zap.Uint32("id", id))
	err := r.db.QueryRow(ctx, query, id).
		Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Status, &account.CreatedAt, &account.LastLoginAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Account not found by id", zap.Uint32("id", id))
			return nil, models.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account by id from postgres", zap.Error(err), zap.Uint32("id", id))
		return nil, fmt.Errorf("failed to get account by id from postgres: %w", err)
	}
	return account, nil
}

// UpdatePassword replaces the stored password hash.
func (r *pgAccountRepository) UpdatePassword(ctx context.Context, id uint32, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $2 WHERE id = $1`
	r.logger.Debug("Executing query", zap.String("query", query), zap.Uint32("id", id))
	tag, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		r.logger.Error("Failed to update account password", zap.Error(err), zap.Uint32("id", id))
		return fmt.Errorf("failed to update account password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Password update matched no account", zap.Uint32("id", id))
		return models.ErrAccountNotFound
	}
	r.logger.Info("Account password updated", zap.Uint32("accountID", id))
	return nil
}

// TouchLastLogin records a successful login time.
func (r *pgAccountRepository) TouchLastLogin(ctx context.Context, id uint32) error {
	query := `UPDATE accounts SET last_login_at = now() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		r.logger.Error("Failed to touch last login", zap.Error(err), zap.Uint32("id", id))
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	return nil
}

// GetAccountCount retrieves the total number of accounts.
func (r *pgAccountRepository) GetAccountCount(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM accounts`
	var count int64
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		r.logger.Error("Failed to get account count from postgres", zap.Error(err))
		return 0, fmt.Errorf("failed to get account count: %w", err)
	}
	return count, nil
}
