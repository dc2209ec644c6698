package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"login-server/internal/config"
	"login-server/internal/interfaces"
	"login-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// GameSettings carries the login toggles read once from the Lua settings
// at startup.
type GameSettings struct {
	AccountCreationEnabled bool
	LogUserIP              bool
	SessionTTL             time.Duration
}

// HandoffClaims is the JWT payload handed to the client for the lobby
// server. The lobby verifies the signature with the shared secret and
// looks the session up by its id.
type HandoffClaims struct {
	AccountID uint32 `json:"accountId"`
	jwt.RegisteredClaims
}

// Compile-time check to ensure authServiceImpl implements AuthService
var _ AuthService = (*authServiceImpl)(nil)

type authServiceImpl struct {
	accountRepo interfaces.AccountRepository
	sessionRepo interfaces.SessionRepository
	cfg         *config.Config
	game        GameSettings
	logger      *zap.Logger
}

// NewAuthService creates a new instance of authServiceImpl.
func NewAuthService(
	accountRepo interfaces.AccountRepository,
	sessionRepo interfaces.SessionRepository,
	cfg *config.Config,
	game GameSettings,
	logger *zap.Logger,
) AuthService {
	return &authServiceImpl{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		cfg:         cfg,
		game:        game,
		logger:      logger.Named("AuthService"),
	}
}

// AttemptLogin verifies credentials and opens a login session.
func (s *authServiceImpl) AttemptLogin(ctx context.Context, username, password, clientIP string) (*models.Session, error) {
	username = strings.TrimSpace(username)
	log := s.logger.With(zap.String("username", username))
	if s.game.LogUserIP {
		log = log.With(zap.String("clientIP", clientIP))
	}
	log.Info("Login attempt")

	if username == "" || password == "" {
		log.Warn("Login failed: empty username or password")
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.accountRepo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Warn("Login failed: account not found")
			return nil, models.ErrInvalidCredentials
		}
		log.Error("Login failed: error getting account from repository", zap.Error(err))
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !checkPasswordHash(password, account.PasswordHash, s.cfg.PasswordPepper) {
		log.Warn("Login failed: invalid password", zap.Uint32("accountID", account.ID))
		return nil, models.ErrInvalidCredentials
	}

	switch account.Status {
	case models.AccountStatusBanned:
		log.Warn("Login failed: account is banned", zap.Uint32("accountID", account.ID))
		return nil, models.ErrAccountBanned
	case models.AccountStatusDisabled:
		log.Warn("Login failed: account is disabled", zap.Uint32("accountID", account.ID))
		return nil, models.ErrAccountDisabled
	}

	session := &models.Session{
		ID:        uuid.New(),
		AccountID: account.ID,
		Username:  account.Username,
		ClientIP:  clientIP,
		CreatedAt: time.Now().UTC(),
	}

	token, err := s.createHandoffToken(session)
	if err != nil {
		log.Error("Failed to create handoff token", zap.Error(err), zap.Uint32("accountID", account.ID))
		return nil, fmt.Errorf("failed to create handoff token: %w", err)
	}
	session.HandoffJWT = token

	if err := s.sessionRepo.SetSession(ctx, session); err != nil {
		log.Error("Failed to store session via repository", zap.Error(err), zap.Uint32("accountID", account.ID))
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	// Best effort; a failed timestamp must not fail the login.
	if err := s.accountRepo.TouchLastLogin(ctx, account.ID); err != nil {
		log.Warn("Failed to record last login time", zap.Error(err), zap.Uint32("accountID", account.ID))
	}

	log.Info("Login successful", zap.Uint32("accountID", account.ID), zap.String("sessionID", session.ID.String()))
	return session, nil
}

// CreateAccount registers a new account.
func (s *authServiceImpl) CreateAccount(ctx context.Context, username, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	log := s.logger.With(zap.String("username", username))
	log.Info("Account creation attempt")

	if !s.game.AccountCreationEnabled {
		log.Warn("Account creation attempt while creation is disabled")
		return nil, models.ErrAccountCreationClosed
	}

	if err := validateUsername(username); err != nil {
		log.Warn("Account creation failed: invalid username", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}
	if err := validatePassword(password); err != nil {
		log.Warn("Account creation failed: invalid password", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}

	hashedPassword, err := hashPassword(password, s.cfg.PasswordPepper)
	if err != nil {
		log.Error("Failed to hash password during account creation", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     username,
		PasswordHash: hashedPassword,
		Status:       models.AccountStatusNormal,
	}

	if err := s.accountRepo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, models.ErrAccountAlreadyExists) {
			log.Warn("Account creation failed: username taken")
			return nil, err
		}
		log.Error("Failed to create account via repository", zap.Error(err))
		return nil, err
	}

	log.Info("Account created", zap.Uint32("accountID", account.ID))
	return account, nil
}

// ChangePassword verifies the old password and stores a new one.
func (s *authServiceImpl) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	username = strings.TrimSpace(username)
	log := s.logger.With(zap.String("username", username))
	log.Info("Password change attempt")

	account, err := s.accountRepo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Warn("Password change failed: account not found")
			return models.ErrInvalidCredentials
		}
		log.Error("Password change failed: error getting account", zap.Error(err))
		return fmt.Errorf("failed to get account: %w", err)
	}

	if !checkPasswordHash(oldPassword, account.PasswordHash, s.cfg.PasswordPepper) {
		log.Warn("Password change failed: invalid old password", zap.Uint32("accountID", account.ID))
		return models.ErrInvalidCredentials
	}

	if account.Status == models.AccountStatusBanned {
		log.Warn("Password change failed: account is banned", zap.Uint32("accountID", account.ID))
		return models.ErrAccountBanned
	}

	if err := validatePassword(newPassword); err != nil {
		log.Warn("Password change failed: invalid new password", zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}

	hashedPassword, err := hashPassword(newPassword, s.cfg.PasswordPepper)
	if err != nil {
		log.Error("Failed to hash new password", zap.Error(err))
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.accountRepo.UpdatePassword(ctx, account.ID, hashedPassword); err != nil {
		log.Error("Failed to update password via repository", zap.Error(err), zap.Uint32("accountID", account.ID))
		return err
	}

	log.Info("Password changed", zap.Uint32("accountID", account.ID))
	return nil
}

// KickAccount drops every live session of an account.
func (s *authServiceImpl) KickAccount(ctx context.Context, accountID uint32) (int64, error) {
	deleted, err := s.sessionRepo.DeleteSessionsByAccountID(ctx, accountID)
	if err != nil {
		s.logger.Error("Failed to kick account sessions", zap.Error(err), zap.Uint32("accountID", accountID))
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Kicked account sessions", zap.Uint32("accountID", accountID), zap.Int64("sessions", deleted))
	}
	return deleted, nil
}

// createHandoffToken signs a short-lived JWT the lobby server can verify.
func (s *authServiceImpl) createHandoffToken(session *models.Session) (string, error) {
	now := time.Now()
	claims := &HandoffClaims{
		AccountID: session.AccountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID.String(),
			Subject:   session.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign handoff token: %w", err)
	}
	return signed, nil
}

// --- Helper Functions ---

// The wire protocol carries names and passwords in fixed 16 byte fields,
// so both are capped at 16 characters.
const maxCredentialLen = 16

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > maxCredentialLen {
		return fmt.Errorf("username must be between 3 and %d characters", maxCredentialLen)
	}
	for _, r := range username {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return fmt.Errorf("username may only contain letters, digits and underscore")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > maxCredentialLen {
		return fmt.Errorf("password must be between 6 and %d characters", maxCredentialLen)
	}
	return nil
}

// applyPepper applies HMAC-SHA256 using the pepper as the key.
func applyPepper(password, pepper string) []byte {
	h := hmac.New(sha256.New, []byte(pepper))
	h.Write([]byte(password))
	return h.Sum(nil)
}

// hashPassword generates a bcrypt hash of the password after applying the pepper.
func hashPassword(password, pepper string) (string, error) {
	pepperedPassword := applyPepper(password, pepper)
	bytes, err := bcrypt.GenerateFromPassword(pepperedPassword, bcrypt.DefaultCost)
	return string(bytes), err
}

// checkPasswordHash compares a plain text password (after applying pepper) with a stored hash.
func checkPasswordHash(password, hash, pepper string) bool {
	pepperedPassword := applyPepper(password, pepper)
	err := bcrypt.CompareHashAndPassword([]byte(hash), pepperedPassword)
	return err == nil
}
