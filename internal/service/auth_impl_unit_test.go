package service

import (
	"context"
	"testing"
	"time"

	"login-server/internal/config"
	"login-server/internal/models"
	"login-server/internal/repository/mocks"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPepper = "test-pepper-for-unit-tests"

func testConfig() *config.Config {
	return &config.Config{
		PasswordPepper:  testPepper,
		JWTSecret:       "unit-test-jwt-secret",
		SessionTokenTTL: 5 * time.Minute,
	}
}

func testGameSettings() GameSettings {
	return GameSettings{
		AccountCreationEnabled: true,
		SessionTTL:             5 * time.Minute,
	}
}

func newTestService(accountRepo *mocks.AccountRepository, sessionRepo *mocks.SessionRepository) AuthService {
	return NewAuthService(accountRepo, sessionRepo, testConfig(), testGameSettings(), zap.NewNop())
}

func hashedAccount(t *testing.T, id uint32, username, password string) *models.Account {
	t.Helper()
	hash, err := hashPassword(password, testPepper)
	require.NoError(t, err)
	return &models.Account{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Status:       models.AccountStatusNormal,
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	password := "mysecretpass"

	hash, err := hashPassword(password, testPepper)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, checkPasswordHash(password, hash, testPepper))
	assert.False(t, checkPasswordHash("wrongpassword", hash, testPepper))
	assert.False(t, checkPasswordHash(password, hash, "another-pepper"))
	assert.False(t, checkPasswordHash(password, "not-a-bcrypt-hash", testPepper))
}

func TestAttemptLoginSuccess(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 42, "gilgamesh", "fisherman")
	accountRepo.On("GetAccountByUsername", mock.Anything, "gilgamesh").Return(account, nil)
	accountRepo.On("TouchLastLogin", mock.Anything, uint32(42)).Return(nil)
	sessionRepo.On("SetSession", mock.Anything, mock.AnythingOfType("*models.Session")).Return(nil)

	session, err := svc.AttemptLogin(context.Background(), "gilgamesh", "fisherman", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), session.AccountID)
	assert.Equal(t, "gilgamesh", session.Username)
	assert.NotEmpty(t, session.HandoffJWT)

	accountRepo.AssertExpectations(t)
	sessionRepo.AssertExpectations(t)
}

func TestAttemptLoginHandoffTokenIsVerifiable(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 7, "shantotto", "ohohohoho")
	accountRepo.On("GetAccountByUsername", mock.Anything, "shantotto").Return(account, nil)
	accountRepo.On("TouchLastLogin", mock.Anything, uint32(7)).Return(nil)
	sessionRepo.On("SetSession", mock.Anything, mock.Anything).Return(nil)

	session, err := svc.AttemptLogin(context.Background(), "shantotto", "ohohohoho", "")
	require.NoError(t, err)

	claims := &HandoffClaims{}
	token, err := jwt.ParseWithClaims(session.HandoffJWT, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("unit-test-jwt-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	assert.Equal(t, uint32(7), claims.AccountID)
	assert.Equal(t, session.ID.String(), claims.ID)
	assert.Equal(t, "shantotto", claims.Subject)
}

func TestAttemptLoginWrongPassword(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 42, "gilgamesh", "fisherman")
	accountRepo.On("GetAccountByUsername", mock.Anything, "gilgamesh").Return(account, nil)

	_, err := svc.AttemptLogin(context.Background(), "gilgamesh", "wrong", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	sessionRepo.AssertNotCalled(t, "SetSession", mock.Anything, mock.Anything)
}

func TestAttemptLoginUnknownAccount(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	accountRepo.On("GetAccountByUsername", mock.Anything, "nobody").Return(nil, models.ErrAccountNotFound)

	_, err := svc.AttemptLogin(context.Background(), "nobody", "whatever", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAttemptLoginBannedAccount(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 13, "botter", "password1")
	account.Status = models.AccountStatusBanned
	accountRepo.On("GetAccountByUsername", mock.Anything, "botter").Return(account, nil)

	_, err := svc.AttemptLogin(context.Background(), "botter", "password1", "")
	assert.ErrorIs(t, err, models.ErrAccountBanned)
	sessionRepo.AssertNotCalled(t, "SetSession", mock.Anything, mock.Anything)
}

func TestAttemptLoginEmptyCredentials(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	_, err := svc.AttemptLogin(context.Background(), "", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	accountRepo.AssertNotCalled(t, "GetAccountByUsername", mock.Anything, mock.Anything)
}

func TestCreateAccountSuccess(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	accountRepo.On("CreateAccount", mock.Anything, mock.AnythingOfType("*models.Account")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Account).ID = 1001
		}).
		Return(nil)

	account, err := svc.CreateAccount(context.Background(), "newplayer", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, uint32(1001), account.ID)
	assert.Equal(t, models.AccountStatusNormal, account.Status)
	// The repository must never see the clear text password.
	assert.NotEqual(t, "hunter22", account.PasswordHash)
	assert.True(t, checkPasswordHash("hunter22", account.PasswordHash, testPepper))
}

func TestCreateAccountDisabled(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	game := testGameSettings()
	game.AccountCreationEnabled = false
	svc := NewAuthService(accountRepo, sessionRepo, testConfig(), game, zap.NewNop())

	_, err := svc.CreateAccount(context.Background(), "newplayer", "hunter22")
	assert.ErrorIs(t, err, models.ErrAccountCreationClosed)
	accountRepo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccountDuplicate(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	accountRepo.On("CreateAccount", mock.Anything, mock.Anything).Return(models.ErrAccountAlreadyExists)

	_, err := svc.CreateAccount(context.Background(), "gilgamesh", "hunter22")
	assert.ErrorIs(t, err, models.ErrAccountAlreadyExists)
}

func TestCreateAccountRejectsBadNames(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	for _, username := range []string{"ab", "way_too_long_username", "bad name", "semi;colon"} {
		_, err := svc.CreateAccount(context.Background(), username, "hunter22")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "username %q should be rejected", username)
	}
	accountRepo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestChangePasswordSuccess(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 42, "gilgamesh", "oldpassword")
	accountRepo.On("GetAccountByUsername", mock.Anything, "gilgamesh").Return(account, nil)
	accountRepo.On("UpdatePassword", mock.Anything, uint32(42), mock.MatchedBy(func(hash string) bool {
		return checkPasswordHash("newpassword", hash, testPepper)
	})).Return(nil)

	err := svc.ChangePassword(context.Background(), "gilgamesh", "oldpassword", "newpassword")
	require.NoError(t, err)
	accountRepo.AssertExpectations(t)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	account := hashedAccount(t, 42, "gilgamesh", "oldpassword")
	accountRepo.On("GetAccountByUsername", mock.Anything, "gilgamesh").Return(account, nil)

	err := svc.ChangePassword(context.Background(), "gilgamesh", "nope", "newpassword")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	accountRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestKickAccount(t *testing.T) {
	accountRepo := new(mocks.AccountRepository)
	sessionRepo := new(mocks.SessionRepository)
	svc := newTestService(accountRepo, sessionRepo)

	sessionRepo.On("DeleteSessionsByAccountID", mock.Anything, uint32(42)).Return(int64(2), nil)

	deleted, err := svc.KickAccount(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
