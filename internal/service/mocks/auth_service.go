package mocks

import (
	"context"

	"login-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// AuthService is a testify mock for service.AuthService.
type AuthService struct {
	mock.Mock
}

func (m *AuthService) AttemptLogin(ctx context.Context, username, password, clientIP string) (*models.Session, error) {
	args := m.Called(ctx, username, password, clientIP)
	var session *models.Session
	if args.Get(0) != nil {
		session = args.Get(0).(*models.Session)
	}
	return session, args.Error(1)
}

func (m *AuthService) CreateAccount(ctx context.Context, username, password string) (*models.Account, error) {
	args := m.Called(ctx, username, password)
	var account *models.Account
	if args.Get(0) != nil {
		account = args.Get(0).(*models.Account)
	}
	return account, args.Error(1)
}

func (m *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	args := m.Called(ctx, username, oldPassword, newPassword)
	return args.Error(0)
}

func (m *AuthService) KickAccount(ctx context.Context, accountID uint32) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}
