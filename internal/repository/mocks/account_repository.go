package mocks

import (
	"context"

	"login-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock AccountRepository
type AccountRepository struct {
	mock.Mock
}

func (m *AccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *AccountRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	args := m.Called(ctx, username)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *AccountRepository) GetAccountByID(ctx context.Context, id uint32) (*models.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *AccountRepository) UpdatePassword(ctx context.Context, id uint32, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *AccountRepository) TouchLastLogin(ctx context.Context, id uint32) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *AccountRepository) GetAccountCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
