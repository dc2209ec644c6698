package mocks

import (
	"context"
	"time"

	"login-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock AuctionRepository
type AuctionRepository struct {
	mock.Mock
}

func (m *AuctionRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.AuctionListing, error) {
	args := m.Called(ctx, cutoff, limit)
	listings, _ := args.Get(0).([]models.AuctionListing)
	return listings, args.Error(1)
}

func (m *AuctionRepository) DeleteListings(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AuctionRepository) CountOpen(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
