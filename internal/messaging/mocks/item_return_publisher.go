package mocks

import (
	"context"

	"login-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// Mock ItemReturnPublisher
type ItemReturnPublisher struct {
	mock.Mock
}

func (m *ItemReturnPublisher) PublishItemReturn(ctx context.Context, payload models.ItemReturnPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
