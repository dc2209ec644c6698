package interfaces

import (
	"context"

	"login-server/internal/models"
)

// ItemReturnPublisher publishes delivery-box payloads for expired auction
// listings. The game server consumes the queue and mails the items back.
type ItemReturnPublisher interface {
	PublishItemReturn(ctx context.Context, payload models.ItemReturnPayload) error
}
