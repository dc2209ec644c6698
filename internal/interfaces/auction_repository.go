package interfaces

import (
	"context"
	"time"

	"login-server/internal/models"
)

// AuctionRepository defines persistence for auction house listings. The
// expiry worker is its only consumer on this server; the game server owns
// the selling side.
type AuctionRepository interface {
	// ListExpired returns unsold listings listed before the cutoff,
	// oldest first, at most limit rows.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.AuctionListing, error)

	// DeleteListings removes the given listings. Returns the number of
	// rows actually deleted.
	DeleteListings(ctx context.Context, ids []int64) (int64, error)

	// CountOpen returns the number of unsold listings.
	CountOpen(ctx context.Context) (int64, error)
}
