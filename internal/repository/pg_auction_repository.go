package repository

import (
	"context"
	"fmt"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"
)

const (
	listExpiredListingsQuery = `
        SELECT id, item_id, quantity, seller_id, seller_name, price, listed_at
        FROM auction_house
        WHERE sold_at IS NULL AND listed_at < $1
        ORDER BY listed_at ASC
        LIMIT $2
    `
	deleteListingsQuery    = `DELETE FROM auction_house WHERE id = ANY($1) AND sold_at IS NULL`
	countOpenListingsQuery = `SELECT COUNT(*) FROM auction_house WHERE sold_at IS NULL`
)

// Compile-time check to ensure pgAuctionRepository implements AuctionRepository
var _ interfaces.AuctionRepository = (*pgAuctionRepository)(nil)

type pgAuctionRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgAuctionRepository creates a new PostgreSQL-backed AuctionRepository.
func NewPgAuctionRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AuctionRepository {
	return &pgAuctionRepository{
		db:     db,
		logger: logger.Named("PgAuctionRepo"),
	}
}

// ListExpired returns unsold listings listed before the cutoff, oldest first.
func (r *pgAuctionRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.AuctionListing, error) {
	log := r.logger.With(zap.Time("cutoff", cutoff), zap.Int("limit", limit))

	var listings []models.AuctionListing
	if err := pgxscan.Select(ctx, r.db, &listings, listExpiredListingsQuery, cutoff, limit); err != nil {
		log.Error("Error listing expired auction listings", zap.Error(err))
		return nil, fmt.Errorf("failed to list expired auction listings: %w", err)
	}
	log.Debug("Listed expired auction listings", zap.Int("count", len(listings)))
	return listings, nil
}

// DeleteListings removes the given listings and reports how many rows went.
func (r *pgAuctionRepository) DeleteListings(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, deleteListingsQuery, ids)
	if err != nil {
		r.logger.Error("Error deleting auction listings", zap.Error(err), zap.Int("requested", len(ids)))
		return 0, fmt.Errorf("failed to delete auction listings: %w", err)
	}
	deleted := tag.RowsAffected()
	if deleted != int64(len(ids)) {
		// A listing can sell between the sweep's SELECT and DELETE; the
		// sold_at guard above keeps such rows, so a short count is normal.
		r.logger.Debug("Some listings were not deleted", zap.Int("requested", len(ids)), zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// CountOpen returns the number of unsold listings.
func (r *pgAuctionRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, countOpenListingsQuery).Scan(&count); err != nil {
		r.logger.Error("Error counting open auction listings", zap.Error(err))
		return 0, fmt.Errorf("failed to count open auction listings: %w", err)
	}
	return count, nil
}
