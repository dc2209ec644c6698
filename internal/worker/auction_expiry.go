package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/settings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	expiredListingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_expired_listings_total",
		Help: "Auction listings removed by the expiry worker.",
	})
	expirySweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_expiry_sweep_errors_total",
		Help: "Expiry sweeps that failed part way.",
	})
)

// sweepBatchSize bounds one sweep so a long backlog is worked off in
// chunks instead of one giant transaction.
const sweepBatchSize = 500

// ExpiryConfig mirrors the search section of the settings.
type ExpiryConfig struct {
	Enabled  bool
	MaxAge   time.Duration
	Interval time.Duration
}

// ExpiryConfigFromSettings reads the search.EXPIRE_* keys.
func ExpiryConfigFromSettings(engine *settings.Engine) (ExpiryConfig, error) {
	var cfg ExpiryConfig
	var err error

	if cfg.Enabled, err = engine.GetBool("search.EXPIRE_AUCTIONS"); err != nil {
		return cfg, err
	}
	days, err := engine.GetInt("search.EXPIRE_DAYS")
	if err != nil {
		return cfg, err
	}
	cfg.MaxAge = time.Duration(days) * 24 * time.Hour
	if cfg.Interval, err = engine.GetSeconds("search.EXPIRE_INTERVAL"); err != nil {
		return cfg, err
	}

	if cfg.Enabled && cfg.Interval <= 0 {
		return cfg, fmt.Errorf("search.EXPIRE_INTERVAL must be positive, got %s", cfg.Interval)
	}
	return cfg, nil
}

// AuctionExpiryWorker periodically removes unsold auction listings older
// than the configured age and publishes an item return for each one.
type AuctionExpiryWorker struct {
	cfg       ExpiryConfig
	auctions  interfaces.AuctionRepository
	publisher interfaces.ItemReturnPublisher
	logger    *zap.Logger

	now func() time.Time

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func NewAuctionExpiryWorker(
	cfg ExpiryConfig,
	auctions interfaces.AuctionRepository,
	publisher interfaces.ItemReturnPublisher,
	logger *zap.Logger,
) *AuctionExpiryWorker {
	return &AuctionExpiryWorker{
		cfg:       cfg,
		auctions:  auctions,
		publisher: publisher,
		logger:    logger.Named("AuctionExpiry"),
		now:       time.Now,
		shutdown:  make(chan struct{}),
	}
}

// Start runs one sweep immediately, then one per interval until Stop.
// Disabled workers log and return without starting the loop.
func (w *AuctionExpiryWorker) Start() {
	if !w.cfg.Enabled {
		w.logger.Info("Auction expiry is disabled in the settings")
		return
	}

	w.logger.Info("Auction expiry worker started",
		zap.Duration("max_age", w.cfg.MaxAge),
		zap.Duration("interval", w.cfg.Interval))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.runSweep()
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.shutdown:
				return
			case <-ticker.C:
				w.runSweep()
			}
		}
	}()
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (w *AuctionExpiryWorker) Stop() {
	close(w.shutdown)
	w.wg.Wait()
	w.logger.Info("Auction expiry worker stopped")
}

func (w *AuctionExpiryWorker) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	removed, err := w.Sweep(ctx)
	if err != nil {
		expirySweepErrorsTotal.Inc()
		w.logger.Error("Auction expiry sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Info("Auction expiry sweep finished", zap.Int("removed", removed))
	}
}

// Sweep removes all currently expired listings and returns how many it
// deleted. A listing is only deleted after its item return has been
// published, so a publish failure never loses the item.
func (w *AuctionExpiryWorker) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.cfg.MaxAge)
	total := 0

	for {
		listings, err := w.auctions.ListExpired(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list expired auctions: %w", err)
		}
		if len(listings) == 0 {
			return total, nil
		}

		ids := make([]int64, 0, len(listings))
		for _, listing := range listings {
			payload := listing.ItemReturn(w.now())
			if err := w.publisher.PublishItemReturn(ctx, payload); err != nil {
				// Delete what was published so far and bail out; the
				// rest is retried on the next sweep.
				if len(ids) > 0 {
					if n, delErr := w.auctions.DeleteListings(ctx, ids); delErr == nil {
						total += int(n)
						expiredListingsTotal.Add(float64(n))
					}
				}
				return total, fmt.Errorf("failed to publish item return for listing %d: %w", listing.ID, err)
			}
			w.logger.Debug("Expired auction listing",
				zap.Int64("listing_id", listing.ID),
				zap.Int32("item_id", listing.ItemID),
				zap.String("seller", listing.SellerName))
			ids = append(ids, listing.ID)
		}

		deleted, err := w.auctions.DeleteListings(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired auctions: %w", err)
		}
		total += int(deleted)
		expiredListingsTotal.Add(float64(deleted))

		if len(listings) < sweepBatchSize {
			return total, nil
		}
	}
}
