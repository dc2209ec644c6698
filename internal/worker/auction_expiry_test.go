package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	msgmocks "login-server/internal/messaging/mocks"
	"login-server/internal/models"
	repomocks "login-server/internal/repository/mocks"
	"login-server/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWorker(auctions *repomocks.AuctionRepository, publisher *msgmocks.ItemReturnPublisher) (*AuctionExpiryWorker, time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewAuctionExpiryWorker(ExpiryConfig{
		Enabled:  true,
		MaxAge:   3 * 24 * time.Hour,
		Interval: time.Hour,
	}, auctions, publisher, zap.NewNop())
	w.now = func() time.Time { return now }
	return w, now
}

func listing(id int64, itemID int32, seller uint32) models.AuctionListing {
	return models.AuctionListing{
		ID:         id,
		ItemID:     itemID,
		Quantity:   1,
		SellerID:   seller,
		SellerName: "Testo",
		Price:      1000,
		ListedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSweep_NothingExpired(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, now := newTestWorker(auctions, publisher)

	auctions.On("ListExpired", mock.Anything, now.Add(-3*24*time.Hour), sweepBatchSize).
		Return([]models.AuctionListing(nil), nil)

	removed, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	publisher.AssertNotCalled(t, "PublishItemReturn", mock.Anything, mock.Anything)
	auctions.AssertNotCalled(t, "DeleteListings", mock.Anything, mock.Anything)
}

func TestSweep_PublishesThenDeletes(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, now := newTestWorker(auctions, publisher)

	expired := []models.AuctionListing{listing(1, 4096, 1001), listing(2, 4097, 1002)}
	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).Return(expired, nil)
	publisher.On("PublishItemReturn", mock.Anything, expired[0].ItemReturn(now)).Return(nil)
	publisher.On("PublishItemReturn", mock.Anything, expired[1].ItemReturn(now)).Return(nil)
	auctions.On("DeleteListings", mock.Anything, []int64{1, 2}).Return(int64(2), nil)

	removed, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	auctions.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSweep_PublishFailureKeepsUnpublishedListings(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, now := newTestWorker(auctions, publisher)

	expired := []models.AuctionListing{listing(1, 4096, 1001), listing(2, 4097, 1002)}
	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).Return(expired, nil)
	publisher.On("PublishItemReturn", mock.Anything, expired[0].ItemReturn(now)).Return(nil)
	publisher.On("PublishItemReturn", mock.Anything, expired[1].ItemReturn(now)).
		Return(errors.New("broker down"))
	// Only the published listing may be deleted.
	auctions.On("DeleteListings", mock.Anything, []int64{1}).Return(int64(1), nil)

	removed, err := w.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, removed)
	auctions.AssertExpectations(t)
}

func TestSweep_ListFailure(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, _ := newTestWorker(auctions, publisher)

	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).
		Return(nil, errors.New("db down"))

	_, err := w.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweep_DrainsFullBatches(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, _ := newTestWorker(auctions, publisher)

	// First call returns a full batch, second call the remainder.
	full := make([]models.AuctionListing, sweepBatchSize)
	fullIDs := make([]int64, sweepBatchSize)
	for i := range full {
		full[i] = listing(int64(i+1), 4096, 1001)
		fullIDs[i] = int64(i + 1)
	}
	rest := []models.AuctionListing{listing(int64(sweepBatchSize + 1), 4096, 1001)}

	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).Return(full, nil).Once()
	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).Return(rest, nil).Once()
	publisher.On("PublishItemReturn", mock.Anything, mock.Anything).Return(nil)
	auctions.On("DeleteListings", mock.Anything, fullIDs).Return(int64(sweepBatchSize), nil).Once()
	auctions.On("DeleteListings", mock.Anything, []int64{int64(sweepBatchSize + 1)}).Return(int64(1), nil).Once()

	removed, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sweepBatchSize+1, removed)
	auctions.AssertExpectations(t)
}

func TestExpiryConfigFromDefaultSettings(t *testing.T) {
	engine, err := settings.Load("../..", zap.NewNop())
	require.NoError(t, err)

	cfg, err := ExpiryConfigFromSettings(engine)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3*24*time.Hour, cfg.MaxAge)
	assert.Equal(t, time.Hour, cfg.Interval)
}

func TestStart_DisabledDoesNotSweep(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)

	w := NewAuctionExpiryWorker(ExpiryConfig{Enabled: false}, auctions, publisher, zap.NewNop())
	w.Start()
	w.Stop()

	auctions.AssertNotCalled(t, "ListExpired", mock.Anything, mock.Anything, mock.Anything)
}

func TestStop_WaitsForSweepInFlight(t *testing.T) {
	auctions := new(repomocks.AuctionRepository)
	publisher := new(msgmocks.ItemReturnPublisher)
	w, now := newTestWorker(auctions, publisher)

	sweepStarted := make(chan struct{})
	release := make(chan struct{})

	expired := []models.AuctionListing{listing(1, 4096, 1001)}
	auctions.On("ListExpired", mock.Anything, mock.Anything, sweepBatchSize).Return(expired, nil).Once()
	publisher.On("PublishItemReturn", mock.Anything, expired[0].ItemReturn(now)).
		Run(func(mock.Arguments) {
			close(sweepStarted)
			<-release
		}).
		Return(nil).Once()
	auctions.On("DeleteListings", mock.Anything, []int64{1}).Return(int64(1), nil).Once()

	w.Start()
	<-sweepStarted

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}

	auctions.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
