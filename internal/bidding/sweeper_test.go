package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

type fakeSweeperStore struct {
	mu        sync.Mutex
	auctions  map[string]*types.Auction
	bids      map[string]*types.Bid
	locks     map[string]*types.BidLock
	statusSet map[string]string
}

func newFakeSweeperStore() *fakeSweeperStore {
	return &fakeSweeperStore{
		auctions:  make(map[string]*types.Auction),
		bids:      make(map[string]*types.Bid),
		locks:     make(map[string]*types.BidLock),
		statusSet: make(map[string]string),
	}
}

func (f *fakeSweeperStore) ExpiredLocks(_ context.Context, now time.Time) ([]types.BidLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.BidLock
	for _, lock := range f.locks {
		if !lock.ExpiresAt.After(now) {
			out = append(out, *lock)
		}
	}
	return out, nil
}

func (f *fakeSweeperStore) CancelBid(_ context.Context, bidID string) (types.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bid, ok := f.bids[bidID]
	if !ok {
		return types.Bid{}, apperrors.ErrNotFound
	}
	if bid.Status != types.BidPending {
		return types.Bid{}, apperrors.ErrBidFinalized
	}
	bid.Status = types.BidCancelled
	return *bid, nil
}

func (f *fakeSweeperStore) ReleaseLock(_ context.Context, auctionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, auctionID)
	return nil
}

func (f *fakeSweeperStore) UnchallengedAuctions(_ context.Context, now time.Time) ([]types.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Auction
	for _, auction := range f.auctions {
		if auction.Status != types.AuctionActive || auction.LatestBidTimestamp == nil {
			continue
		}
		deadline := auction.LatestBidTimestamp.Add(time.Duration(auction.TopBidDuration) * time.Second)
		if !deadline.After(now) {
			out = append(out, *auction)
		}
	}
	return out, nil
}

func (f *fakeSweeperStore) SetAuctionStatus(_ context.Context, auctionID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	auction, ok := f.auctions[auctionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	auction.Status = status
	f.statusSet[auctionID] = status
	return nil
}

func (f *fakeSweeperStore) GetAuctionByID(_ context.Context, auctionID string) (types.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	auction, ok := f.auctions[auctionID]
	if !ok {
		return types.Auction{}, apperrors.ErrNotFound
	}
	return *auction, nil
}

func newTestSweeper(store *fakeSweeperStore) (*Sweeper, *fakeNotifier, *fakeAudit) {
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	sweeper := NewSweeper(store, notifier, audit, time.Minute)
	sweeper.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return sweeper, notifier, audit
}

func TestSweepReclaimsExpiredLock(t *testing.T) {
	store := newFakeSweeperStore()
	sweeper, notifier, audit := newTestSweeper(store)
	now := sweeper.now()

	store.bids["bid-1"] = &types.Bid{ID: "bid-1", AuctionID: "auction-1", BidderID: "alice", Amount: 100, Status: types.BidPending}
	store.locks["auction-1"] = &types.BidLock{
		AuctionID: "auction-1",
		BidderID:  "alice",
		BidID:     "bid-1",
		LockedAt:  now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-30 * time.Second),
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, types.BidCancelled, store.bids["bid-1"].Status)
	assert.Empty(t, store.locks)
	require.Len(t, notifier.byTableAndType("bid_locks", "DELETE"), 1)
	assert.Equal(t, []string{types.BidCancelled}, audit.statuses())
}

func TestSweepLeavesLiveLockAlone(t *testing.T) {
	store := newFakeSweeperStore()
	sweeper, notifier, _ := newTestSweeper(store)
	now := sweeper.now()

	store.bids["bid-1"] = &types.Bid{ID: "bid-1", AuctionID: "auction-1", BidderID: "alice", Amount: 100, Status: types.BidPending}
	store.locks["auction-1"] = &types.BidLock{
		AuctionID: "auction-1",
		BidderID:  "alice",
		BidID:     "bid-1",
		LockedAt:  now,
		ExpiresAt: now.Add(90 * time.Second),
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, types.BidPending, store.bids["bid-1"].Status)
	assert.Len(t, store.locks, 1)
	assert.Empty(t, notifier.byTableAndType("bid_locks", "DELETE"))
}

func TestSweepReleasesLockOfFinalizedBid(t *testing.T) {
	store := newFakeSweeperStore()
	sweeper, _, audit := newTestSweeper(store)
	now := sweeper.now()

	// Completed bid whose lock release was lost. The sweep must not touch the
	// bid, only drop the lock.
	store.bids["bid-1"] = &types.Bid{ID: "bid-1", AuctionID: "auction-1", BidderID: "alice", Amount: 100, Status: types.BidComplete}
	store.locks["auction-1"] = &types.BidLock{
		AuctionID: "auction-1",
		BidderID:  "alice",
		BidID:     "bid-1",
		LockedAt:  now.Add(-5 * time.Minute),
		ExpiresAt: now.Add(-4 * time.Minute),
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, types.BidComplete, store.bids["bid-1"].Status)
	assert.Empty(t, store.locks)
	assert.Empty(t, audit.statuses())
}

func TestSweepEndsUnchallengedAuction(t *testing.T) {
	store := newFakeSweeperStore()
	sweeper, notifier, _ := newTestSweeper(store)
	now := sweeper.now()

	stale := now.Add(-10 * time.Minute)
	fresh := now.Add(-30 * time.Second)
	store.auctions["auction-1"] = &types.Auction{
		ID: "auction-1", Status: types.AuctionActive, HighBidValue: 250,
		TopBidDuration: 300, LatestBidTimestamp: &stale,
	}
	store.auctions["auction-2"] = &types.Auction{
		ID: "auction-2", Status: types.AuctionActive, HighBidValue: 120,
		TopBidDuration: 300, LatestBidTimestamp: &fresh,
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, types.AuctionEnded, store.auctions["auction-1"].Status)
	assert.Equal(t, types.AuctionActive, store.auctions["auction-2"].Status)
	require.Len(t, notifier.byTableAndType("auctions", "UPDATE"), 1)
}

func TestSweepSkipsAuctionWithoutBids(t *testing.T) {
	store := newFakeSweeperStore()
	sweeper, _, _ := newTestSweeper(store)

	store.auctions["auction-1"] = &types.Auction{
		ID: "auction-1", Status: types.AuctionActive, TopBidDuration: 300,
	}

	sweeper.Sweep(context.Background())

	assert.Equal(t, types.AuctionActive, store.auctions["auction-1"].Status)
}
