package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/goodbids/auction-server/internal/realtime"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

// SweeperStore is the database surface the periodic check needs.
type SweeperStore interface {
	ExpiredLocks(ctx context.Context, now time.Time) ([]types.BidLock, error)
	CancelBid(ctx context.Context, bidID string) (types.Bid, error)
	ReleaseLock(ctx context.Context, auctionID string) error
	UnchallengedAuctions(ctx context.Context, now time.Time) ([]types.Auction, error)
	SetAuctionStatus(ctx context.Context, auctionID, status string) error
	GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error)
}

// Sweeper reclaims expired bid locks and ends auctions whose high bid has
// stood unchallenged for the configured duration. It is the reconciliation
// half of the workflow: whatever compensation could not undo, the sweeper
// eventually does.
type Sweeper struct {
	store    SweeperStore
	notifier realtime.Notifier
	audit    AuditPublisher
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store SweeperStore, notifier realtime.Notifier, audit AuditPublisher, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		audit:    audit,
		interval: interval,
		now:      time.Now,
	}
}

// StartPeriodicCheck runs the sweep on a ticker until ctx is cancelled.
func (s *Sweeper) StartPeriodicCheck(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass of both checks.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.reclaimExpiredLocks(ctx)
	s.endUnchallengedAuctions(ctx)
}

func (s *Sweeper) reclaimExpiredLocks(ctx context.Context) {
	locks, err := s.store.ExpiredLocks(ctx, s.now())
	if err != nil {
		log.Errorf("Sweep: could not list expired locks: %v", err)
		return
	}

	for _, lock := range locks {
		log.Warnf("Reclaiming expired lock on auction %s (bidder %s)", lock.AuctionID, lock.BidderID)

		cancelled, err := s.store.CancelBid(ctx, lock.BidID)
		switch {
		case errors.Is(err, apperrors.ErrBidFinalized):
			// the bid completed but the release was lost; just drop the lock
		case errors.Is(err, apperrors.ErrNotFound):
			// lock acquired but the ledger insert never happened
		case err != nil:
			log.Errorf("Sweep: could not cancel bid %s: %v", lock.BidID, err)
			continue
		default:
			s.publishAudit(ctx, cancelled)
		}

		if err := s.store.ReleaseLock(ctx, lock.AuctionID); err != nil {
			log.Errorf("Sweep: could not release lock for auction %s: %v", lock.AuctionID, err)
			continue
		}
		s.publishLockDelete(ctx, lock.AuctionID)
	}
}

func (s *Sweeper) endUnchallengedAuctions(ctx context.Context) {
	auctions, err := s.store.UnchallengedAuctions(ctx, s.now())
	if err != nil {
		log.Errorf("Sweep: could not list unchallenged auctions: %v", err)
		return
	}

	for _, auction := range auctions {
		if err := s.store.SetAuctionStatus(ctx, auction.ID, types.AuctionEnded); err != nil {
			log.Errorf("Sweep: could not end auction %s: %v", auction.ID, err)
			continue
		}
		log.Infof("Auction %s ended: high bid %d stood for %ds", auction.ID, auction.HighBidValue, auction.TopBidDuration)
		s.publishAuctionUpdate(ctx, auction.ID)
	}
}

func (s *Sweeper) publishLockDelete(ctx context.Context, auctionID string) {
	event := realtime.ChangeEvent{
		Table:     realtime.TableBidLocks,
		Type:      realtime.EventDelete,
		AuctionID: auctionID,
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		log.Errorf("Sweep: could not publish lock event for auction %s: %v", auctionID, err)
	}
}

func (s *Sweeper) publishAuctionUpdate(ctx context.Context, auctionID string) {
	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		log.Errorf("Sweep: could not load auction %s: %v", auctionID, err)
		return
	}
	payload, err := json.Marshal(auction)
	if err != nil {
		log.Errorf("Sweep: could not marshal auction %s: %v", auctionID, err)
		return
	}
	event := realtime.ChangeEvent{
		Table:     realtime.TableAuctions,
		Type:      realtime.EventUpdate,
		AuctionID: auctionID,
		Payload:   payload,
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		log.Errorf("Sweep: could not publish auction event for %s: %v", auctionID, err)
	}
}

func (s *Sweeper) publishAudit(ctx context.Context, bid types.Bid) {
	if s.audit == nil {
		return
	}
	event := types.BidEvent{
		EventID:   uuid.NewString(),
		AuctionID: bid.AuctionID,
		BidID:     bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Status:    bid.Status,
		Timestamp: s.now(),
	}
	if err := s.audit.PublishBidEvent(ctx, event); err != nil {
		log.Errorf("Sweep: could not publish audit event for bid %s: %v", bid.ID, err)
	}
}
