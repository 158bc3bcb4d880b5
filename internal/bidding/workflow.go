package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/goodbids/auction-server/internal/database"
	"github.com/goodbids/auction-server/internal/payments"
	"github.com/goodbids/auction-server/internal/realtime"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

// Store is the slice of the database surface the workflow needs. The
// production implementation is internal/database.Service; tests use a fake.
type Store interface {
	GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error)
	BidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error)
	GetBidByID(ctx context.Context, bidID string) (types.Bid, error)
	CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error)
	SetBidOrderID(ctx context.Context, bidID, orderID string) error
	CancelBid(ctx context.Context, bidID string) (types.Bid, error)
	AcquireLock(ctx context.Context, lock types.BidLock) error
	ReleaseLock(ctx context.Context, auctionID string) error
	GetLock(ctx context.Context, auctionID string) (types.BidLock, error)
	FinalizeBid(ctx context.Context, p database.FinalizeParams) (types.Bid, error)
}

// AuditPublisher receives the terminal event of every bid attempt.
type AuditPublisher interface {
	PublishBidEvent(ctx context.Context, event types.BidEvent) error
}

// Workflow drives a single bid attempt through its state machine:
// INACTIVE -> PENDING (lock held, ledger row inserted) -> COMPLETE|CANCELLED.
// Every step past lock acquisition has a compensation path that cancels the
// ledger row and releases the lock, so a failure never strands the auction.
type Workflow struct {
	store    Store
	provider payments.Provider
	notifier realtime.Notifier
	audit    AuditPublisher
	lockTTL  time.Duration
	now      func() time.Time
}

func NewWorkflow(store Store, provider payments.Provider, notifier realtime.Notifier, audit AuditPublisher, lockTTL time.Duration) *Workflow {
	return &Workflow{
		store:    store,
		provider: provider,
		notifier: notifier,
		audit:    audit,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// Attempt is the in-flight state returned to the client after StartBid. The
// payment order is approved out-of-band; the client then calls CaptureBid.
type Attempt struct {
	Bid     types.Bid       `json:"bid"`
	Order   *payments.Order `json:"order,omitempty"`
	Auction types.Auction   `json:"auction"`
}

// StartBid validates the proposed amount, serializes against other bidders
// via the lock row, records the PENDING ledger entry and opens a payment
// order. Any failure after the lock is acquired runs compensation.
func (w *Workflow) StartBid(ctx context.Context, auctionID, bidderID string, amount int) (*Attempt, error) {
	auction, history, err := w.loadAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if err := ValidateBid(auction, history, amount, bidderID); err != nil {
		return nil, err
	}

	// A bidder replaying their own in-flight request gets the existing
	// attempt back rather than tripping over their own lock.
	if latest := latestBid(history); latest != nil && latest.Status == types.BidPending && latest.BidderID == bidderID {
		if latest.Amount != amount {
			return nil, ErrBidInProgress
		}
		attempt := &Attempt{Bid: *latest, Auction: auction}
		if latest.OrderID != nil {
			attempt.Order = &payments.Order{ID: *latest.OrderID, Status: payments.OrderCreated}
		}
		return attempt, nil
	}

	bid, err := w.lockAndRecord(ctx, auction, bidderID, amount)
	if err != nil {
		return nil, err
	}

	order, err := w.provider.CreateOrder(ctx, amount, auction.Currency)
	if err != nil {
		w.compensate(ctx, auction.ID, bid.ID)
		return nil, fmt.Errorf("error creating payment order: %w", err)
	}

	if err := w.store.SetBidOrderID(ctx, bid.ID, order.ID); err != nil {
		w.compensate(ctx, auction.ID, bid.ID)
		return nil, err
	}
	bid.OrderID = &order.ID

	return &Attempt{Bid: bid, Order: &order, Auction: auction}, nil
}

// CaptureBid captures the payment for an in-flight bid and finalizes it. A
// provider decline cancels the bid and releases the lock.
func (w *Workflow) CaptureBid(ctx context.Context, auctionID, bidID, bidderID string) (types.Bid, error) {
	bid, err := w.store.GetBidByID(ctx, bidID)
	if err != nil {
		return types.Bid{}, err
	}
	if bid.AuctionID != auctionID || bid.BidderID != bidderID {
		return types.Bid{}, apperrors.ErrNotFound
	}
	if bid.Status != types.BidPending {
		return types.Bid{}, apperrors.ErrBidFinalized
	}
	if bid.OrderID == nil {
		return types.Bid{}, fmt.Errorf("bid %s has no payment order", bidID)
	}

	if _, err := w.provider.CaptureOrder(ctx, *bid.OrderID); err != nil {
		w.compensate(ctx, auctionID, bidID)
		if errors.Is(err, apperrors.ErrPaymentDeclined) {
			return types.Bid{}, err
		}
		return types.Bid{}, fmt.Errorf("error capturing payment: %w", err)
	}

	return w.finalize(ctx, bid, "")
}

// AbortBid is the client-driven cancel: the payer backed out of the payment
// flow, or navigated away and the frontend cleaned up.
func (w *Workflow) AbortBid(ctx context.Context, auctionID, bidID, bidderID string) error {
	bid, err := w.store.GetBidByID(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.AuctionID != auctionID || bid.BidderID != bidderID {
		return apperrors.ErrNotFound
	}
	if bid.Status != types.BidPending {
		return apperrors.ErrBidFinalized
	}
	w.compensate(ctx, auctionID, bidID)
	return nil
}

// RedeemFreeBid places a bid funded by a free-bid credit. The amount is the
// only one the validator would accept; consumption of the credit happens in
// the finalization transaction, so a double redemption fails there.
func (w *Workflow) RedeemFreeBid(ctx context.Context, auctionID, freeBidID, bidderID string) (types.Bid, error) {
	auction, history, err := w.loadAuction(ctx, auctionID)
	if err != nil {
		return types.Bid{}, err
	}

	amount := NextValidAmount(auction, history)
	if err := ValidateBid(auction, history, amount, bidderID); err != nil {
		return types.Bid{}, err
	}

	bid, err := w.lockAndRecord(ctx, auction, bidderID, amount)
	if err != nil {
		return types.Bid{}, err
	}

	return w.finalize(ctx, bid, freeBidID)
}

func (w *Workflow) loadAuction(ctx context.Context, auctionID string) (types.Auction, []types.Bid, error) {
	auction, err := w.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return types.Auction{}, nil, err
	}
	history, err := w.store.BidsForAuction(ctx, auctionID)
	if err != nil {
		return types.Auction{}, nil, err
	}
	return auction, history, nil
}

// lockAndRecord is the transition INACTIVE -> PENDING: lock row first, then
// the ledger entry. The bid ID is generated here so the lock row can carry it
// before the ledger insert exists.
func (w *Workflow) lockAndRecord(ctx context.Context, auction types.Auction, bidderID string, amount int) (types.Bid, error) {
	bidID := uuid.NewString()
	lock := types.BidLock{
		AuctionID: auction.ID,
		BidderID:  bidderID,
		BidID:     bidID,
		ExpiresAt: w.now().Add(w.lockTTL),
	}
	if err := w.store.AcquireLock(ctx, lock); err != nil {
		return types.Bid{}, err
	}
	w.publishLockEvent(ctx, realtime.EventInsert, lock)

	bid, err := w.store.CreateBid(ctx, types.Bid{
		ID:        bidID,
		AuctionID: auction.ID,
		BidderID:  bidderID,
		CharityID: auction.CharityID,
		Amount:    amount,
	})
	if err != nil {
		w.releaseLock(ctx, auction.ID, bidID)
		return types.Bid{}, err
	}
	return bid, nil
}

// finalize runs the terminal transaction and releases the lock. On a stale
// auction the attempt is compensated and the caller sees ErrStaleAuction.
func (w *Workflow) finalize(ctx context.Context, bid types.Bid, freeBidID string) (types.Bid, error) {
	auction, err := w.store.GetAuctionByID(ctx, bid.AuctionID)
	if err != nil {
		w.compensate(ctx, bid.AuctionID, bid.ID)
		return types.Bid{}, err
	}

	// The high bid the validator checked against is implied by the accepted
	// amount: amounts move in exact increments from the opening value, so the
	// first bid saw a zero high bid and every later one saw amount-increment.
	// If the auction no longer matches, the update is rejected as stale.
	expectedHighBid := bid.Amount - auction.BidIncrement
	if bid.Amount == auction.OpeningBidValue {
		expectedHighBid = 0
	}

	done, err := w.store.FinalizeBid(ctx, database.FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       bid.AuctionID,
		BidderID:        bid.BidderID,
		Amount:          bid.Amount,
		ExpectedHighBid: expectedHighBid,
		Timestamp:       w.now(),
		FreeBidID:       freeBidID,
	})
	if err != nil {
		w.compensate(ctx, bid.AuctionID, bid.ID)
		return types.Bid{}, err
	}

	w.releaseLock(ctx, bid.AuctionID, bid.ID)
	w.publishAuctionEvent(ctx, bid.AuctionID)
	w.publishAudit(ctx, done)
	return done, nil
}

// compensate is the all-purpose undo: cancel the ledger row if it is still
// pending, release the lock, and tell every viewer the lock is gone. It never
// fails the caller; whatever it cannot undo the sweeper reclaims via TTL.
func (w *Workflow) compensate(ctx context.Context, auctionID, bidID string) {
	cancelled, err := w.store.CancelBid(ctx, bidID)
	switch {
	case errors.Is(err, apperrors.ErrBidFinalized):
		// already terminal, nothing to undo
	case err != nil:
		log.Errorf("Compensation: could not cancel bid %s: %v", bidID, err)
	default:
		w.publishAudit(ctx, cancelled)
	}
	w.releaseLock(ctx, auctionID, bidID)
}

// releaseLock deletes the auction's lock only while bidID still owns it. A
// stale caller must not delete the lock a later attempt is holding, and must
// not broadcast a false unlock.
func (w *Workflow) releaseLock(ctx context.Context, auctionID, bidID string) {
	lock, err := w.store.GetLock(ctx, auctionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return
	}
	if err != nil {
		log.Errorf("Could not load lock for auction %s: %v", auctionID, err)
		return
	}
	if lock.BidID != bidID {
		log.Warnf("Lock on auction %s belongs to bid %s, not bid %s; leaving it", auctionID, lock.BidID, bidID)
		return
	}

	if err := w.store.ReleaseLock(ctx, auctionID); err != nil {
		log.Errorf("Could not release lock for auction %s: %v", auctionID, err)
		return
	}
	w.publishLockEvent(ctx, realtime.EventDelete, types.BidLock{AuctionID: auctionID})
}

func (w *Workflow) publishLockEvent(ctx context.Context, eventType string, lock types.BidLock) {
	payload, err := json.Marshal(lock)
	if err != nil {
		log.Errorf("Could not marshal lock event: %v", err)
		return
	}
	event := realtime.ChangeEvent{
		Table:     realtime.TableBidLocks,
		Type:      eventType,
		AuctionID: lock.AuctionID,
		Payload:   payload,
	}
	if err := w.notifier.Publish(ctx, event); err != nil {
		log.Errorf("Could not publish lock event for auction %s: %v", lock.AuctionID, err)
	}
}

func (w *Workflow) publishAuctionEvent(ctx context.Context, auctionID string) {
	auction, err := w.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		log.Errorf("Could not load auction %s for change event: %v", auctionID, err)
		return
	}
	payload, err := json.Marshal(auction)
	if err != nil {
		log.Errorf("Could not marshal auction event: %v", err)
		return
	}
	event := realtime.ChangeEvent{
		Table:     realtime.TableAuctions,
		Type:      realtime.EventUpdate,
		AuctionID: auctionID,
		Payload:   payload,
	}
	if err := w.notifier.Publish(ctx, event); err != nil {
		log.Errorf("Could not publish auction event for %s: %v", auctionID, err)
	}
}

func (w *Workflow) publishAudit(ctx context.Context, bid types.Bid) {
	if w.audit == nil {
		return
	}
	event := types.BidEvent{
		EventID:   uuid.NewString(),
		AuctionID: bid.AuctionID,
		BidID:     bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Status:    bid.Status,
		Timestamp: w.now(),
	}
	if err := w.audit.PublishBidEvent(ctx, event); err != nil {
		log.Errorf("Could not publish audit event for bid %s: %v", bid.ID, err)
	}
}
