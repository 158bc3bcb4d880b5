package database

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goodbids/auction-server/pkg/types"
)

// FinalizeParams names everything the finalization transaction needs. The
// expected high bid is whatever the validator checked against; the update is
// rejected if the auction moved on since.
type FinalizeParams struct {
	BidID           string
	AuctionID       string
	BidderID        string
	Amount          int
	ExpectedHighBid int
	Timestamp       time.Time

	// FreeBidID, when set, consumes the credit in the same transaction.
	FreeBidID string
}

// FinalizeBid commits the terminal step of a bid attempt as one serializable
// transaction: ledger row to COMPLETE, auction high-bid fields updated, and
// optionally a free-bid credit consumed. Either all of it lands or none.
func (s *service) FinalizeBid(ctx context.Context, p FinalizeParams) (types.Bid, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return types.Bid{}, err
	}
	defer tx.Rollback()

	// Take the auction row lock first so concurrent finalizations queue on it
	// instead of aborting each other under serializable isolation.
	if _, err := s.GetAuctionByIDTx(ctx, tx, p.AuctionID); err != nil {
		return types.Bid{}, err
	}

	if p.FreeBidID != "" {
		if err := s.RedeemFreeBidTx(ctx, tx, p.FreeBidID, p.BidderID); err != nil {
			return types.Bid{}, err
		}
	}

	bid, err := s.CompleteBidTx(ctx, tx, p.BidID)
	if err != nil {
		return types.Bid{}, err
	}

	if err := s.ApplyBidTx(ctx, tx, p.AuctionID, p.Amount, p.BidderID, p.Timestamp, p.ExpectedHighBid); err != nil {
		return types.Bid{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Bid{}, err
	}

	log.Debugf("Bid %s finalized on auction %s at %d", p.BidID, p.AuctionID, p.Amount)
	return bid, nil
}
