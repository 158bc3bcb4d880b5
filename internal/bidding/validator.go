// Package bidding implements the bid workflow: validation, the per-auction
// lock, the pending ledger entry, payment capture, and atomic finalization
// with compensation on every failure path.
package bidding

import (
	"errors"

	"github.com/goodbids/auction-server/pkg/types"
)

// Validation rejections. The handlers map these onto client-facing errors.
var (
	ErrMalformedAmount = errors.New("bid amount must be positive")
	ErrNotBiddable     = errors.New("auction is not accepting bids")
	ErrStalePrice      = errors.New("bid amount does not match the current price")
	ErrBidInProgress   = errors.New("another bid is in progress on this auction")
)

// ValidateBid decides whether bidderID may bid amount on the auction, given
// its full bid history ordered oldest first.
//
// The first bid must equal the opening value. Every later bid must beat the
// latest completed bid and land exactly one increment above the current high
// bid. A pending bid by someone else is a conflict; a pending bid by the same
// bidder is a retry of the in-flight request and passes.
func ValidateBid(auction types.Auction, history []types.Bid, amount int, bidderID string) error {
	if amount <= 0 {
		return ErrMalformedAmount
	}
	if !auction.Biddable() {
		return ErrNotBiddable
	}

	if latest := latestBid(history); latest != nil && latest.Status == types.BidPending {
		if latest.BidderID != bidderID {
			return ErrBidInProgress
		}
		return nil
	}

	latestComplete := latestCompleteBid(history)
	if latestComplete == nil {
		if amount != auction.OpeningBidValue {
			return ErrStalePrice
		}
		return nil
	}

	if amount <= latestComplete.Amount {
		return ErrStalePrice
	}
	if amount != auction.HighBidValue+auction.BidIncrement {
		return ErrStalePrice
	}
	return nil
}

// NextValidAmount returns the only amount ValidateBid would accept for a
// fresh bid on the auction. Free-bid redemption uses it, since the bidder
// never types an amount on that path.
func NextValidAmount(auction types.Auction, history []types.Bid) int {
	if latestCompleteBid(history) == nil {
		return auction.OpeningBidValue
	}
	return auction.HighBidValue + auction.BidIncrement
}

func latestBid(history []types.Bid) *types.Bid {
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

func latestCompleteBid(history []types.Bid) *types.Bid {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status == types.BidComplete {
			return &history[i]
		}
	}
	return nil
}
