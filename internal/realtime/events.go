// Package realtime carries row-change events from the write path to every
// connected viewer. Events flow through Redis pub/sub so fan-out works across
// server instances; viewer-facing state is rebuilt by an explicit reducer so
// ordering and deduplication are testable rather than implicit.
package realtime

import (
	"encoding/json"

	"github.com/goodbids/auction-server/pkg/types"
)

// Change event types, mirroring the row operations they announce.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Tables that emit change events.
const (
	TableAuctions = "auctions"
	TableBidLocks = "bid_locks"
)

// ChangeEvent is one row-change notification, keyed by auction. Seq is a
// per-auction monotonic counter assigned by the publisher; consumers use it
// to drop stale and duplicate deliveries.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Type      string          `json:"type"`
	AuctionID string          `json:"auctionId"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AuctionView is the viewer-facing state for one auction: what the bid panel
// renders. It is only ever produced by Apply.
type AuctionView struct {
	AuctionID    string  `json:"auctionId"`
	HighBidValue int     `json:"highBidValue"`
	BidIncrement int     `json:"bidIncrement"`
	Status       string  `json:"status"`
	LatestBidder *string `json:"latestBidder,omitempty"`
	Locked       bool    `json:"locked"`
	LockHolderID string  `json:"lockHolderId,omitempty"`
	LastSeq      uint64  `json:"lastSeq"`
}

// Apply folds one change event into the view. Events at or below LastSeq are
// duplicates or out-of-order stragglers and leave the view untouched.
func Apply(view AuctionView, event ChangeEvent) AuctionView {
	if event.AuctionID != view.AuctionID && view.AuctionID != "" {
		return view
	}
	if event.Seq <= view.LastSeq {
		return view
	}
	view.AuctionID = event.AuctionID
	view.LastSeq = event.Seq

	switch event.Table {
	case TableAuctions:
		var auction types.Auction
		if err := json.Unmarshal(event.Payload, &auction); err != nil {
			return view
		}
		view.HighBidValue = auction.HighBidValue
		view.BidIncrement = auction.BidIncrement
		view.Status = auction.Status
		view.LatestBidder = auction.LatestBidderID

	case TableBidLocks:
		switch event.Type {
		case EventInsert:
			var lock types.BidLock
			if err := json.Unmarshal(event.Payload, &lock); err != nil {
				return view
			}
			view.Locked = true
			view.LockHolderID = lock.BidderID
		case EventDelete:
			view.Locked = false
			view.LockHolderID = ""
		}
	}

	return view
}
