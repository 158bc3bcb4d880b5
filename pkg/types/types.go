package types

import (
	"time"
)

// Auction statuses.
const (
	AuctionDraft  = "DRAFT"
	AuctionActive = "ACTIVE"
	AuctionEnded  = "ENDED"
)

// Bid statuses. COMPLETE and CANCELLED are terminal.
const (
	BidPending   = "PENDING"
	BidComplete  = "COMPLETE"
	BidCancelled = "CANCELLED"
)

// Free bid statuses.
const (
	FreeBidAvailable = "AVAILABLE"
	FreeBidRedeemed  = "REDEEMED"
)

// User roles.
const (
	RoleBidder       = "bidder"
	RoleCharityAdmin = "charity_admin"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CharityID *string   `json:"charityId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Charity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Website     string    `json:"website"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Item struct {
	ID          string    `json:"id"`
	CharityID   string    `json:"charityId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Auction struct {
	ID                 string     `json:"id"`
	CharityID          string     `json:"charityId"`
	ItemID             string     `json:"itemId"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	OpeningBidValue    int        `json:"openingBidValue"`
	HighBidValue       int        `json:"highBidValue"`
	BidIncrement       int        `json:"bidIncrement"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	TopBidDuration     int        `json:"topBidDuration"` // seconds an unchallenged high bid stands before the auction ends
	LatestBidderID     *string    `json:"latestBidderId,omitempty"`
	LatestBidTimestamp *time.Time `json:"latestBidTimestamptz,omitempty"`
	BiddersCount       int        `json:"biddersCount"`
	FeePercent         int        `json:"feePercent"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Biddable reports whether the auction accepts new bids.
func (a Auction) Biddable() bool {
	return a.Status == AuctionActive
}

type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	CharityID string    `json:"charityId"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	OrderID   *string   `json:"orderId,omitempty"` // payment provider order handle, nil for free bids
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BidLock is the per-auction advisory mutex row. Its existence means a bid
// is in flight; the unique constraint on auction_id is the serialization point.
type BidLock struct {
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	BidID     string    `json:"bidId"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type FreeBid struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	AuctionID  string     `json:"auctionId"`
	Status     string     `json:"status"`
	GrantedBy  string     `json:"grantedBy"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// BidEvent is the audit record published after a bid reaches a terminal state.
type BidEvent struct {
	EventID   string    `json:"eventId"`
	AuctionID string    `json:"auctionId"`
	BidID     string    `json:"bidId"`
	BidderID  string    `json:"bidderId"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
