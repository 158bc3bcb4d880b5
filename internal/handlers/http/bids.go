package http

import (
	"net/http"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

func (h *Handler) handleListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.db.BidsForAuction(r.Context(), pathVar(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if bids == nil {
		bids = []types.Bid{}
	}
	respondJSON(w, http.StatusOK, bids)
}

type startBidRequest struct {
	Amount int `json:"amount"`
}

// handleStartBid opens a bid attempt: validation, lock, PENDING ledger row
// and a payment order for the client to approve.
func (h *Handler) handleStartBid(w http.ResponseWriter, r *http.Request) {
	var req startBidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user := userFrom(r.Context())
	attempt, err := h.workflow.StartBid(r.Context(), pathVar(r, "id"), user.ID, req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, attempt)
}

// handleCaptureBid is called after the payer approved the order; it captures
// the payment and finalizes the bid.
func (h *Handler) handleCaptureBid(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	bid, err := h.workflow.CaptureBid(r.Context(), pathVar(r, "id"), pathVar(r, "bidID"), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bid)
}

// handleAbortBid cancels an in-flight bid: ledger row to CANCELLED, lock
// released.
func (h *Handler) handleAbortBid(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := h.workflow.AbortBid(r.Context(), pathVar(r, "id"), pathVar(r, "bidID"), user.ID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRedeemFreeBid(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	bid, err := h.workflow.RedeemFreeBid(r.Context(), pathVar(r, "id"), pathVar(r, "freeBidID"), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bid)
}

func (h *Handler) handleMyFreeBids(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	freeBids, err := h.db.FreeBidsForUser(r.Context(), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if freeBids == nil {
		freeBids = []types.FreeBid{}
	}
	respondJSON(w, http.StatusOK, freeBids)
}

type grantFreeBidRequest struct {
	UserID    string `json:"userId"`
	AuctionID string `json:"auctionId"`
}

func (h *Handler) handleGrantFreeBid(w http.ResponseWriter, r *http.Request) {
	var req grantFreeBidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.UserID == "" || req.AuctionID == "" {
		respondError(w, apperrors.New(http.StatusBadRequest, "userId and auctionId are required"))
		return
	}

	admin := userFrom(r.Context())
	granted, err := h.db.GrantFreeBid(r.Context(), types.FreeBid{
		UserID:    req.UserID,
		AuctionID: req.AuctionID,
		GrantedBy: admin.ID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, granted)
}
