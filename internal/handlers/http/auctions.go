package http

import (
	"net/http"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.db.ListAuctions(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, err)
		return
	}
	if auctions == nil {
		auctions = []types.Auction{}
	}
	respondJSON(w, http.StatusOK, auctions)
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	auction, err := h.db.GetAuctionByID(r.Context(), pathVar(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, auction)
}

type createAuctionRequest struct {
	ItemID          string `json:"itemId"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	OpeningBidValue int    `json:"openingBidValue"`
	BidIncrement    int    `json:"bidIncrement"`
	Currency        string `json:"currency"`
	TopBidDuration  int    `json:"topBidDuration"`
	FeePercent      int    `json:"feePercent"`
}

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" || req.OpeningBidValue <= 0 || req.BidIncrement <= 0 {
		respondError(w, apperrors.New(http.StatusBadRequest, "name, openingBidValue and bidIncrement are required"))
		return
	}

	admin := userFrom(r.Context())
	if admin.CharityID == nil {
		respondError(w, apperrors.New(http.StatusForbidden, "admin has no charity"))
		return
	}

	if req.Currency == "" {
		req.Currency = "USD"
	}
	auction, err := h.db.CreateAuction(r.Context(), types.Auction{
		CharityID:       *admin.CharityID,
		ItemID:          req.ItemID,
		Name:            req.Name,
		Description:     req.Description,
		OpeningBidValue: req.OpeningBidValue,
		BidIncrement:    req.BidIncrement,
		Currency:        req.Currency,
		Status:          types.AuctionDraft,
		TopBidDuration:  req.TopBidDuration,
		FeePercent:      req.FeePercent,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, auction)
}

type updateAuctionRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	OpeningBidValue *int    `json:"openingBidValue"`
	BidIncrement    *int    `json:"bidIncrement"`
	Currency        *string `json:"currency"`
	TopBidDuration  *int    `json:"topBidDuration"`
	FeePercent      *int    `json:"feePercent"`
	Status          *string `json:"status"`
}

var validStatusTransitions = map[string]map[string]bool{
	types.AuctionDraft:  {types.AuctionActive: true},
	types.AuctionActive: {types.AuctionEnded: true},
}

func (h *Handler) handleUpdateAuction(w http.ResponseWriter, r *http.Request) {
	var req updateAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	auction, err := h.db.GetAuctionByID(r.Context(), pathVar(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	admin := userFrom(r.Context())
	if admin.CharityID == nil || *admin.CharityID != auction.CharityID {
		respondError(w, apperrors.New(http.StatusForbidden, "auction belongs to another charity"))
		return
	}

	if req.Name != nil {
		auction.Name = *req.Name
	}
	if req.Description != nil {
		auction.Description = *req.Description
	}
	if req.OpeningBidValue != nil {
		auction.OpeningBidValue = *req.OpeningBidValue
	}
	if req.BidIncrement != nil {
		auction.BidIncrement = *req.BidIncrement
	}
	if req.Currency != nil {
		auction.Currency = *req.Currency
	}
	if req.TopBidDuration != nil {
		auction.TopBidDuration = *req.TopBidDuration
	}
	if req.FeePercent != nil {
		auction.FeePercent = *req.FeePercent
	}

	updated, err := h.db.UpdateAuction(r.Context(), auction)
	if err != nil {
		respondError(w, err)
		return
	}

	if req.Status != nil && *req.Status != auction.Status {
		if !validStatusTransitions[auction.Status][*req.Status] {
			respondError(w, apperrors.New(http.StatusBadRequest, "invalid status transition"))
			return
		}
		if err := h.db.SetAuctionStatus(r.Context(), auction.ID, *req.Status); err != nil {
			respondError(w, err)
			return
		}
		updated.Status = *req.Status
	}

	respondJSON(w, http.StatusOK, updated)
}
