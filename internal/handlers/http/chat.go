package http

import (
	"net/http"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

type chatTokenRequest struct {
	AuctionID string `json:"auctionId"`
}

type chatTokenResponse struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// handleChatToken mints a token for the external chat provider scoped to the
// auction's channel.
func (h *Handler) handleChatToken(w http.ResponseWriter, r *http.Request) {
	var req chatTokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.AuctionID == "" {
		respondError(w, apperrors.New(http.StatusBadRequest, "auctionId is required"))
		return
	}

	if _, err := h.db.GetAuctionByID(r.Context(), req.AuctionID); err != nil {
		respondError(w, err)
		return
	}

	user := userFrom(r.Context())
	token, err := h.chat.Issue(user.ID, req.AuctionID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chatTokenResponse{
		Token:   token,
		Channel: "auction-" + req.AuctionID,
	})
}
