package http

import (
	"net/http"
	"strings"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.db.CommentsForAuction(r.Context(), pathVar(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if comments == nil {
		comments = []types.Comment{}
	}
	respondJSON(w, http.StatusOK, comments)
}

type createCommentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		respondError(w, apperrors.New(http.StatusBadRequest, "comment body is required"))
		return
	}

	if _, err := h.db.GetAuctionByID(r.Context(), pathVar(r, "id")); err != nil {
		respondError(w, err)
		return
	}

	user := userFrom(r.Context())
	comment, err := h.db.CreateComment(r.Context(), types.Comment{
		AuctionID: pathVar(r, "id"),
		UserID:    user.ID,
		UserName:  user.Name,
		Body:      req.Body,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}
