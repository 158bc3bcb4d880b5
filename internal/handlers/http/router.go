// Package http exposes the REST surface: auctions, bids, free bids,
// comments, chat tokens and share cards.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/goodbids/auction-server/internal/auth"
	"github.com/goodbids/auction-server/internal/bidding"
	"github.com/goodbids/auction-server/internal/database"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

type Handler struct {
	db       database.Service
	workflow *bidding.Workflow
	verifier *auth.Verifier
	chat     *auth.ChatTokenIssuer
}

func NewHandler(db database.Service, workflow *bidding.Workflow, verifier *auth.Verifier, chat *auth.ChatTokenIssuer) *Handler {
	return &Handler{db: db, workflow: workflow, verifier: verifier, chat: chat}
}

func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.requireUser)

	api.HandleFunc("/auctions", h.handleListAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}", h.handleGetAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bids", h.handleListBids).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/bids", h.handleStartBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/bids/{bidID}/capture", h.handleCaptureBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/bids/{bidID}", h.handleAbortBid).Methods(http.MethodDelete)
	api.HandleFunc("/auctions/{id}/free-bids/{freeBidID}", h.handleRedeemFreeBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/comments", h.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id}/comments", h.handleCreateComment).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id}/card.svg", h.handleShareCard).Methods(http.MethodGet)
	api.HandleFunc("/chat/token", h.handleChatToken).Methods(http.MethodPost)
	api.HandleFunc("/users/me/free-bids", h.handleMyFreeBids).Methods(http.MethodGet)

	admin := api.NewRoute().Subrouter()
	admin.Use(h.requireCharityAdmin)
	admin.HandleFunc("/auctions", h.handleCreateAuction).Methods(http.MethodPost)
	admin.HandleFunc("/auctions/{id}", h.handleUpdateAuction).Methods(http.MethodPatch)
	admin.HandleFunc("/free-bids", h.handleGrantFreeBid).Methods(http.MethodPost)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.db.Health())
}

type contextKey string

const userKey contextKey = "user"

func userFrom(ctx context.Context) types.User {
	user, _ := ctx.Value(userKey).(types.User)
	return user
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.verifier.Authenticate(r)
		if err != nil {
			respondError(w, apperrors.New(http.StatusUnauthorized, "Unauthorized"))
			return
		}
		user, err := h.db.GetUserByEmail(r.Context(), identity.Email)
		if err != nil {
			respondError(w, apperrors.New(http.StatusUnauthorized, "User not found"))
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireCharityAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r.Context()).Role != types.RoleCharityAdmin {
			respondError(w, apperrors.New(http.StatusForbidden, "Charity admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Could not encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps domain errors onto HTTP statuses. Contention and stale
// state are 409s the client is expected to retry from; payment declines get
// their own status so the frontend can reopen the payment sheet.
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError

	switch {
	case errors.As(err, &appErr) && appErr.Code >= 400 && appErr.Code < 600:
		respondJSON(w, appErr.Code, errorResponse{Error: appErr.Message})
	case errors.Is(err, apperrors.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, bidding.ErrMalformedAmount):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, bidding.ErrBidInProgress),
		errors.Is(err, apperrors.ErrLockHeld):
		respondJSON(w, http.StatusConflict, errorResponse{Error: "another bid is in progress"})
	case errors.Is(err, bidding.ErrStalePrice),
		errors.Is(err, bidding.ErrNotBiddable),
		errors.Is(err, apperrors.ErrStaleAuction),
		errors.Is(err, apperrors.ErrBidFinalized),
		errors.Is(err, apperrors.ErrFreeBidRedeemed):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrPaymentDeclined):
		respondJSON(w, http.StatusPaymentRequired, errorResponse{Error: "payment declined"})
	default:
		log.Error("Internal error: ", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.New(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
