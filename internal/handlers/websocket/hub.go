// Package websocket fans realtime change events out to every viewer of an
// auction and tracks per-auction presence.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/goodbids/auction-server/internal/auth"
	"github.com/goodbids/auction-server/internal/database"
	"github.com/goodbids/auction-server/internal/realtime"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

type Hub struct {
	db       database.Service
	verifier *auth.Verifier
	rooms    sync.Map // auctionID -> *room
	upgrader websocket.Upgrader
}

type room struct {
	mu      sync.Mutex
	clients map[*Client]bool
}

func NewHub(db database.Service, verifier *auth.Verifier, allowCrossOrigin bool) *Hub {
	return &Hub{
		db:       db,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowCrossOrigin },
		},
	}
}

// HandleAuctionWebSocket authenticates the request and joins the caller to
// the auction's room. Route: GET /ws/auction?auction_id=...
func (h *Hub) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Authenticate(r)
	if err != nil {
		log.Error("Invalid token: ", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), identity.Email)
	if err != nil {
		log.Error("User not found: ", err)
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	auctionID := r.URL.Query().Get("auction_id")
	if auctionID == "" {
		http.Error(w, "auction_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.db.GetAuctionByID(r.Context(), auctionID); err != nil {
		http.Error(w, "Auction not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:          user.ID,
		Email:       user.Email,
		AuctionID:   auctionID,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		RateLimiter: rate.NewLimiter(1, 3),
	}

	h.join(client)

	go client.ReadMessages(h, h.HandleMessage)
	go client.WriteMessages()
}

func (h *Hub) roomFor(auctionID string) *room {
	actual, _ := h.rooms.LoadOrStore(auctionID, &room{clients: make(map[*Client]bool)})
	return actual.(*room)
}

func (h *Hub) join(client *Client) {
	rm := h.roomFor(client.AuctionID)
	rm.mu.Lock()
	rm.clients[client] = true
	rm.mu.Unlock()

	log.Debugf("Client %s joined auction %s", client.ID, client.AuctionID)
	h.broadcastPresence(client.AuctionID)
}

func (h *Hub) disconnect(client *Client) {
	rm := h.roomFor(client.AuctionID)
	rm.mu.Lock()
	delete(rm.clients, client)
	rm.mu.Unlock()

	client.close()
	h.broadcastPresence(client.AuctionID)
}

// Broadcast sends a message to every client viewing the auction. Clients
// with a full send buffer are dropped so one slow reader cannot stall the
// rest of the room.
func (h *Hub) Broadcast(auctionID string, message []byte) {
	rm := h.roomFor(auctionID)

	var stale []*Client
	rm.mu.Lock()
	for client := range rm.clients {
		if !client.trySend(message) {
			delete(rm.clients, client)
			stale = append(stale, client)
		}
	}
	rm.mu.Unlock()

	for _, client := range stale {
		client.close()
	}
}

// Viewers returns the number of clients currently watching the auction.
func (h *Hub) Viewers(auctionID string) int {
	rm := h.roomFor(auctionID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.clients)
}

func (h *Hub) broadcastPresence(auctionID string) {
	payload, err := json.Marshal(struct {
		Type      string `json:"type"`
		AuctionID string `json:"auctionId"`
		Viewers   int    `json:"viewers"`
	}{Type: "presence", AuctionID: auctionID, Viewers: h.Viewers(auctionID)})
	if err != nil {
		log.Errorf("Could not marshal presence message: %v", err)
		return
	}
	h.Broadcast(auctionID, payload)
}

// Deliver bridges the realtime subscriber into the hub: every change event
// published for an auction is forwarded to its room verbatim.
func (h *Hub) Deliver(event realtime.ChangeEvent) {
	payload, err := json.Marshal(struct {
		Type  string               `json:"type"`
		Event realtime.ChangeEvent `json:"event"`
	}{Type: "change", Event: event})
	if err != nil {
		log.Errorf("Could not marshal change event: %v", err)
		return
	}
	h.Broadcast(event.AuctionID, payload)
}

// sendError writes an AppError payload to a single client.
func sendError(client *Client, code int, message string) {
	client.trySend(apperrors.New(code, message).ToJSON())
}
