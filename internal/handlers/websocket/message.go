package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

type Message struct {
	Type string `json:"type"` // Type of the message (e.g., "presence", "ping")
	Data string `json:"data"` // Payload of the message
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes an incoming client message. Bids travel over the HTTP
// API because they involve the payment approval round-trip; the socket only
// carries lightweight viewer traffic.
func (h *Hub) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		sendError(client, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		sendError(client, apperrors.ErrBadMessageFormat, "Invalid message format")
		return
	}

	switch msg.Type {
	case "ping":
		client.trySend([]byte(`{"type":"pong"}`))
	case "presence":
		h.broadcastPresence(client.AuctionID)
	default:
		log.Debugf("Unknown message type from client %s: %s", client.ID, msg.Type)
		sendError(client, apperrors.ErrUnknownMessageType, "Unknown message type")
	}
}
