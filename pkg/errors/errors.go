package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

type AppError struct {
	Code    int    // HTTP status code or custom error code
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

const (
	ErrInvalidToken       = 1001
	ErrAuctionNotFound    = 1002
	ErrBidTooLow          = 1003
	ErrAuctionClosed      = 1004
	ErrWebSocketUpgrade   = 1005
	ErrBadMessageFormat   = 1006
	ErrUnknownMessageType = 1007
	ErrBidConflict        = 1008
	ErrStalePrice         = 1009
	ErrPaymentFailed      = 1010

	ErrInternalServer = 500
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON renders the error as a websocket/HTTP error payload.
func (e *AppError) ToJSON() []byte {
	out, err := json.Marshal(struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{Type: "error", Code: e.Code, Message: e.Message})
	if err != nil {
		return []byte(`{"type":"error","message":"internal server error"}`)
	}
	return out
}

// Wrapping utility
func Wrap(err error, message string) *AppError {
	return &AppError{Message: message, Err: err}
}

// Error creation utility
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Sentinel errors for the bidding domain. Callers branch on these with
// errors.Is; the HTTP and websocket layers map them to AppError codes.
var (
	ErrNotFound        = errors.New("not found")
	ErrLockHeld        = errors.New("auction lock already held")
	ErrStaleAuction    = errors.New("auction state changed since validation")
	ErrBidFinalized    = errors.New("bid already in a terminal state")
	ErrFreeBidRedeemed = errors.New("free bid already redeemed")
	ErrPaymentDeclined = errors.New("payment declined by provider")
)
