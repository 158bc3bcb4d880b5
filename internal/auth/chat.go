package auth

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

// ChatTokenIssuer mints the tokens the external chat provider expects: an
// HS256 JWT signed with the provider API secret, carrying the user and the
// per-auction channel they may join.
type ChatTokenIssuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

func NewChatTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *ChatTokenIssuer {
	return &ChatTokenIssuer{apiKey: apiKey, apiSecret: []byte(apiSecret), ttl: ttl}
}

func (i *ChatTokenIssuer) Issue(userID, auctionID string) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(i.apiKey).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim("user_id", userID).
		Claim("channel", "auction-"+auctionID).
		Build()
	if err != nil {
		return "", apperrors.Wrap(err, "failed to build chat token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), i.apiSecret))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign chat token")
	}
	return string(signed), nil
}
