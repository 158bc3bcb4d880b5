package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-auth-secret"

func signedToken(t *testing.T, secret string, mutate func(*jwt.Builder)) string {
	t.Helper()
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject("user-1").
		Claim("email", "alice@example.com").
		IssuedAt(now).
		Expiration(now.Add(time.Hour))
	if mutate != nil {
		mutate(builder)
	}
	token, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func TestAuthenticateBearer(t *testing.T) {
	verifier := NewVerifier(testSecret)

	r := httptest.NewRequest("GET", "/api/auctions", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, nil))

	id, err := verifier.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestAuthenticateRejectsWrongKey(t *testing.T) {
	verifier := NewVerifier(testSecret)

	r := httptest.NewRequest("GET", "/api/auctions", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "some-other-secret", nil))

	_, err := verifier.Authenticate(r)
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	verifier := NewVerifier(testSecret)

	expired := signedToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Minute))
	})
	r := httptest.NewRequest("GET", "/api/auctions", nil)
	r.Header.Set("Authorization", "Bearer "+expired)

	_, err := verifier.Authenticate(r)
	assert.Error(t, err)
}

func TestAuthenticateRejectsMissingEmail(t *testing.T) {
	verifier := NewVerifier(testSecret)

	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject("user-1").
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), []byte(testSecret)))
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/auctions", nil)
	r.Header.Set("Authorization", "Bearer "+string(signed))

	_, err = verifier.Authenticate(r)
	assert.Error(t, err)
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	verifier := NewVerifier(testSecret)

	r := httptest.NewRequest("GET", "/api/auctions", nil)

	_, err := verifier.Authenticate(r)
	assert.Error(t, err)
}

func TestChatTokenCarriesChannelClaim(t *testing.T) {
	issuer := NewChatTokenIssuer("chat-key", "chat-secret", time.Hour)

	raw, err := issuer.Issue("user-1", "auction-1")
	require.NoError(t, err)

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), []byte("chat-secret")),
		jwt.WithValidate(true))
	require.NoError(t, err)

	sub, ok := token.Subject()
	require.True(t, ok)
	assert.Equal(t, "user-1", sub)

	var channel string
	require.NoError(t, token.Get("channel", &channel))
	assert.Equal(t, "auction-auction-1", channel)

	iss, ok := token.Issuer()
	require.True(t, ok)
	assert.Equal(t, "chat-key", iss)
}
