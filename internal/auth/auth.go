// Package auth validates the session tokens minted by the web frontend's
// Auth.js layer. Sessions arrive as a JWE cookie; non-browser clients may
// instead send a signed JWT as a bearer token.
package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/hkdf"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

const sessionCookie = "authjs.session-token"

// Verifier checks incoming session tokens against the shared auth secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Identity is what the rest of the server knows about the caller.
type Identity struct {
	UserID string
	Email  string
}

// encryptionKey derives the JWE content key the same way Auth.js does: HKDF
// over the shared secret with the cookie name as salt.
func (v *Verifier) encryptionKey() ([]byte, error) {
	if len(v.secret) == 0 {
		return nil, apperrors.New(http.StatusInternalServerError, "auth secret not configured")
	}

	info := fmt.Sprintf("Auth.js Generated Encryption Key (%s)", sessionCookie)
	kdf := hkdf.New(sha256.New, v.secret, []byte(sessionCookie), []byte(info))

	key := make([]byte, 64)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, apperrors.Wrap(err, "failed to derive encryption key")
	}
	return key, nil
}

// decryptSession turns the JWE session cookie into a validated JWT.
func (v *Verifier) decryptSession(encrypted string) (jwt.Token, error) {
	key, err := v.encryptionKey()
	if err != nil {
		return nil, err
	}

	decrypted, err := jwe.Decrypt([]byte(encrypted), jwe.WithKey(jwa.DIRECT(), key))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decrypt session token")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(decrypted, &payload); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal session payload")
	}

	token := jwt.New()
	for k, val := range payload {
		token.Set(k, val)
	}
	return token, nil
}

// parseBearer validates a signed JWT presented in the Authorization header.
func (v *Verifier) parseBearer(raw string) (jwt.Token, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), v.secret),
		jwt.WithValidate(true))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to validate bearer token")
	}
	return token, nil
}

// Authenticate extracts and validates the caller's identity from the request:
// bearer token first, session cookie otherwise.
func (v *Verifier) Authenticate(r *http.Request) (Identity, error) {
	var token jwt.Token
	var err error

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token, err = v.parseBearer(strings.TrimPrefix(header, "Bearer "))
	} else {
		cookie, cookieErr := r.Cookie(sessionCookie)
		if cookieErr != nil {
			return Identity{}, apperrors.New(http.StatusUnauthorized, "missing session token")
		}
		token, err = v.decryptSession(cookie.Value)
	}
	if err != nil {
		return Identity{}, err
	}

	if exp, ok := token.Expiration(); ok && exp.Before(time.Now()) {
		return Identity{}, apperrors.New(http.StatusUnauthorized, "session token expired")
	}

	id := Identity{}
	if sub, ok := token.Subject(); ok {
		id.UserID = sub
	}
	if err := token.Get("email", &id.Email); err != nil || id.Email == "" {
		return Identity{}, apperrors.New(http.StatusUnauthorized, "session token missing email claim")
	}
	return id, nil
}
