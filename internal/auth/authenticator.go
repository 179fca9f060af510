// Package auth decides whether a WebSocket upgrade request carries a usable bearer token.
//
// It only inspects the handshake request; refusing the raw connection and
// completing the upgrade are left to the HTTP layer.
package auth

import (
	"net/http"
	"strings"

	"github.com/uwrealitylabs/humanoid-server/internal/domain"
)

const bearerScheme = "Bearer"

// Authenticator gates connection upgrades on a valid bearer token.
type Authenticator struct {
	tokens domain.TokenValidator
}

func NewAuthenticator(tokens domain.TokenValidator) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Authenticate extracts the bearer token from r and checks it against the
// token store. It returns the token on success, or one of
// domain.ErrMissingCredentials, domain.ErrMalformedCredentials or
// domain.ErrInvalidToken.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrMissingCredentials
	}

	token, ok := ParseBearer(header)
	if !ok {
		return "", domain.ErrMalformedCredentials
	}

	if !a.tokens.IsValid(token) {
		return "", domain.ErrInvalidToken
	}

	return token, nil
}

// ParseBearer splits an Authorization header value of the form "Bearer <token>".
// The scheme is matched case-insensitively; the token must be non-empty and
// contain no whitespace.
func ParseBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// RejectReason maps an authentication error onto a short metrics label.
func RejectReason(err error) string {
	switch err {
	case domain.ErrMissingCredentials:
		return "missing"
	case domain.ErrMalformedCredentials:
		return "malformed"
	default:
		return "invalid"
	}
}
