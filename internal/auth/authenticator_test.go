package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
)

type stubValidator map[string]bool

func (s stubValidator) IsValid(token string) bool { return s[token] }

func newRequest(authorization string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

func TestAuthenticate(t *testing.T) {
	validator := stubValidator{"good-token": true, "expired-token": false}
	authenticator := NewAuthenticator(validator)

	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   error
	}{
		{"valid bearer", "Bearer good-token", "good-token", nil},
		{"lowercase scheme", "bearer good-token", "good-token", nil},
		{"surrounding whitespace", "  Bearer   good-token  ", "good-token", nil},
		{"missing header", "", "", domain.ErrMissingCredentials},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", domain.ErrMalformedCredentials},
		{"scheme only", "Bearer", "", domain.ErrMalformedCredentials},
		{"scheme with blank token", "Bearer    ", "", domain.ErrMalformedCredentials},
		{"raw token without scheme", "good-token", "", domain.ErrMalformedCredentials},
		{"token with inner space", "Bearer good token", "", domain.ErrMalformedCredentials},
		{"unknown token", "Bearer not-a-real-token", "", domain.ErrInvalidToken},
		{"expired token", "Bearer expired-token", "", domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := authenticator.Authenticate(newRequest(tt.header))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "missing", RejectReason(domain.ErrMissingCredentials))
	assert.Equal(t, "malformed", RejectReason(domain.ErrMalformedCredentials))
	assert.Equal(t, "invalid", RejectReason(domain.ErrInvalidToken))
}
