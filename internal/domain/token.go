package domain

import "time"

// Token is an opaque bearer credential with a fixed lifetime.
type Token struct {
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiryDate"`
}

// ValidAt reports whether the token is still usable at now.
// Validity is strictly before ExpiresAt.
func (t Token) ValidAt(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// TokenValidator answers whether a bearer token is currently valid.
// Unknown and expired tokens are both reported as invalid.
type TokenValidator interface {
	IsValid(token string) bool
}
