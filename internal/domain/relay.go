package domain

// CloseTokenExpired is the WebSocket close code sent when a connection is
// evicted because its token lapsed. Clients should fetch a fresh token and
// reconnect when they see it.
const CloseTokenExpired = 4001

// ExpiryNotice is the terminal frame sent right before a token-expiry close.
type ExpiryNotice struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewExpiryNotice builds the notice sent to evicted connections.
func NewExpiryNotice() ExpiryNotice {
	return ExpiryNotice{
		Type:    "error",
		Error:   "token_expired",
		Message: "Session token expired. Request a new token and reconnect.",
	}
}
