package domain

import "errors"

var (
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token expired")
	ErrMissingCredentials   = errors.New("missing authorization header")
	ErrMalformedCredentials = errors.New("malformed authorization header")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrRelayStopped         = errors.New("relay stopped")
)
