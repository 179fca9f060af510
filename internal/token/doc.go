// Package token implements the in-memory bearer token store.
//
// Tokens are 32 bytes from crypto/rand, base64 raw-URL encoded with an "hmt_" prefix.
// Validity is purely time-derived (now < ExpiresAt); tokens are never revoked.
// Expired entries are purged lazily by EvictExpired after a grace period.
package token
