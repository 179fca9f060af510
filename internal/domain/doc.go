// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (token.go, errors.go, relay.go) hold the shared types and
// the small consumer-side interfaces. No implementation code - just contracts.
package domain
