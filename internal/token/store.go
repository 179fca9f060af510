package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/metrics"
)

const (
	// Prefix marks strings issued by this server.
	Prefix = "hmt_"

	DefaultTTL      = 24 * time.Hour
	DefaultShortTTL = 5 * time.Second

	randomBytes   = 32
	maxIssueTries = 3
)

// Store issues and validates opaque bearer tokens with a fixed lifetime.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]domain.Token
	clock  clockwork.Clock
	grace  time.Duration
	random func([]byte) (int, error)
}

// NewStore creates an empty token store.
// grace controls how long expired tokens are kept before EvictExpired drops
// them, so the validation endpoint can still answer "expired" rather than
// "not found" for a while.
func NewStore(clock clockwork.Clock, grace time.Duration) *Store {
	return &Store{
		tokens: make(map[string]domain.Token),
		clock:  clock,
		grace:  grace,
		random: rand.Read,
	}
}

// Issue generates a fresh token valid for ttl.
func (s *Store) Issue(ttl time.Duration) (domain.Token, error) {
	if ttl <= 0 {
		return domain.Token{}, fmt.Errorf("token ttl must be positive, got %v", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for range maxIssueTries {
		value, err := s.generate()
		if err != nil {
			return domain.Token{}, fmt.Errorf("failed to generate token: %w", err)
		}
		if _, exists := s.tokens[value]; exists {
			continue
		}

		now := s.clock.Now()
		tok := domain.Token{
			Value:     value,
			IssuedAt:  now,
			ExpiresAt: now.Add(ttl),
		}
		s.tokens[value] = tok
		metrics.TokenStoreSize.Set(float64(len(s.tokens)))
		return tok, nil
	}

	return domain.Token{}, fmt.Errorf("failed to generate a unique token after %d attempts", maxIssueTries)
}

// IsValid reports whether token is known and has not yet expired.
func (s *Store) IsValid(token string) bool {
	_, err := s.Lookup(token)
	return err == nil
}

// Lookup returns the stored token if it is valid. Otherwise it returns
// domain.ErrTokenNotFound or domain.ErrTokenExpired.
func (s *Store) Lookup(token string) (domain.Token, error) {
	s.mu.RLock()
	tok, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok {
		return domain.Token{}, domain.ErrTokenNotFound
	}
	if !tok.ValidAt(s.clock.Now()) {
		return tok, domain.ErrTokenExpired
	}
	return tok, nil
}

// Len returns the number of stored tokens, including expired ones not yet evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// EvictExpired removes tokens that expired more than the grace period ago
// and returns how many were removed.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.grace)
	evicted := 0
	for value, tok := range s.tokens {
		if !tok.ValidAt(cutoff) {
			delete(s.tokens, value)
			evicted++
		}
	}

	metrics.TokenStoreSize.Set(float64(len(s.tokens)))
	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts expired tokens.
// Returns a stop function that should be called to clean up the goroutine.
func (s *Store) StartEvictionTimer(interval time.Duration) func() {
	ticker := s.clock.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := s.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired tokens", "count", evicted, "remaining", s.Len())
					metrics.TokenStoreEvictions.Add(float64(evicted))
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

func (s *Store) generate() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := s.random(buf); err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
