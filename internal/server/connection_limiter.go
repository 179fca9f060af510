package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterIdleTTL       = 10 * time.Minute
	rateLimiterSweepInterval = 5 * time.Minute
)

// globalLimiter caps concurrent WebSocket connections per instance.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

// perIPLimiter caps concurrent connections from a single address.
type perIPLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	max    int
}

func (l *perIPLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[ip] >= l.max {
		return false
	}
	l.counts[ip]++
	return true
}

func (l *perIPLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch count := l.counts[ip]; {
	case count > 1:
		l.counts[ip] = count - 1
	case count == 1:
		delete(l.counts, ip)
	}
}

func (l *perIPLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ip]
}

// handshakeRateLimiter is a per-address token bucket for new upgrade attempts.
type handshakeRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*rateLimiterEntry
	limit     rate.Limit
	burst     int
	nextSweep time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *handshakeRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		l.dropIdle(now)
		l.nextSweep = now.Add(rateLimiterSweepInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// dropIdle must be called with mu held.
func (l *handshakeRateLimiter) dropIdle(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleTTL)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func (l *handshakeRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// LimitReason describes why an upgrade was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits guards the WebSocket endpoint with a global cap, a per-IP
// cap and a per-IP handshake rate. It is safe for concurrent use.
type ConnectionLimits struct {
	global *globalLimiter
	perIP  *perIPLimiter
	rate   *handshakeRateLimiter
}

// NewConnectionLimits creates the combined limiter.
// handshakesPerSecond and burst configure the per-IP token bucket.
func NewConnectionLimits(clock clockwork.Clock, globalMax int64, perIPMax int, handshakesPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		global: &globalLimiter{max: globalMax},
		perIP:  &perIPLimiter{counts: make(map[string]int), max: perIPMax},
		rate: &handshakeRateLimiter{
			clock:     clock,
			limiters:  make(map[string]*rateLimiterEntry),
			limit:     rate.Limit(handshakesPerSecond),
			burst:     burst,
			nextSweep: clock.Now().Add(rateLimiterSweepInterval),
		},
	}
}

// Acquire reserves a connection slot for ip. On success the caller must call
// Release once the connection ends. On failure nothing is held.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot taken by a successful Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}

// Active returns the number of held connection slots.
func (l *ConnectionLimits) Active() int64 {
	return l.global.current.Load()
}
