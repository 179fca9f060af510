package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func newTestLimits(globalMax int64, perIPMax int, perSecond float64, burst int) (*ConnectionLimits, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewConnectionLimits(clock, globalMax, perIPMax, perSecond, burst), clock
}

func TestConnectionLimits_AcquireRelease(t *testing.T) {
	limits, _ := newTestLimits(100, 10, 5, 5)

	ok, reason := limits.Acquire("192.168.1.1")
	assert.True(t, ok)
	assert.Equal(t, LimitReason(""), reason)
	assert.Equal(t, int64(1), limits.Active())

	limits.Release("192.168.1.1")
	assert.Equal(t, int64(0), limits.Active())
	assert.Equal(t, 0, limits.perIP.count("192.168.1.1"))
}

func TestConnectionLimits_GlobalLimitExceeded(t *testing.T) {
	limits, _ := newTestLimits(2, 100, 100, 100)

	ok1, _ := limits.Acquire("192.168.1.1")
	ok2, _ := limits.Acquire("192.168.1.2")
	assert.True(t, ok1)
	assert.True(t, ok2)

	ok3, reason := limits.Acquire("192.168.1.3")
	assert.False(t, ok3)
	assert.Equal(t, LimitReasonGlobal, reason)
	assert.Equal(t, int64(2), limits.Active())
}

func TestConnectionLimits_PerIPLimitExceeded(t *testing.T) {
	limits, _ := newTestLimits(100, 2, 100, 100)

	ok1, _ := limits.Acquire("192.168.1.1")
	ok2, _ := limits.Acquire("192.168.1.1")
	assert.True(t, ok1)
	assert.True(t, ok2)

	ok3, reason := limits.Acquire("192.168.1.1")
	assert.False(t, ok3)
	assert.Equal(t, LimitReasonPerIP, reason)

	ok4, _ := limits.Acquire("192.168.1.2")
	assert.True(t, ok4, "other addresses are unaffected")

	// Global slot taken by the failed attempt is rolled back.
	assert.Equal(t, int64(3), limits.Active())
}

func TestConnectionLimits_RateLimitAndRefill(t *testing.T) {
	limits, clock := newTestLimits(100, 100, 10, 2)

	ok1, _ := limits.Acquire("192.168.1.1")
	ok2, _ := limits.Acquire("192.168.1.1")
	assert.True(t, ok1)
	assert.True(t, ok2)

	ok3, reason := limits.Acquire("192.168.1.1")
	assert.False(t, ok3)
	assert.Equal(t, LimitReasonRate, reason)
	assert.Equal(t, int64(2), limits.Active(), "rate rejections hold nothing")

	ok4, _ := limits.Acquire("192.168.1.2")
	assert.True(t, ok4, "buckets are per address")

	clock.Advance(100 * time.Millisecond)
	ok5, _ := limits.Acquire("192.168.1.1")
	assert.True(t, ok5, "one token refilled after 100ms at 10/s")
}

func TestConnectionLimits_IdleRateLimitersAreDropped(t *testing.T) {
	limits, clock := newTestLimits(100, 100, 10, 5)

	for i := range 3 {
		ip := fmt.Sprintf("10.0.0.%d", i)
		ok, _ := limits.Acquire(ip)
		assert.True(t, ok)
		limits.Release(ip)
	}
	assert.Equal(t, 3, limits.rate.tracked())

	clock.Advance(rateLimiterIdleTTL + rateLimiterSweepInterval)
	ok, _ := limits.Acquire("10.0.0.99")
	assert.True(t, ok)

	assert.Equal(t, 1, limits.rate.tracked(), "only the fresh address remains")
}

func TestConnectionLimits_ReleaseUnknownIsHarmless(t *testing.T) {
	limits, _ := newTestLimits(10, 10, 10, 10)

	limits.perIP.release("192.168.1.1")
	assert.Equal(t, 0, limits.perIP.count("192.168.1.1"))
}

func TestConnectionLimits_ConcurrentGlobal(t *testing.T) {
	limits, _ := newTestLimits(100, 1000, 1000, 1000)
	var successCount, failCount atomic.Int64

	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := limits.Acquire("192.168.1.1"); ok {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(100), successCount.Load())
	assert.Equal(t, int64(100), failCount.Load())
	assert.Equal(t, int64(100), limits.Active())
}

func TestConnectionLimits_ConcurrentPerIP(t *testing.T) {
	limits, _ := newTestLimits(1000, 5, 1000, 1000)

	var wg sync.WaitGroup
	var successCount atomic.Int64

	for ip := range 10 {
		addr := fmt.Sprintf("192.168.1.%d", ip)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limits.Acquire(addr); ok {
					successCount.Add(1)
				}
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, int64(50), successCount.Load())
	assert.Equal(t, int64(50), limits.Active())
	for ip := range 10 {
		assert.Equal(t, 5, limits.perIP.count(fmt.Sprintf("192.168.1.%d", ip)))
	}
}
