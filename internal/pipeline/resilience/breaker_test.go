// internal/pipeline/resilience/breaker_test.go
package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, clock *fakeClock) *Registry {
	reg := NewRegistry(Options{
		FailureThreshold: 5,
		Lookback:         10 * time.Minute,
		Cooldown:         60 * time.Second,
		RateWindow:       24 * time.Hour,
		Clock:            clock.Now,
	}, logger.NewTestLogger(t))
	reg.Register(models.SourceConfig{ID: "src-1", DailyBudget: 100})
	return reg
}

func TestBreaker_OpensExactlyAtThreshold(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 4; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
		assert.Equal(t, CircuitClosed, reg.CircuitStatusOf("src-1"),
			"must stay closed below threshold (failure %d)", i+1)
	}

	reg.RecordFailure("src-1", errBoom, KindTimeout)
	assert.Equal(t, CircuitOpen, reg.CircuitStatusOf("src-1"))

	allowed, reason := reg.ShouldAllow("src-1")
	assert.False(t, allowed)
	assert.Contains(t, reason, "cooling down")
}

func TestBreaker_IsolatedFailureDoesNotOpen(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	reg.RecordFailure("src-1", errors.New("one-off"), KindGenericAPIError)
	assert.Equal(t, CircuitClosed, reg.CircuitStatusOf("src-1"))
	allowed, _ := reg.ShouldAllow("src-1")
	assert.True(t, allowed)
}

func TestBreaker_LookbackResetsStreak(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 4; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	}

	// Failures outside the lookback window start a fresh streak.
	clock.Advance(11 * time.Minute)
	reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	assert.Equal(t, CircuitClosed, reg.CircuitStatusOf("src-1"))
}

func TestBreaker_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 5; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	}
	assert.Equal(t, CircuitOpen, reg.CircuitStatusOf("src-1"))

	clock.Advance(61 * time.Second)

	allowed, reason := reg.ShouldAllow("src-1")
	assert.True(t, allowed)
	assert.Contains(t, reason, "probe")
	assert.Equal(t, CircuitHalfOpen, reg.CircuitStatusOf("src-1"))

	reg.RecordSuccess("src-1")
	assert.Equal(t, CircuitClosed, reg.CircuitStatusOf("src-1"))

	// Streak was reset: a single new failure must not reopen.
	reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	assert.Equal(t, CircuitClosed, reg.CircuitStatusOf("src-1"))
}

func TestBreaker_FailedProbeReopensAndRestartsCooldown(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 5; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	}
	clock.Advance(61 * time.Second)

	allowed, _ := reg.ShouldAllow("src-1")
	assert.True(t, allowed)

	reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	assert.Equal(t, CircuitOpen, reg.CircuitStatusOf("src-1"))

	// Cooldown restarted at probe failure: still blocked just before it ends.
	clock.Advance(59 * time.Second)
	allowed, _ = reg.ShouldAllow("src-1")
	assert.False(t, allowed)

	clock.Advance(2 * time.Second)
	allowed, _ = reg.ShouldAllow("src-1")
	assert.True(t, allowed)
}

func TestBreaker_SingleProbeInHalfOpen(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 5; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	}
	clock.Advance(61 * time.Second)

	first, _ := reg.ShouldAllow("src-1")
	assert.True(t, first)

	// Concurrent callers must all be turned away while the probe is out.
	var wg sync.WaitGroup
	admitted := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := reg.ShouldAllow("src-1")
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	for ok := range admitted {
		assert.False(t, ok, "second probe admitted during HALF_OPEN")
	}
}

func TestBreaker_NeverOpenToClosedDirectly(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	errBoom := errors.New("boom")
	for i := 0; i < 5; i++ {
		reg.RecordFailure("src-1", errBoom, KindGenericAPIError)
	}
	assert.Equal(t, CircuitOpen, reg.CircuitStatusOf("src-1"))

	// A stray success while OPEN resets the streak but cannot close the
	// circuit without a HALF_OPEN probe.
	reg.RecordSuccess("src-1")
	assert.Equal(t, CircuitOpen, reg.CircuitStatusOf("src-1"))
}
