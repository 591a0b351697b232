package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiterAllows(t *testing.T) {
	t.Parallel()

	l := NewIPRateLimiter(10, 30*time.Second)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "connection %d within the window must be allowed", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"), "the 11th connection within the window must be refused")

	// Other addresses have their own budget.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestIPRateLimiterWindowExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	l := NewIPRateLimiter(2, 30*time.Second)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("addr"))
	assert.True(t, l.Allow("addr"))
	assert.False(t, l.Allow("addr"))

	// Advancing past the window frees the budget.
	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("addr"))
}

func TestIPRateLimiterForget(t *testing.T) {
	t.Parallel()

	now := time.Now()
	l := NewIPRateLimiter(5, 30*time.Second)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(fmt.Sprintf("10.0.0.%d", i)))
	}

	// Forget with recent entries keeps the bucket.
	l.Forget("10.0.0.0")
	assert.Len(t, l.byAddr, 3)

	// Forget after expiry drops the bucket entirely.
	now = now.Add(time.Minute)
	l.Forget("10.0.0.1")
	assert.Len(t, l.byAddr, 2)
}
