package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(limit int) (*Limiter, *time.Time) {
	l := New(limit, time.Minute)
	now := time.Now().Truncate(time.Minute).Add(10 * time.Second)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheck_AdmitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(3)

	assert.True(t, l.Check("alice"))
	assert.True(t, l.Check("alice"))
	assert.True(t, l.Check("alice"))
	assert.False(t, l.Check("alice"))

	// Another key has its own window.
	assert.True(t, l.Check("bob"))
}

func TestCheck_WindowRollsOver(t *testing.T) {
	l, now := newTestLimiter(2)

	assert.True(t, l.Check("alice"))
	assert.True(t, l.Check("alice"))
	assert.False(t, l.Check("alice"))

	*now = now.Add(time.Minute)
	assert.True(t, l.Check("alice"))
}

func TestCheck_PrunesStaleWindows(t *testing.T) {
	l, now := newTestLimiter(10)
	l.maxTracked = 5

	for i := 0; i < 5; i++ {
		assert.True(t, l.Check(fmt.Sprintf("key-%d", i)))
	}
	assert.Equal(t, 5, l.Tracked())

	// All five windows are now stale; admitting a new key prunes them.
	*now = now.Add(2 * time.Minute)
	assert.True(t, l.Check("fresh"))
	assert.Equal(t, 1, l.Tracked())
}

func TestNew_AppliesDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultLimit, l.limit)
	assert.Equal(t, DefaultWindow, l.windowSize)
}
