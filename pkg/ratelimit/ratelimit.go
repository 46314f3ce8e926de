// Package ratelimit implements a per-key sliding-window admission guard.
// Windows are process-local; each API or gateway process admits its own
// traffic independently.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit      = 100
	DefaultWindow     = time.Minute
	defaultMaxTracked = 10000
)

type window struct {
	bucket time.Time
	count  int
}

type Limiter struct {
	limit      int
	windowSize time.Duration
	maxTracked int

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func New(limit int, windowSize time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &Limiter{
		limit:      limit,
		windowSize: windowSize,
		maxTracked: defaultMaxTracked,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

// Check admits or denies one call for the given key in the current bucket.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := now.Truncate(l.windowSize)

	w, ok := l.windows[key]
	if !ok || w.bucket.Before(bucket) {
		if len(l.windows) >= l.maxTracked {
			l.prune(bucket)
		}
		l.windows[key] = &window{bucket: bucket, count: 1}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// prune drops windows older than the current bucket. Called with the lock
// held, only when the table has grown past maxTracked.
func (l *Limiter) prune(bucket time.Time) {
	for key, w := range l.windows {
		if w.bucket.Before(bucket) {
			delete(l.windows, key)
		}
	}
}

// Tracked reports how many keys currently hold a window.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Middleware applies the guard to queue-mutation routes. Authenticated
// callers are keyed by user id so a shared venue IP does not starve patrons;
// anonymous callers fall back to client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := c.GetString("user_id"); userID != "" {
			key = "user:" + userID
		}

		if !l.Check(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
