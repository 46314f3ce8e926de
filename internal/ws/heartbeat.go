package ws

import (
	"sync"
	"time"
)

// heartbeat drives liveness for one connection: a ping every interval, and a
// deadline timer armed after each ping that a pong must cancel.
type heartbeat struct {
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	pongTimer *time.Timer
}

func (hb *heartbeat) armPongTimer(timeout time.Duration, onTimeout func()) {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	// A previous unanswered ping already has a deadline running.
	if hb.pongTimer != nil {
		return
	}
	hb.pongTimer = time.AfterFunc(timeout, onTimeout)
}

func (hb *heartbeat) cancelPongTimer() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	if hb.pongTimer != nil {
		hb.pongTimer.Stop()
		hb.pongTimer = nil
	}
}

func (hb *heartbeat) shutdown() {
	hb.stopOnce.Do(func() {
		close(hb.stopCh)
		hb.ticker.Stop()
		hb.cancelPongTimer()
	})
}

// heartbeatTable holds timer handles keyed by connection id, so cleanup is a
// single lookup-and-cancel instead of state threaded through connection
// closures.
type heartbeatTable struct {
	mu    sync.Mutex
	beats map[string]*heartbeat
}

func newHeartbeatTable() *heartbeatTable {
	return &heartbeatTable{beats: make(map[string]*heartbeat)}
}

// start begins the ping loop for a connection. Starting an already-started
// connection is a no-op, so a re-join cannot double-start timers. ping writes
// one ping frame; onDead runs when the connection misses its pong deadline or
// the ping write itself fails.
func (t *heartbeatTable) start(connID string, interval, timeout time.Duration, ping func() error, onDead func()) {
	t.mu.Lock()
	if _, exists := t.beats[connID]; exists {
		t.mu.Unlock()
		return
	}
	hb := &heartbeat{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	t.beats[connID] = hb
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-hb.stopCh:
				return
			case <-hb.ticker.C:
				if err := ping(); err != nil {
					onDead()
					return
				}
				hb.armPongTimer(timeout, onDead)
			}
		}
	}()
}

// pong cancels the pending deadline for a connection, keeping it alive until
// the next ping.
func (t *heartbeatTable) pong(connID string) {
	t.mu.Lock()
	hb, ok := t.beats[connID]
	t.mu.Unlock()
	if ok {
		hb.cancelPongTimer()
	}
}

// stop tears down a connection's timers. Idempotent.
func (t *heartbeatTable) stop(connID string) {
	t.mu.Lock()
	hb, ok := t.beats[connID]
	if ok {
		delete(t.beats, connID)
	}
	t.mu.Unlock()
	if ok {
		hb.shutdown()
	}
}
