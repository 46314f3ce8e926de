package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Class is how a failure counts against the breaker.
type Class int

const (
	// ClassSystemic failures (5xx, network) count toward the threshold.
	ClassSystemic Class = iota
	// ClassClient failures (not found, bad request) never count.
	ClassClient
	// ClassQuota failures open the circuit immediately.
	ClassQuota
)

// Classifier maps an error from the wrapped call to a Class. A nil error is
// never classified.
type Classifier func(err error) Class

// CircuitOpenError is returned when the breaker rejects a call without
// invoking the wrapped function.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open, retry after %ds", int(e.RetryAfter.Seconds()))
}

// Status is a read-only snapshot for the health endpoint.
type Status struct {
	State             string `json:"state"`
	FailureCount      int    `json:"failure_count"`
	IsOpen            bool   `json:"is_open"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// CircuitBreaker protects one external dependency. Create one instance per
// process at startup and inject it everywhere that dependency is called.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	openDuration     time.Duration
	classify         Classifier

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailureAt time.Time
	nextAttemptAt time.Time

	now func() time.Time
}

const (
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 60 * time.Second
)

func New(name string, classify Classifier) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		openDuration:     DefaultOpenDuration,
		classify:         classify,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Execute runs call through the breaker. While open it fails fast with
// *CircuitOpenError without invoking call. The breaker never retries; retry
// policy belongs to the caller.
func (cb *CircuitBreaker) Execute(ctx context.Context, call func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	result, err := call(ctx)
	cb.afterCall(err)
	return result, err
}

// beforeCall rejects while open; the open->half_open transition happens here,
// lazily on the next incoming call rather than on a timer.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		now := cb.now()
		if now.After(cb.nextAttemptAt) {
			cb.state = StateHalfOpen
			return nil
		}
		return &CircuitOpenError{RetryAfter: cb.nextAttemptAt.Sub(now)}
	default:
		return fmt.Errorf("circuit breaker %s in unknown state %d", cb.name, int(cb.state))
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
		return
	}
	cb.onFailure(cb.classify(err))
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failureCount = 0
	case StateOpen:
		// A call never runs while open; nothing to record.
	}
}

func (cb *CircuitBreaker) onFailure(class Class) {
	switch class {
	case ClassClient:
		return
	case ClassQuota:
		// A single quota violation is treated as certain repeated failure.
		cb.trip()
		return
	case ClassSystemic:
	}

	cb.lastFailureAt = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	case StateOpen:
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.lastFailureAt = cb.now()
	cb.nextAttemptAt = cb.now().Add(cb.openDuration)
}

// Status returns a snapshot safe to expose on the health endpoint.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Status{
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		IsOpen:       cb.state == StateOpen,
	}
	if cb.state == StateOpen {
		if remaining := cb.nextAttemptAt.Sub(cb.now()); remaining > 0 {
			s.RetryAfterSeconds = int(remaining.Seconds())
		}
	}
	return s
}

// RetryAfter returns the time until the next probe is allowed, zero when the
// circuit is not open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0
	}
	if remaining := cb.nextAttemptAt.Sub(cb.now()); remaining > 0 {
		return remaining
	}
	return 0
}
