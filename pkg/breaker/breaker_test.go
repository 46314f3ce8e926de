package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errSystemic = errors.New("backend exploded")
	errClient   = errors.New("no such video")
	errQuota    = errors.New("quota exceeded")
)

func classify(err error) Class {
	switch err {
	case errClient:
		return ClassClient
	case errQuota:
		return ClassQuota
	default:
		return ClassSystemic
	}
}

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Now()
	cb := New("test", classify)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func failingCall(err error) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		return nil, err
	}
}

func TestExecute_PassesThroughWhileClosed(t *testing.T) {
	cb, _ := newTestBreaker(t)

	calls := 0
	result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "closed", cb.Status().State)
}

func TestExecute_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)

	calls := 0
	call := func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errSystemic
	}

	// Every call before the threshold must reach the wrapped function.
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, err := cb.Execute(context.Background(), call)
		require.ErrorIs(t, err, errSystemic)
	}
	assert.Equal(t, DefaultFailureThreshold, calls)
	assert.True(t, cb.Status().IsOpen)

	// The next call short-circuits without invoking the function.
	_, err := cb.Execute(context.Background(), call)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, DefaultFailureThreshold, calls)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

func TestExecute_QuotaFailureOpensImmediately(t *testing.T) {
	cb, _ := newTestBreaker(t)
	assert.Equal(t, 0, cb.Status().FailureCount)

	_, err := cb.Execute(context.Background(), failingCall(errQuota))
	require.ErrorIs(t, err, errQuota)
	assert.True(t, cb.Status().IsOpen)

	_, err = cb.Execute(context.Background(), failingCall(errQuota))
	var openErr *CircuitOpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestExecute_ClientFailuresNeverOpen(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < DefaultFailureThreshold*4; i++ {
		_, err := cb.Execute(context.Background(), failingCall(errClient))
		require.ErrorIs(t, err, errClient)
	}

	status := cb.Status()
	assert.False(t, status.IsOpen)
	assert.Equal(t, "closed", status.State)
	assert.Equal(t, 0, status.FailureCount)
}

func TestExecute_HalfOpenProbeOnNextCall(t *testing.T) {
	cb, now := newTestBreaker(t)

	_, err := cb.Execute(context.Background(), failingCall(errQuota))
	require.ErrorIs(t, err, errQuota)
	require.True(t, cb.Status().IsOpen)

	// Still inside the open window: reject without calling.
	*now = now.Add(DefaultOpenDuration - time.Second)
	calls := 0
	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, calls)

	// Past the window: the next call is the probe, and success closes.
	*now = now.Add(2 * time.Second)
	result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "closed", cb.Status().State)
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t)

	_, _ = cb.Execute(context.Background(), failingCall(errQuota))
	require.True(t, cb.Status().IsOpen)

	*now = now.Add(DefaultOpenDuration + time.Second)
	_, err := cb.Execute(context.Background(), failingCall(errSystemic))
	require.ErrorIs(t, err, errSystemic)

	status := cb.Status()
	assert.True(t, status.IsOpen)
	// Window restarted from the probe failure.
	assert.Equal(t, int(DefaultOpenDuration.Seconds()), status.RetryAfterSeconds)
}

func TestStatus_ReportsRetryAfter(t *testing.T) {
	cb, now := newTestBreaker(t)

	_, _ = cb.Execute(context.Background(), failingCall(errQuota))
	*now = now.Add(20 * time.Second)

	status := cb.Status()
	assert.Equal(t, "open", status.State)
	assert.Equal(t, 40, status.RetryAfterSeconds)
}
