package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(b *Breaker, times int) {
	for i := 0; i < times; i++ {
		b.Execute(context.Background(), func() error { return errBoom })
	}
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3})

	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Hour})

	failing(b, 3)
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3})

	failing(b, 2)
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	failing(b, 2)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		MaxRequests:      2,
		OpenTimeout:      10 * time.Millisecond,
	})

	failing(b, 2)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	failing(b, 2)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	failing(b, 1)
	assert.Equal(t, StateOpen, b.State())
}
