package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"supportbot/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "retrieval",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     10 * time.Second,
	}, logger.Nop())
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	failing := func(context.Context) error { return errors.New("index down") }
	calls := 0
	ok := func(context.Context) error { calls++; return nil }

	assert.Error(t, cb.Execute(ctx, failing))
	assert.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.Equal(t, 0, calls)

	now = now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "x", FailureThreshold: 1}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}
