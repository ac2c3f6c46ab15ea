// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := p.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoReturnsLastError(t *testing.T) {
	attempts := 0
	err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("failure %d", attempts)
	})
	assert.EqualError(t, err, "failure 2")
	assert.Equal(t, 2, attempts)
}

func TestDoStopsOnNonRecoverable(t *testing.T) {
	attempts := 0
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New(errors.CodeLLMError, "bad request", nil).WithRecoverable(false)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, InitialDelay: time.Hour}
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			attempts++
			return fmt.Errorf("transient")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.EqualError(t, err, "transient")
		assert.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestDisabledCallsOnce(t *testing.T) {
	attempts := 0
	_ = Disabled().Do(context.Background(), func(context.Context) error {
		attempts++
		return fmt.Errorf("x")
	})
	assert.Equal(t, 1, attempts)
}

func TestCall(t *testing.T) {
	attempts := 0
	v, err := Call(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", fmt.Errorf("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestBackoff(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, Retryable(fmt.Errorf("connection reset")))
	assert.True(t, Retryable(errors.New(errors.CodeLLMError, "rate limited", nil).WithRecoverable(true)))
	assert.False(t, Retryable(errors.New(errors.CodeConfig, "bad", nil)))
}
