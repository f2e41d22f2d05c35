// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPolicyDefaults(t *testing.T) {
	policy := NewExponentialPolicy()

	assert.Equal(t, 3, policy.MaxRetries())
	assert.Equal(t, 1*time.Second, policy.minWaitTime)
	assert.Equal(t, 30*time.Second, policy.maxWaitTime)
	assert.Equal(t, 2.0, policy.backoffFactor)
	assert.True(t, policy.jitter)
}

func TestExponentialPolicyWithMethods(t *testing.T) {
	policy := NewExponentialPolicy().
		WithMaxRetries(5).
		WithMinWaitTime(2 * time.Second).
		WithMaxWaitTime(60 * time.Second).
		WithBackoffFactor(1.5).
		WithJitter(false)

	assert.Equal(t, 5, policy.MaxRetries())
	assert.Equal(t, 2*time.Second, policy.minWaitTime)
	assert.Equal(t, 60*time.Second, policy.maxWaitTime)
	assert.Equal(t, 1.5, policy.backoffFactor)
	assert.False(t, policy.jitter)
}

func TestExponentialPolicyShouldRetry(t *testing.T) {
	policy := NewExponentialPolicy().WithMaxRetries(3)
	ctx := context.Background()

	tests := []struct {
		name        string
		outcome     Outcome
		attempt     int
		shouldRetry bool
	}{
		{"retryable outcome retries", OutcomeRetryable, 1, true},
		{"max retries exceeded", OutcomeRetryable, 3, false},
		{"success never retries", OutcomeSuccess, 0, false},
		{"fatal never retries", OutcomeFatal, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, policy.ShouldRetry(ctx, tt.outcome, tt.attempt))
		})
	}
}

func TestExponentialPolicyShouldRetryWithCancelledContext(t *testing.T) {
	policy := NewExponentialPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, policy.ShouldRetry(ctx, OutcomeRetryable, 1))
}

func TestExponentialPolicyWaitTime(t *testing.T) {
	policy := NewExponentialPolicy().
		WithMinWaitTime(1 * time.Second).
		WithMaxWaitTime(10 * time.Second).
		WithBackoffFactor(2.0).
		WithJitter(false)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.WaitTime(tt.attempt))
	}

	// attempt 4 gives 8s, still under the 10s cap.
	wt := policy.WaitTime(4)
	assert.GreaterOrEqual(t, wt, 8*time.Second)
	assert.LessOrEqual(t, wt, 10*time.Second)
}

func TestExponentialPolicyWaitTimeWithJitter(t *testing.T) {
	policy := NewExponentialPolicy().
		WithMinWaitTime(1 * time.Second).
		WithMaxWaitTime(10 * time.Second).
		WithBackoffFactor(2.0).
		WithJitter(true)

	baseWaitTime := 2 * time.Second
	wt := policy.WaitTime(2)
	assert.GreaterOrEqual(t, wt, baseWaitTime)
	assert.LessOrEqual(t, wt, baseWaitTime+time.Duration(float64(baseWaitTime)*0.1))
}

func TestFixedDelay(t *testing.T) {
	policy := NewFixedDelay(3, 5*time.Second)
	ctx := context.Background()

	assert.Equal(t, 3, policy.MaxRetries())
	assert.Equal(t, 5*time.Second, policy.WaitTime(1))
	assert.Equal(t, 5*time.Second, policy.WaitTime(5))

	assert.True(t, policy.ShouldRetry(ctx, OutcomeRetryable, 1))
	assert.False(t, policy.ShouldRetry(ctx, OutcomeRetryable, 3))
	assert.False(t, policy.ShouldRetry(ctx, OutcomeSuccess, 1))
}

func TestFixedDelayShouldRetryWithCancelledContext(t *testing.T) {
	policy := NewFixedDelay(3, 1*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, policy.ShouldRetry(ctx, OutcomeRetryable, 1))
}

func TestNoRetry(t *testing.T) {
	policy := NewNoRetry()
	ctx := context.Background()

	assert.Equal(t, 0, policy.MaxRetries())
	assert.Equal(t, time.Duration(0), policy.WaitTime(1))
	assert.False(t, policy.ShouldRetry(ctx, OutcomeRetryable, 0))
}

func TestPolicyInterface(t *testing.T) {
	var _ Policy = &ExponentialPolicy{}
	var _ Policy = &FixedDelay{}
	var _ Policy = &NoRetry{}

	policies := []Policy{
		NewExponentialPolicy(),
		NewFixedDelay(3, 1*time.Second),
		NewNoRetry(),
	}

	ctx := context.Background()

	for _, policy := range policies {
		require.GreaterOrEqual(t, policy.MaxRetries(), 0)
		require.GreaterOrEqual(t, policy.WaitTime(1), time.Duration(0))
		_ = policy.ShouldRetry(ctx, OutcomeRetryable, 0)
	}
}
