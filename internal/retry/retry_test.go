package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Delay: 5 * time.Millisecond, Operation: "registry push"}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name          string
		attempts      int
		failures      int
		expectedCalls int
		expectedInErr string
	}{
		{name: "first attempt", attempts: 3, failures: 0, expectedCalls: 1},
		{name: "second attempt", attempts: 3, failures: 1, expectedCalls: 2},
		{name: "last attempt", attempts: 3, failures: 2, expectedCalls: 3},
		{name: "out of attempts", attempts: 3, failures: 5, expectedCalls: 3, expectedInErr: "registry push failed after 3 attempts: 503"},
		{name: "zero attempts still runs once", attempts: 0, failures: 0, expectedCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), testPolicy(tt.attempts), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errors.New("503")
				}
				return nil
			})

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectedInErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedInErr)
		})
	}
}

func TestDo_LinearDelay(t *testing.T) {
	p := Policy{Attempts: 3, Delay: 20 * time.Millisecond, Operation: "registry push"}

	var stamps []time.Time
	err := Do(context.Background(), p, func(context.Context) error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return errors.New("503")
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestDo_Permanent(t *testing.T) {
	root := errors.New("manifest invalid")

	calls := 0
	err := Do(context.Background(), testPolicy(5), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("503")
		}
		return Permanent(root)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "manifest invalid", err.Error())
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Delay: time.Hour, Operation: "registry push"}

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errors.New("503")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "registry push cancelled")
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("timeout")))
	assert.True(t, IsPermanent(Permanent(errors.New("bad digest"))))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy("OCI push")
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 2*time.Second, p.Delay)
	assert.Equal(t, "OCI push", p.Operation)
}
