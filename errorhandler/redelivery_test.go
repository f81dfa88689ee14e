package errorhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedeliveryPolicy(t *testing.T) {
	t.Run("defaults allow three redeliveries", func(t *testing.T) {
		policy := NewRedeliveryPolicy()

		assert.True(t, policy.ShouldRedeliver(0))
		assert.True(t, policy.ShouldRedeliver(2))
		assert.False(t, policy.ShouldRedeliver(3))
	})

	t.Run("zero budget disables redelivery", func(t *testing.T) {
		policy := &RedeliveryPolicy{MaximumRedeliveries: 0}

		assert.False(t, policy.ShouldRedeliver(0))
	})

	t.Run("negative budget redelivers forever", func(t *testing.T) {
		policy := &RedeliveryPolicy{MaximumRedeliveries: -1}

		assert.True(t, policy.ShouldRedeliver(0))
		assert.True(t, policy.ShouldRedeliver(1000))
	})

	t.Run("delay grows exponentially and is capped", func(t *testing.T) {
		policy := &RedeliveryPolicy{
			MaximumRedeliveries: 10,
			InitialDelay:        100 * time.Millisecond,
			Multiplier:          2.0,
			MaximumDelay:        500 * time.Millisecond,
		}

		assert.Equal(t, 100*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 200*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 400*time.Millisecond, policy.NextDelay(2))
		assert.Equal(t, 500*time.Millisecond, policy.NextDelay(3))
		assert.Equal(t, 500*time.Millisecond, policy.NextDelay(10))
	})

	t.Run("jitter keeps the delay within 15 percent of nominal", func(t *testing.T) {
		policy := &RedeliveryPolicy{
			MaximumRedeliveries: 3,
			InitialDelay:        time.Second,
			Multiplier:          1.0,
			Jitter:              true,
		}

		for i := 0; i < 50; i++ {
			delay := policy.NextDelay(0)
			assert.GreaterOrEqual(t, delay, 850*time.Millisecond)
			assert.LessOrEqual(t, delay, 1150*time.Millisecond)
		}
	})
}
