package errorhandler

import (
	"math"
	"math/rand"
	"time"
)

// RedeliveryPolicy controls how many times a failed exchange is redelivered
// to the output processor and how long to wait between attempts.
type RedeliveryPolicy struct {
	// MaximumRedeliveries is the redelivery budget; 0 disables redelivery and
	// a negative value redelivers forever
	MaximumRedeliveries int

	// InitialDelay is the delay before the first redelivery
	InitialDelay time.Duration

	// Multiplier grows the delay exponentially per attempt
	Multiplier float64

	// MaximumDelay caps the computed delay
	MaximumDelay time.Duration

	// Jitter randomizes the delay by up to +/-15% to avoid thundering herds
	Jitter bool
}

// NewRedeliveryPolicy creates a policy with defaults: 3 redeliveries starting
// at 100ms, doubling up to 10s, with jitter.
func NewRedeliveryPolicy() *RedeliveryPolicy {
	return &RedeliveryPolicy{
		MaximumRedeliveries: 3,
		InitialDelay:        100 * time.Millisecond,
		Multiplier:          2.0,
		MaximumDelay:        10 * time.Second,
		Jitter:              true,
	}
}

// ShouldRedeliver reports whether another redelivery is allowed after the
// given number of attempts already made.
func (p *RedeliveryPolicy) ShouldRedeliver(attempts int) bool {
	if p.MaximumRedeliveries < 0 {
		return true
	}
	return attempts < p.MaximumRedeliveries
}

// NextDelay computes the delay before the given attempt
func (p *RedeliveryPolicy) NextDelay(attempts int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempts))

	if p.MaximumDelay > 0 && delay > float64(p.MaximumDelay) {
		delay = float64(p.MaximumDelay)
	}

	if p.Jitter {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}
