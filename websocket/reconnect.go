package websocket

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultMultiplier = 2.0
)

// ReconnectPolicy yields the delay before each reconnection attempt:
// min(base * multiplier^attempt, max). Reset returns it to the base delay.
// Not safe for concurrent use; each connection loop owns one.
type ReconnectPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the randomization factor in [0, 1). Zero keeps delays deterministic.
	Jitter float64

	backoff *backoff.ExponentialBackOff
	attempt int
}

func NewReconnectPolicy(base, max time.Duration, multiplier, jitter float64) *ReconnectPolicy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max < base {
		max = base
	}
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}
	if jitter < 0 || jitter >= 1 {
		jitter = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = multiplier
	b.RandomizationFactor = jitter
	b.Reset()

	return &ReconnectPolicy{
		BaseDelay:  base,
		MaxDelay:   max,
		Multiplier: multiplier,
		Jitter:     jitter,
		backoff:    b,
	}
}

func DefaultReconnectPolicy() *ReconnectPolicy {
	return NewReconnectPolicy(DefaultBaseDelay, DefaultMaxDelay, DefaultMultiplier, 0)
}

// Next returns the delay for the current attempt and advances the counter.
func (p *ReconnectPolicy) Next() time.Duration {
	p.attempt++
	return p.backoff.NextBackOff()
}

// Reset is called after a successful connection.
func (p *ReconnectPolicy) Reset() {
	p.attempt = 0
	p.backoff.Reset()
}

// Attempt is the number of delays handed out since the last reset.
func (p *ReconnectPolicy) Attempt() int {
	return p.attempt
}

// DelayFor is the jitter-free delay for a zero-based attempt number.
func (p *ReconnectPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
