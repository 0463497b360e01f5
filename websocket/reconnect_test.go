package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_DoublesUpToCap(t *testing.T) {
	p := DefaultReconnectPolicy()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, p.Next(), "attempt %d", i)
		assert.Equal(t, want, p.DelayFor(i), "formula for attempt %d", i)
	}
	assert.Equal(t, len(expected), p.Attempt())
}

func TestReconnectPolicy_NonDecreasing(t *testing.T) {
	p := NewReconnectPolicy(250*time.Millisecond, 7*time.Second, 1.7, 0)

	prev := time.Duration(0)
	for i := 0; i < 50; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 7*time.Second)
		prev = d
	}
	assert.Equal(t, 7*time.Second, prev)
}

func TestReconnectPolicy_ResetReturnsToBase(t *testing.T) {
	p := DefaultReconnectPolicy()
	for i := 0; i < 4; i++ {
		p.Next()
	}

	p.Reset()

	assert.Equal(t, 0, p.Attempt())
	assert.Equal(t, time.Second, p.Next())
	assert.Equal(t, 2*time.Second, p.Next())
}

func TestReconnectPolicy_JitterStaysInRange(t *testing.T) {
	p := NewReconnectPolicy(time.Second, 30*time.Second, 2, 0.5)

	for i := 0; i < 6; i++ {
		base := p.DelayFor(i)
		d := p.Next()
		assert.GreaterOrEqual(t, d, base/2)
		assert.LessOrEqual(t, d, base+base/2+time.Nanosecond)
	}
}

func TestReconnectPolicy_SanitizesArguments(t *testing.T) {
	p := NewReconnectPolicy(0, -1, 0.5, 2)

	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultBaseDelay, p.MaxDelay)
	assert.Equal(t, DefaultMultiplier, p.Multiplier)
	assert.Zero(t, p.Jitter)
}
