package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToTarget(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelay: 100 * time.Millisecond})

	var slept time.Duration
	td.sleep = func(d time.Duration) { slept = d }

	td.WaitFrom(time.Now())

	assert.Greater(t, slept, 90*time.Millisecond)
	assert.LessOrEqual(t, slept, 100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoSleepWhenAlreadySlow(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelay: 50 * time.Millisecond})

	called := false
	td.sleep = func(time.Duration) { called = true }

	td.WaitFrom(time.Now().Add(-time.Second))

	assert.False(t, called)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var td *TimingDelay
	assert.NotPanics(t, func() { td.WaitFrom(time.Now()) })
}

func TestCryptoJitter_Bounds(t *testing.T) {
	assert.Equal(t, time.Duration(0), cryptoJitter(0))
	for i := 0; i < 100; i++ {
		j := cryptoJitter(10 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 10*time.Millisecond)
	}
}
