package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for failed-login delays
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

// TimingDelay pads failed logins with a randomised floor. Together with the decoy
// bcrypt compare on unknown emails it keeps unknown-email and wrong-password
// failures at the same wall time. Locked accounts are answered immediately since
// the lock and its remaining minutes are reported to the caller anyway.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// WaitFrom sleeps until at least base+jitter has elapsed since start.
// A nil receiver is a no-op so callers can leave the delay unconfigured.
func (td *TimingDelay) WaitFrom(start time.Time) {
	if td == nil {
		return
	}

	target := td.config.BaseDelay + cryptoJitter(td.config.RandomDelay)
	if elapsed := time.Since(start); elapsed < target {
		td.sleep(target - elapsed)
	}
}

// cryptoJitter returns a uniformly random duration in [0, max) using crypto/rand
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}

	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}
