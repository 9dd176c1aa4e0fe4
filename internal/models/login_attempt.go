package models

import "time"

// LockoutState is an account's failed-login counter and lock window as written
// by the store's atomic failed-attempt update.
type LockoutState struct {
	LoginAttempts int
	LockUntil     *time.Time
}

// Locked reports whether the state carries a lock that has not lapsed at now.
func (s LockoutState) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Lockout returns the account's current lockout state.
func (a *Account) Lockout() LockoutState {
	return LockoutState{LoginAttempts: a.LoginAttempts, LockUntil: a.LockUntil}
}
