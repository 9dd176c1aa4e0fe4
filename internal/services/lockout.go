package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/scholar/internal/metrics"
	"github.com/BradenHooton/scholar/internal/models"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// AccountPolicy holds the account-security constants. It is built from config
// and injected into every service that needs it.
type AccountPolicy struct {
	MaxLoginAttempts     int
	LockDuration         time.Duration
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
	RecoveryCodeCount    int
	// PasswordChangeSkew backdates passwordChangedAt so tokens minted right
	// after a password change are not treated as stale.
	PasswordChangeSkew time.Duration
}

// DefaultAccountPolicy returns the standard policy: 5 attempts, 30 minute lock.
func DefaultAccountPolicy() AccountPolicy {
	return AccountPolicy{
		MaxLoginAttempts:     5,
		LockDuration:         30 * time.Minute,
		PasswordResetTTL:     10 * time.Minute,
		EmailVerificationTTL: 24 * time.Hour,
		RecoveryCodeCount:    10,
		PasswordChangeSkew:   time.Second,
	}
}

// NextFailure is the failed-attempt transition. Stores implement the same rule
// as a single atomic write; this function is the reference for both.
//
//	lapsed lock           -> attempts = 1, lock cleared (or re-set if 1 >= max)
//	unlocked, reaches max -> attempts + 1, lockUntil = now + LockDuration
//	otherwise             -> attempts + 1, lock unchanged
func (p AccountPolicy) NextFailure(state models.LockoutState, now time.Time) models.LockoutState {
	lockAt := now.Add(p.LockDuration)

	if state.LockUntil != nil && !state.LockUntil.After(now) {
		next := models.LockoutState{LoginAttempts: 1}
		if next.LoginAttempts >= p.MaxLoginAttempts {
			next.LockUntil = &lockAt
		}
		return next
	}

	next := models.LockoutState{LoginAttempts: state.LoginAttempts + 1, LockUntil: state.LockUntil}
	if state.LockUntil == nil && next.LoginAttempts >= p.MaxLoginAttempts {
		next.LockUntil = &lockAt
	}
	return next
}

// RemainingLockMinutes rounds the remaining lock window up to whole minutes.
func RemainingLockMinutes(lockUntil, now time.Time) int {
	remaining := lockUntil.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

func (p AccountPolicy) passwordChangedAt(now time.Time) time.Time {
	return now.Add(-p.PasswordChangeSkew)
}

// failureCounter feeds every failed credential check (password at login, password
// re-confirmation, second-factor code) into the account's lockout counter.
type failureCounter struct {
	repo   AccountRepository
	policy AccountPolicy
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// record applies the failed-attempt transition and reports the state written.
// kind names the check that failed and only appears in logs.
func (c failureCounter) record(ctx context.Context, account *models.Account, kind string, now time.Time) (models.LockoutState, error) {
	state, err := c.repo.RecordFailedLogin(ctx, account.ID, c.policy.MaxLoginAttempts, c.policy.LockDuration, now)
	if err != nil {
		c.logger.Error("failed to record failed attempt",
			slog.String("account_id", account.ID),
			slog.String("check", kind),
			slog.Any("error", err))
		return models.LockoutState{}, fmt.Errorf("record failed attempt: %w", err)
	}

	c.logger.Info("credential check failed",
		slog.String("account_id", account.ID),
		slog.String("check", kind),
		slog.Int("login_attempts", state.LoginAttempts))

	if state.Locked(now) && !account.Lockout().Locked(now) {
		c.logger.Warn("account locked after repeated failures",
			slog.String("account_id", account.ID),
			slog.String("check", kind),
			slog.Time("lock_until", *state.LockUntil))
		c.audit.LogLockout(ctx, account.ID, *state.LockUntil)
		metrics.RecordLockout()
	}
	return state, nil
}
