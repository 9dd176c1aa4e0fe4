package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/scholar/internal/models"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerificationService(f *authFixture) *EmailVerificationService {
	logger := discardLogger()
	svc := NewEmailVerificationService(f.repo, f.email, DefaultAccountPolicy(), logger, pkglogger.NewAuditLogger(logger))
	svc.now = func() time.Time { return f.clock }
	return svc
}

func unverify(f *authFixture) {
	a := f.repo.Snapshot(f.account.ID)
	a.IsVerified = false
	f.repo.Put(a)
}

func TestEmailVerification_CompleteOnce(t *testing.T) {
	f := newAuthFixture(t)
	unverify(f)
	svc := newVerificationService(f)
	ctx := context.Background()

	plain, err := svc.BeginEmailVerification(ctx, f.account)
	require.NoError(t, err)

	stored := f.repo.Snapshot(f.account.ID)
	require.NotNil(t, stored.EmailVerificationExpires)
	assert.Equal(t, f.clock.Add(24*time.Hour), *stored.EmailVerificationExpires)

	f.advance(23 * time.Hour)
	ok, err := svc.CompleteEmailVerification(ctx, plain)
	require.NoError(t, err)
	assert.True(t, ok)

	stored = f.repo.Snapshot(f.account.ID)
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.EmailVerificationToken)
	assert.Nil(t, stored.EmailVerificationExpires)

	ok, err = svc.CompleteEmailVerification(ctx, plain)
	assert.False(t, ok)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestEmailVerification_Expired(t *testing.T) {
	f := newAuthFixture(t)
	unverify(f)
	svc := newVerificationService(f)
	ctx := context.Background()

	plain, err := svc.BeginEmailVerification(ctx, f.account)
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	ok, err := svc.CompleteEmailVerification(ctx, plain)
	assert.False(t, ok)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.False(t, f.repo.Snapshot(f.account.ID).IsVerified)
}

func TestEmailVerification_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)
	svc := newVerificationService(f)

	_, err := svc.CompleteEmailVerification(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	_, err = svc.CompleteEmailVerification(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestEmailVerification_Resend(t *testing.T) {
	f := newAuthFixture(t)
	unverify(f)
	svc := newVerificationService(f)
	ctx := context.Background()

	require.NoError(t, svc.Resend(ctx, "nobody@x.com"))
	assert.Empty(t, f.email.VerificationTokens)

	require.NoError(t, svc.Resend(ctx, "a@x.com"))
	require.Len(t, f.email.VerificationTokens, 1)

	// Inside the cooldown nothing is sent.
	f.advance(5 * time.Minute)
	require.NoError(t, svc.Resend(ctx, "a@x.com"))
	assert.Len(t, f.email.VerificationTokens, 1)

	f.advance(20 * time.Minute)
	require.NoError(t, svc.Resend(ctx, "a@x.com"))
	assert.Len(t, f.email.VerificationTokens, 2)
}

func TestEmailVerification_ResendSkipsVerified(t *testing.T) {
	f := newAuthFixture(t)
	svc := newVerificationService(f)

	require.NoError(t, svc.Resend(context.Background(), "a@x.com"))
	assert.Empty(t, f.email.VerificationTokens)
}
