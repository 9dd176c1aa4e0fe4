package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/models"
	pkgauth "github.com/BradenHooton/scholar/pkg/auth"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Str0ng!Passw0rd"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	ti, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret-for-service-tests-0123",
		RefreshSecret: "refresh-secret-for-service-tests-0123",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "scholar-test",
	})
	require.NoError(t, err)
	return ti
}

type authFixture struct {
	repo    *MemoryAccountRepository
	hasher  *SpyHasher
	tokens  *auth.TokenIssuer
	email   *MockEmailService
	svc     *AuthService
	account *models.Account
	clock   time.Time
}

func (f *authFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	h, err := pkgauth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	hash, err := h.Hash(testPassword)
	require.NoError(t, err)

	f := &authFixture{
		repo:   NewMemoryAccountRepository(),
		hasher: &SpyHasher{PasswordHasher: h},
		tokens: newTestTokens(t),
		email:  &MockEmailService{},
		clock:  time.Now().Truncate(time.Second),
	}
	f.repo.Now = func() time.Time { return f.clock }

	logger := discardLogger()
	audit := pkglogger.NewAuditLogger(logger)
	policy := DefaultAccountPolicy()

	verification := NewEmailVerificationService(f.repo, f.email, policy, logger, audit)
	verification.now = func() time.Time { return f.clock }

	f.svc = NewAuthService(f.repo, f.tokens, f.hasher, policy, verification, nil, logger, audit)
	f.svc.now = func() time.Time { return f.clock }

	f.account = f.repo.Put(NewTestAccount("a@x.com", hash, models.RoleUser))
	return f
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.Put(func() *models.Account {
		a := f.repo.Snapshot(f.account.ID)
		a.LoginAttempts = 3
		return a
	}())

	result, err := f.svc.Authenticate(context.Background(), "  A@X.com ", testPassword)
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.False(t, result.TwoFactorRequired)
	assert.Equal(t, f.account.ID, result.Account.ID)

	claims, err := f.tokens.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.account.ID, claims.AccountID)
	assert.False(t, claims.TwoFactorVerified)

	stored := f.repo.Snapshot(f.account.ID)
	assert.Equal(t, 0, stored.LoginAttempts)
	assert.Nil(t, stored.LockUntil)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, f.clock, *stored.LastLogin)
}

func TestAuthService_Authenticate_InvalidCredentialsIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)

	_, errUnknown := f.svc.Authenticate(context.Background(), "nobody@x.com", testPassword)
	_, errWrong := f.svc.Authenticate(context.Background(), "a@x.com", "Wr0ng!Password")
	_, errEmpty := f.svc.Authenticate(context.Background(), "", "")

	assert.ErrorIs(t, errUnknown, models.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, models.ErrInvalidCredentials)
	assert.ErrorIs(t, errEmpty, models.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())

	assert.Equal(t, 1, f.repo.Snapshot(f.account.ID).LoginAttempts)
}

func TestAuthService_Authenticate_LocksAfterFiveFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Authenticate(ctx, "a@x.com", "Wr0ng!Password")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	stored := f.repo.Snapshot(f.account.ID)
	assert.Equal(t, 5, stored.LoginAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.Equal(t, f.clock.Add(30*time.Minute), *stored.LockUntil)

	verifyCalls := f.hasher.VerifyCalls
	_, err := f.svc.Authenticate(ctx, "a@x.com", testPassword)

	var locked *models.AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, 30, locked.RemainingMinutes)
	assert.Equal(t, verifyCalls, f.hasher.VerifyCalls, "locked account must not reach the password check")
	assert.Equal(t, 5, f.repo.FailedLoginCalls)
}

func TestAuthService_Authenticate_FourAttemptsScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	a := f.repo.Snapshot(f.account.ID)
	a.LoginAttempts = 4
	f.repo.Put(a)

	_, err := f.svc.Authenticate(ctx, "a@x.com", "Wr0ng!Password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	stored := f.repo.Snapshot(f.account.ID)
	assert.Equal(t, 5, stored.LoginAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.Equal(t, f.clock.Add(30*time.Minute), *stored.LockUntil)

	f.advance(20 * time.Second)
	_, err = f.svc.Authenticate(ctx, "a@x.com", testPassword)

	var locked *models.AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 30, locked.RemainingMinutes)

	// The lock also hides the account from default lookups.
	_, err = f.repo.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAuthService_Authenticate_LapsedLock(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	until := f.clock.Add(time.Minute)
	a := f.repo.Snapshot(f.account.ID)
	a.LoginAttempts = 5
	a.LockUntil = &until
	f.repo.Put(a)

	f.advance(2 * time.Minute)

	_, err := f.svc.Authenticate(ctx, "a@x.com", "Wr0ng!Password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	stored := f.repo.Snapshot(f.account.ID)
	assert.Equal(t, 1, stored.LoginAttempts, "counter restarts after a lapsed lock")
	assert.Nil(t, stored.LockUntil)

	_, err = f.svc.Authenticate(ctx, "a@x.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, 0, f.repo.Snapshot(f.account.ID).LoginAttempts)
}

func TestAuthService_Authenticate_Inactive(t *testing.T) {
	f := newAuthFixture(t)
	a := f.repo.Snapshot(f.account.ID)
	a.IsActive = false
	f.repo.Put(a)

	_, err := f.svc.Authenticate(context.Background(), "a@x.com", testPassword)
	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.Equal(t, 0, f.hasher.VerifyCalls)
}

func TestAuthService_Authenticate_TwoFactorRequired(t *testing.T) {
	f := newAuthFixture(t)
	a := f.repo.Snapshot(f.account.ID)
	a.TwoFactorEnabled = true
	f.repo.Put(a)

	result, err := f.svc.Authenticate(context.Background(), "a@x.com", testPassword)
	require.NoError(t, err)
	assert.True(t, result.TwoFactorRequired)

	claims, err := f.tokens.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorEnabled)
	assert.False(t, claims.TwoFactorVerified)

	verified, err := f.svc.IssueVerifiedAccessToken(result.Account)
	require.NoError(t, err)
	claims, err = f.tokens.ValidateAccessToken(verified)
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorVerified)
}

type failingTokens struct{}

func (failingTokens) IssuePair(*models.Account) (*models.TokenPair, error) {
	return nil, &models.CredentialError{Op: "sign_access_token", Err: auth.ErrMissingSecret}
}

func (failingTokens) IssueVerifiedAccessToken(*models.Account) (string, error) {
	return "", &models.CredentialError{Op: "sign_access_token", Err: auth.ErrMissingSecret}
}

func (failingTokens) ValidateRefreshToken(string) (*models.TokenClaims, error) {
	return nil, models.ErrTokenInvalid
}

func TestAuthService_Authenticate_SigningFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.tokens = failingTokens{}

	_, err := f.svc.Authenticate(context.Background(), "a@x.com", testPassword)
	assert.ErrorIs(t, err, models.ErrCredential)

	_, err = f.svc.IssueVerifiedAccessToken(f.account)
	assert.ErrorIs(t, err, models.ErrCredential)
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	account, err := f.svc.Register(ctx, "New.User@X.com", testPassword, " New User ")
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "new.user@x.com", account.Email)
	assert.Equal(t, "New User", account.Name)
	assert.Equal(t, models.RoleUser, account.Role)
	assert.True(t, account.IsActive)
	assert.False(t, account.IsVerified)
	assert.NotEqual(t, testPassword, account.PasswordHash)

	stored := f.repo.Snapshot(account.ID)
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Equal(t, f.clock.Add(-time.Second), *stored.PasswordChangedAt)

	require.Len(t, f.email.VerificationTokens, 1)
	assert.Equal(t, pkgauth.HashSecret(f.email.VerificationTokens[0]), stored.EmailVerificationToken)
}

func TestAuthService_Register_Errors(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "A@x.com", testPassword, "Dup")
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.svc.Register(ctx, "weak@x.com", "password", "Weak")
	assert.ErrorIs(t, err, models.ErrBadRequest)
	var pve *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pve)

	f.hasher.HashErr = errors.New("entropy exhausted")
	_, err = f.svc.Register(ctx, "hashfail@x.com", testPassword, "Hash")
	var credErr *models.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "hash_password", credErr.Op)
	_, err = f.repo.GetByEmail(ctx, "hashfail@x.com")
	assert.ErrorIs(t, err, models.ErrNotFound, "hash failure must abort the save")
}

func TestAuthService_Register_EmailFailureDoesNotFail(t *testing.T) {
	f := newAuthFixture(t)
	f.email.SendVerificationEmailFunc = func(ctx context.Context, email, token string, expiresAt time.Time) error {
		return errors.New("ses unavailable")
	}

	account, err := f.svc.Register(context.Background(), "later@x.com", testPassword, "Later")
	require.NoError(t, err)
	assert.NotEmpty(t, f.repo.Snapshot(account.ID).EmailVerificationToken)
}

func TestAuthService_Refresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	login, err := f.svc.Authenticate(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	result, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)

	_, err = f.svc.Refresh(ctx, login.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid, "access tokens cannot refresh")

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestAuthService_Refresh_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(f *authFixture, a *models.Account)
		want   error
	}{
		{
			name: "locked account is hidden",
			mutate: func(f *authFixture, a *models.Account) {
				until := f.clock.Add(10 * time.Minute)
				a.LockUntil = &until
			},
			want: models.ErrTokenInvalid,
		},
		{
			name:   "inactive account",
			mutate: func(f *authFixture, a *models.Account) { a.IsActive = false },
			want:   models.ErrAccountInactive,
		},
		{
			name: "password changed after issue",
			mutate: func(f *authFixture, a *models.Account) {
				changed := time.Now().Add(time.Hour)
				a.PasswordChangedAt = &changed
			},
			want: models.ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			refresh, err := f.tokens.IssueRefreshToken(f.account)
			require.NoError(t, err)

			a := f.repo.Snapshot(f.account.ID)
			tt.mutate(f, a)
			f.repo.Put(a)

			_, err = f.svc.Refresh(ctx, refresh)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	issuedBefore := f.clock.Add(-5 * time.Second)

	_, err := f.svc.ChangePassword(ctx, f.account.ID, "Wr0ng!Password", "N3w!Passw0rdX")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.ChangePassword(ctx, f.account.ID, testPassword, "short")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	result, err := f.svc.ChangePassword(ctx, f.account.ID, testPassword, "N3w!Passw0rdX")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)

	stored := f.repo.Snapshot(f.account.ID)
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Equal(t, f.clock.Add(-time.Second), *stored.PasswordChangedAt)
	assert.True(t, stored.ChangedPasswordAfter(issuedBefore))
	assert.False(t, stored.ChangedPasswordAfter(f.clock))

	_, err = f.svc.Authenticate(ctx, "a@x.com", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "a@x.com", "N3w!Passw0rdX")
	assert.NoError(t, err)
}

func TestAuthService_Authenticate_UnknownEmailPaysHashCost(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authenticate(context.Background(), "nobody@x.com", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 1, f.hasher.VerifyCalls, "unknown email must run a bcrypt compare like a wrong password")

	_, err = f.svc.Authenticate(context.Background(), "ghost@x.com", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 2, f.hasher.VerifyCalls)
	assert.Zero(t, f.repo.FailedLoginCalls)
}

func TestAuthService_ChangePassword_WrongPasswordCountsTowardLockout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := f.svc.ChangePassword(ctx, f.account.ID, "Wr0ng!Password", "N3w!Passw0rdX")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
		assert.Equal(t, i, f.repo.Snapshot(f.account.ID).LoginAttempts)
	}

	stored := f.repo.Snapshot(f.account.ID)
	require.NotNil(t, stored.LockUntil)
	assert.Equal(t, f.clock.Add(30*time.Minute), *stored.LockUntil)

	_, err := f.svc.ChangePassword(ctx, f.account.ID, testPassword, "N3w!Passw0rdX")
	assert.ErrorIs(t, err, models.ErrNotFound, "a locked account is hidden from the guarded lookup")

	_, err = f.svc.Authenticate(ctx, "a@x.com", testPassword)
	var locked *models.AccountLockedError
	assert.ErrorAs(t, err, &locked)
}
