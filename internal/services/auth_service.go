package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/metrics"
	"github.com/BradenHooton/scholar/internal/models"
	pkgauth "github.com/BradenHooton/scholar/pkg/auth"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// TokenIssuer mints and validates signed session tokens
type TokenIssuer interface {
	IssuePair(account *models.Account) (*models.TokenPair, error)
	IssueVerifiedAccessToken(account *models.Account) (string, error)
	ValidateRefreshToken(tokenString string) (*models.TokenClaims, error)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AuthResult is the outcome of a successful authentication
type AuthResult struct {
	Account      *models.Account
	AccessToken  string
	RefreshToken string
	// TwoFactorRequired is set when the access token is not yet 2FA-verified
	TwoFactorRequired bool
}

// AuthService handles authentication business logic
type AuthService struct {
	repo         AccountRepository
	tokens       TokenIssuer
	hasher       PasswordHasher
	policy       AccountPolicy
	verification *EmailVerificationService
	timing       *auth.TimingDelay
	failures     failureCounter
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
	now          func() time.Time

	// decoyHash is compared against when the email is unknown so that branch
	// pays the same bcrypt cost as a wrong password.
	decoyOnce sync.Once
	decoyHash string
}

// NewAuthService creates a new AuthService. verification and timing may be nil.
func NewAuthService(
	repo AccountRepository,
	tokens TokenIssuer,
	hasher PasswordHasher,
	policy AccountPolicy,
	verification *EmailVerificationService,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:         repo,
		tokens:       tokens,
		hasher:       hasher,
		policy:       policy,
		verification: verification,
		timing:       timing,
		failures:     failureCounter{repo: repo, policy: policy, logger: logger, audit: audit},
		logger:       logger,
		audit:        audit,
		now:          time.Now,
	}
}

// Authenticate runs the lockout gate, the password check and the counter update,
// then issues an access/refresh pair.
//
// Unknown email and wrong password both return ErrInvalidCredentials. A locked
// account returns *models.AccountLockedError without its password being checked.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	start := time.Now()
	email = models.NormalizeEmail(email)

	if email == "" || password == "" {
		s.timing.WaitFrom(start)
		metrics.RecordLogin(metrics.LoginInvalidCredentials)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.repo.GetByEmailForAuth(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.Verify(password, s.decoy())
			s.logger.Info("login failed: invalid credentials")
			s.audit.LogLogin(ctx, "", email, false, "invalid_credentials")
			metrics.RecordLogin(metrics.LoginInvalidCredentials)
			s.timing.WaitFrom(start)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load account for login", slog.Any("error", err))
		metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := s.now()

	if !account.IsActive {
		s.logger.Info("login blocked: account inactive", slog.String("account_id", account.ID))
		s.audit.LogLogin(ctx, account.ID, email, false, "account_inactive")
		metrics.RecordLogin(metrics.LoginInactive)
		return nil, models.ErrAccountInactive
	}

	if account.IsLocked(now) {
		remaining := RemainingLockMinutes(*account.LockUntil, now)
		s.logger.Info("login blocked: account locked",
			slog.String("account_id", account.ID),
			slog.Int("remaining_minutes", remaining))
		s.audit.LogLogin(ctx, account.ID, email, false, "account_locked")
		metrics.RecordLogin(metrics.LoginLocked)
		return nil, &models.AccountLockedError{RemainingMinutes: remaining}
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if _, err := s.failures.record(ctx, account, "password", now); err != nil {
			metrics.RecordLogin(metrics.LoginError)
			return nil, err
		}
		s.audit.LogLogin(ctx, account.ID, email, false, "invalid_credentials")
		metrics.RecordLogin(metrics.LoginInvalidCredentials)
		s.timing.WaitFrom(start)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.repo.RecordSuccessfulLogin(ctx, account.ID, now); err != nil {
		s.logger.Error("failed to record successful login",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("record successful login: %w", err)
	}
	account.LoginAttempts = 0
	account.LockUntil = nil
	account.LastLogin = &now

	result, err := s.issue(account)
	if err != nil {
		metrics.RecordLogin(metrics.LoginError)
		return nil, err
	}

	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.audit.LogLogin(ctx, account.ID, email, true, "")
	metrics.RecordLogin(metrics.LoginSuccess)
	return result, nil
}

// decoy returns a hash of a fixed string at the configured cost, computed once.
func (s *AuthService) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("decoy-password-for-unknown-accounts")
		if err != nil {
			s.logger.Error("failed to compute decoy hash", slog.Any("error", err))
			return
		}
		s.decoyHash = hash
	})
	return s.decoyHash
}

// IssueVerifiedAccessToken mints an access token marked as having passed the second factor.
func (s *AuthService) IssueVerifiedAccessToken(account *models.Account) (string, error) {
	token, err := s.tokens.IssueVerifiedAccessToken(account)
	if err != nil {
		s.logger.Error("failed to issue verified access token",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", err
	}
	metrics.RecordTokenIssued(metrics.TokenVerifiedAccess)
	return token, nil
}

// Register creates an active, unverified account and starts email verification.
// A failed verification email does not undo the registration.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", models.ErrBadRequest)
	}

	hash, err := s.newPasswordHash(password)
	if err != nil {
		return nil, err
	}

	account := models.NewAccount(email, name, hash, models.RoleUser, s.policy.passwordChangedAt(s.now()))
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration rejected: email already registered")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account registered", slog.String("account_id", created.ID))
	s.audit.LogAccountAction(ctx, pkglogger.EventAccountRegistered, created.ID, nil)

	if s.verification != nil {
		if err := s.verification.Send(ctx, created); err != nil {
			s.logger.Warn("verification email not sent after registration",
				slog.String("account_id", created.ID),
				slog.Any("error", err))
		}
	}

	return created, nil
}

// Refresh exchanges a refresh token for a new token pair. The account is reloaded
// through the lock-filtered lookup, so a locked account cannot refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to load account for refresh", slog.Any("error", err))
		return nil, fmt.Errorf("load account: %w", err)
	}

	if !account.IsActive {
		return nil, models.ErrAccountInactive
	}

	if account.ChangedPasswordAfter(claims.IssuedAt.Time) {
		s.logger.Info("refresh rejected: password changed after token issue",
			slog.String("account_id", account.ID))
		return nil, models.ErrTokenInvalid
	}

	return s.issue(account)
}

// ChangePassword verifies the current password, stores the new one and returns a
// fresh token pair. Tokens issued before the change stop validating.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (*AuthResult, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(currentPassword, account.PasswordHash) {
		if _, err := s.failures.record(ctx, account, "password_change", s.now()); err != nil {
			return nil, err
		}
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordChange,
			AccountID:     account.ID,
			Success:       false,
			FailureReason: "invalid_current_password",
		})
		return nil, models.ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, account, newPassword); err != nil {
		return nil, err
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventPasswordChange, account.ID, nil)
	return s.issue(account)
}

// setPassword hashes password and persists it together with passwordChangedAt.
func (s *AuthService) setPassword(ctx context.Context, account *models.Account, password string) error {
	hash, err := s.newPasswordHash(password)
	if err != nil {
		return err
	}

	changedAt := s.policy.passwordChangedAt(s.now())
	if err := s.repo.UpdatePassword(ctx, account.ID, hash, changedAt); err != nil {
		s.logger.Error("failed to update password",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return fmt.Errorf("update password: %w", err)
	}

	account.PasswordHash = hash
	account.PasswordChangedAt = &changedAt
	return nil
}

func (s *AuthService) newPasswordHash(password string) (string, error) {
	return hashNewPassword(s.hasher, password)
}

func (s *AuthService) issue(account *models.Account) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		s.logger.Error("failed to issue tokens",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, err
	}
	metrics.RecordTokenIssued(metrics.TokenAccess)
	metrics.RecordTokenIssued(metrics.TokenRefresh)

	return &AuthResult{
		Account:           account,
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		TwoFactorRequired: account.TwoFactorEnabled,
	}, nil
}

// hashNewPassword enforces password strength and hashes the result. Hashing
// failures are reported as *models.CredentialError.
func hashNewPassword(hasher PasswordHasher, password string) (string, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrBadRequest, err)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return "", &models.CredentialError{Op: "hash_password", Err: err}
	}
	return hash, nil
}
