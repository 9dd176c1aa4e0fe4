package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/metrics"
	"github.com/BradenHooton/scholar/internal/models"
	pkgauth "github.com/BradenHooton/scholar/pkg/auth"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// TOTPProvider enrolls and checks time-based one-time passwords
type TOTPProvider interface {
	Enroll(accountEmail string) (*auth.TOTPEnrollment, error)
	Validate(sealedSecret, code string) (bool, error)
}

// TwoFactorService manages TOTP enrollment, verification and recovery codes
type TwoFactorService struct {
	repo     AccountRepository
	totp     TOTPProvider
	tokens   TokenIssuer
	hasher   PasswordHasher
	policy   AccountPolicy
	// failures counts wrong codes and wrong passwords against the account lockout
	failures failureCounter
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	now      func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	repo AccountRepository,
	totp TOTPProvider,
	tokens TokenIssuer,
	hasher PasswordHasher,
	policy AccountPolicy,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *TwoFactorService {
	return &TwoFactorService{
		repo:     repo,
		totp:     totp,
		tokens:   tokens,
		hasher:   hasher,
		policy:   policy,
		failures: failureCounter{repo: repo, policy: policy, logger: logger, audit: audit},
		logger:   logger,
		audit:    audit,
		now:      time.Now,
	}
}

// EnableTwoFactor generates a TOTP secret and a fresh set of recovery codes.
// Only the sealed secret and the code hashes are stored; the plaintext codes are
// returned here and nowhere else.
func (s *TwoFactorService) EnableTwoFactor(ctx context.Context, account *models.Account) (*models.TwoFactorEnrollment, error) {
	if account.TwoFactorEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := s.totp.Enroll(account.Email)
	if err != nil {
		return nil, &models.CredentialError{Op: "generate_totp_secret", Err: err}
	}

	codes, digests, err := pkgauth.GenerateRecoveryCodes(s.policy.RecoveryCodeCount)
	if err != nil {
		return nil, &models.CredentialError{Op: "generate_recovery_codes", Err: err}
	}

	if err := s.repo.EnableTwoFactor(ctx, account.ID, enrollment.EncryptedSecret, digests); err != nil {
		s.logger.Error("failed to store two-factor enrollment",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("store two-factor enrollment: %w", err)
	}

	account.TwoFactorSecret = enrollment.EncryptedSecret
	account.TwoFactorEnabled = true
	account.TwoFactorRecoveryCodes = digests

	metrics.RecordTokenIssued(metrics.TokenRecoveryCodes)
	s.audit.LogAccountAction(ctx, pkglogger.EventTwoFactorEnabled, account.ID, nil)
	s.logger.Info("two-factor enabled", slog.String("account_id", account.ID))

	return &models.TwoFactorEnrollment{
		Secret:        enrollment.Secret,
		OTPAuthURL:    enrollment.URL,
		QRCode:        enrollment.QRCode,
		RecoveryCodes: codes,
	}, nil
}

// VerifyTwoFactor checks code as a TOTP code, then as a recovery code, and issues a
// 2FA-verified access token. A recovery code is consumed on use. A wrong code counts
// as a failed attempt, so repeated guesses lock the account like wrong passwords do.
func (s *TwoFactorService) VerifyTwoFactor(ctx context.Context, accountID, code string) (string, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if !account.TwoFactorEnabled {
		return "", models.ErrTwoFactorNotEnabled
	}

	code = strings.TrimSpace(code)
	ok, err := s.totp.Validate(account.TwoFactorSecret, code)
	if err != nil {
		s.logger.Error("failed to validate totp code",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", &models.CredentialError{Op: "validate_totp", Err: err}
	}

	if !ok {
		ok, err = s.repo.ConsumeRecoveryCode(ctx, account.ID, pkgauth.HashSecret(strings.ToLower(code)))
		if err != nil {
			s.logger.Error("failed to consume recovery code",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
			return "", fmt.Errorf("consume recovery code: %w", err)
		}
		if ok {
			s.audit.LogAccountAction(ctx, pkglogger.EventRecoveryCodeUsed, account.ID, nil)
		}
	}

	if !ok {
		if _, err := s.failures.record(ctx, account, "two_factor_code", s.now()); err != nil {
			return "", err
		}
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventTwoFactorVerified,
			AccountID:     account.ID,
			Success:       false,
			FailureReason: "invalid_code",
		})
		return "", models.ErrTwoFactorInvalidCode
	}

	token, err := s.tokens.IssueVerifiedAccessToken(account)
	if err != nil {
		return "", err
	}

	metrics.RecordTokenIssued(metrics.TokenVerifiedAccess)
	s.audit.LogAccountAction(ctx, pkglogger.EventTwoFactorVerified, account.ID, nil)
	return token, nil
}

// DisableTwoFactor removes the TOTP secret and all recovery codes after confirming the password.
func (s *TwoFactorService) DisableTwoFactor(ctx context.Context, accountID, password string) error {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		if _, err := s.failures.record(ctx, account, "two_factor_disable", s.now()); err != nil {
			return err
		}
		return models.ErrInvalidCredentials
	}

	if err := s.repo.DisableTwoFactor(ctx, account.ID); err != nil {
		s.logger.Error("failed to disable two-factor",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return fmt.Errorf("disable two-factor: %w", err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventTwoFactorDisabled, account.ID, nil)
	s.logger.Info("two-factor disabled", slog.String("account_id", account.ID))
	return nil
}
