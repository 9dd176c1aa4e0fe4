package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scholar/internal/metrics"
	"github.com/BradenHooton/scholar/internal/models"
	pkgauth "github.com/BradenHooton/scholar/pkg/auth"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// PasswordResetService issues and redeems one-time password reset secrets
type PasswordResetService struct {
	repo   AccountRepository
	hasher PasswordHasher
	email  EmailService
	policy AccountPolicy
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	now    func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	repo AccountRepository,
	hasher PasswordHasher,
	email EmailService,
	policy AccountPolicy,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *PasswordResetService {
	return &PasswordResetService{
		repo:   repo,
		hasher: hasher,
		email:  email,
		policy: policy,
		logger: logger,
		audit:  audit,
		now:    time.Now,
	}
}

// BeginPasswordReset stores the hash of a fresh reset secret on the account and
// returns the plaintext. Any earlier reset secret stops working.
func (s *PasswordResetService) BeginPasswordReset(ctx context.Context, account *models.Account) (string, error) {
	plain, digest, err := pkgauth.GenerateOneTimeSecret()
	if err != nil {
		return "", &models.CredentialError{Op: "generate_reset_token", Err: err}
	}

	expires := s.now().Add(s.policy.PasswordResetTTL)
	if err := s.repo.SetPasswordResetToken(ctx, account.ID, digest, expires); err != nil {
		s.logger.Error("failed to store password reset token",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", fmt.Errorf("store reset token: %w", err)
	}

	account.PasswordResetToken = digest
	account.PasswordResetExpires = &expires
	metrics.RecordTokenIssued(metrics.TokenPasswordReset)
	return plain, nil
}

// RequestPasswordReset begins a reset for email and mails the secret. It returns
// nil for unknown or inactive accounts so callers cannot enumerate registered emails.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)

	account, err := s.repo.GetByEmailForAuth(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to load account for password reset", slog.Any("error", err))
		return fmt.Errorf("load account: %w", err)
	}

	if !account.IsActive {
		s.logger.Info("password reset requested for inactive account", slog.String("account_id", account.ID))
		return nil
	}

	plain, err := s.BeginPasswordReset(ctx, account)
	if err != nil {
		return err
	}

	if err := s.email.SendPasswordResetEmail(ctx, account.Email, plain, *account.PasswordResetExpires); err != nil {
		s.logger.Error("failed to send password reset email",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.Info("password reset email sent", slog.String("account_id", account.ID))
	return nil
}

// CompletePasswordReset redeems a reset secret and sets newPassword.
//
// Unknown or already-used secrets return models.ErrTokenInvalid; a secret past its
// expiry returns models.ErrTokenExpired and leaves the password unchanged.
func (s *PasswordResetService) CompletePasswordReset(ctx context.Context, plaintext, newPassword string) (bool, error) {
	if plaintext == "" {
		return false, models.ErrTokenInvalid
	}
	digest := pkgauth.HashSecret(plaintext)

	account, err := s.repo.GetByPasswordResetToken(ctx, digest)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset rejected: unknown token")
			return false, models.ErrTokenInvalid
		}
		s.logger.Error("failed to look up password reset token", slog.Any("error", err))
		return false, fmt.Errorf("look up reset token: %w", err)
	}

	now := s.now()
	if account.PasswordResetExpires == nil || !account.PasswordResetExpires.After(now) {
		s.logger.Info("password reset rejected: token expired", slog.String("account_id", account.ID))
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordReset,
			AccountID:     account.ID,
			Success:       false,
			FailureReason: "token_expired",
		})
		return false, models.ErrTokenExpired
	}

	hash, err := hashNewPassword(s.hasher, newPassword)
	if err != nil {
		return false, err
	}

	ok, err := s.repo.CompletePasswordReset(ctx, account.ID, digest, hash, s.policy.passwordChangedAt(now))
	if err != nil {
		s.logger.Error("failed to complete password reset",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return false, fmt.Errorf("complete reset: %w", err)
	}
	if !ok {
		s.logger.Warn("password reset rejected: token already used", slog.String("account_id", account.ID))
		return false, models.ErrTokenInvalid
	}

	s.logger.Info("password reset completed", slog.String("account_id", account.ID))
	s.audit.LogAccountAction(ctx, pkglogger.EventPasswordReset, account.ID, nil)
	return true, nil
}
