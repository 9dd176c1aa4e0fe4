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

// EmailVerificationService handles email verification business logic
type EmailVerificationService struct {
	repo           AccountRepository
	email          EmailService
	policy         AccountPolicy
	resendCooldown time.Duration
	logger         *slog.Logger
	audit          *pkglogger.AuditLogger
	now            func() time.Time
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(
	repo AccountRepository,
	email EmailService,
	policy AccountPolicy,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *EmailVerificationService {
	return &EmailVerificationService{
		repo:           repo,
		email:          email,
		policy:         policy,
		resendCooldown: 20 * time.Minute, // minimum gap between verification emails
		logger:         logger,
		audit:          audit,
		now:            time.Now,
	}
}

// BeginEmailVerification stores the hash of a fresh verification secret and returns the plaintext.
func (s *EmailVerificationService) BeginEmailVerification(ctx context.Context, account *models.Account) (string, error) {
	plain, digest, err := pkgauth.GenerateOneTimeSecret()
	if err != nil {
		return "", &models.CredentialError{Op: "generate_verification_token", Err: err}
	}

	expires := s.now().Add(s.policy.EmailVerificationTTL)
	if err := s.repo.SetEmailVerificationToken(ctx, account.ID, digest, expires); err != nil {
		s.logger.Error("failed to store email verification token",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return "", fmt.Errorf("store verification token: %w", err)
	}

	account.EmailVerificationToken = digest
	account.EmailVerificationExpires = &expires
	metrics.RecordTokenIssued(metrics.TokenEmailVerification)
	return plain, nil
}

// Send begins verification for account and emails the secret
func (s *EmailVerificationService) Send(ctx context.Context, account *models.Account) error {
	plain, err := s.BeginEmailVerification(ctx, account)
	if err != nil {
		return err
	}

	if err := s.email.SendVerificationEmail(ctx, account.Email, plain, *account.EmailVerificationExpires); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}

	s.logger.Info("verification email sent", slog.String("account_id", account.ID))
	return nil
}

// CompleteEmailVerification redeems a verification secret and marks the account verified.
func (s *EmailVerificationService) CompleteEmailVerification(ctx context.Context, plaintext string) (bool, error) {
	if plaintext == "" {
		return false, models.ErrTokenInvalid
	}
	digest := pkgauth.HashSecret(plaintext)

	account, err := s.repo.GetByEmailVerificationToken(ctx, digest)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("email verification rejected: unknown token")
			return false, models.ErrTokenInvalid
		}
		s.logger.Error("failed to look up verification token", slog.Any("error", err))
		return false, fmt.Errorf("look up verification token: %w", err)
	}

	if account.EmailVerificationExpires == nil || !account.EmailVerificationExpires.After(s.now()) {
		s.logger.Info("email verification rejected: token expired", slog.String("account_id", account.ID))
		return false, models.ErrTokenExpired
	}

	ok, err := s.repo.CompleteEmailVerification(ctx, account.ID, digest)
	if err != nil {
		s.logger.Error("failed to complete email verification",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return false, fmt.Errorf("complete verification: %w", err)
	}
	if !ok {
		return false, models.ErrTokenInvalid
	}

	s.logger.Info("email verified", slog.String("account_id", account.ID))
	s.audit.LogAccountAction(ctx, pkglogger.EventEmailVerification, account.ID, nil)
	return true, nil
}

// Resend sends a new verification email. It returns nil without sending for unknown,
// locked or already verified accounts, and while the previous email is inside the cooldown.
func (s *EmailVerificationService) Resend(ctx context.Context, email string) error {
	account, err := s.repo.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to load account for resend", slog.Any("error", err))
		return fmt.Errorf("load account: %w", err)
	}

	if account.IsVerified || !account.IsActive {
		return nil
	}

	if account.EmailVerificationExpires != nil {
		issuedAt := account.EmailVerificationExpires.Add(-s.policy.EmailVerificationTTL)
		if since := s.now().Sub(issuedAt); since < s.resendCooldown {
			s.logger.Info("verification resend rate limited",
				slog.String("account_id", account.ID),
				slog.Duration("since_last_send", since))
			return nil
		}
	}

	return s.Send(ctx, account)
}
