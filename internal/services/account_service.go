package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scholar/internal/models"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// AccountRepository defines the interface for account data access.
//
// GetByID, GetByEmail and List hide accounts whose lock has not lapsed.
// GetByEmailForAuth and the one-time secret lookups see every account.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	GetByEmailForAuth(ctx context.Context, email string) (*models.Account, error)
	GetByPasswordResetToken(ctx context.Context, digest string) (*models.Account, error)
	GetByEmailVerificationToken(ctx context.Context, digest string) (*models.Account, error)

	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// RecordFailedLogin applies the failed-attempt transition in one atomic write
	// and returns the state it wrote.
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockDuration time.Duration, now time.Time) (models.LockoutState, error)
	RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error
	Unlock(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetPasswordResetToken(ctx context.Context, id, digest string, expires time.Time) error
	// CompletePasswordReset sets the new hash only while digest is still the stored
	// reset token. It reports false when another request consumed it first.
	CompletePasswordReset(ctx context.Context, id, digest, passwordHash string, changedAt time.Time) (bool, error)

	SetEmailVerificationToken(ctx context.Context, id, digest string, expires time.Time) error
	CompleteEmailVerification(ctx context.Context, id, digest string) (bool, error)

	EnableTwoFactor(ctx context.Context, id, sealedSecret string, recoveryDigests []string) error
	DisableTwoFactor(ctx context.Context, id string) error
	ConsumeRecoveryCode(ctx context.Context, id, digest string) (bool, error)

	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role models.Role) error
}

// AccountService handles account administration
type AccountService struct {
	repo   AccountRepository
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	now    func() time.Time
}

// NewAccountService creates a new AccountService
func NewAccountService(repo AccountRepository, logger *slog.Logger, audit *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		repo:   repo,
		logger: logger,
		audit:  audit,
		now:    time.Now,
	}
}

// List returns a page of accounts, newest first. Locked accounts are not listed.
func (s *AccountService) List(ctx context.Context, limit, offset int) ([]*models.PublicAccount, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list accounts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	out := make([]*models.PublicAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Public(now))
	}
	return out, nil
}

// Get returns a single account. A locked account reports ErrNotFound.
func (s *AccountService) Get(ctx context.Context, id string) (*models.PublicAccount, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.Public(s.now()), nil
}

// SetActive activates or deactivates an account. Admins cannot deactivate themselves.
func (s *AccountService) SetActive(ctx context.Context, actorID, id string, active bool) error {
	if actorID == id && !active {
		return fmt.Errorf("cannot deactivate own account: %w", models.ErrForbidden)
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return s.mapWriteError("set active", id, err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventAccountAdminChange, id, map[string]string{
		"actor_id": actorID,
		"action":   fmt.Sprintf("set_active:%t", active),
	})
	return nil
}

// Unlock clears the failed-attempt counter and any lock window.
func (s *AccountService) Unlock(ctx context.Context, actorID, id string) error {
	if err := s.repo.Unlock(ctx, id); err != nil {
		return s.mapWriteError("unlock", id, err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventAccountAdminChange, id, map[string]string{
		"actor_id": actorID,
		"action":   "unlock",
	})
	return nil
}

// ChangeRole assigns role to the account. Admins cannot change their own role.
func (s *AccountService) ChangeRole(ctx context.Context, actorID, id string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q: %w", role, models.ErrBadRequest)
	}
	if actorID == id {
		return fmt.Errorf("cannot change own role: %w", models.ErrForbidden)
	}

	if err := s.repo.SetRole(ctx, id, role); err != nil {
		return s.mapWriteError("set role", id, err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventAccountAdminChange, id, map[string]string{
		"actor_id": actorID,
		"action":   "set_role:" + string(role),
	})
	return nil
}

func (s *AccountService) mapWriteError(op, id string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return err
	}
	s.logger.Error("account update failed",
		slog.String("op", op),
		slog.String("account_id", id),
		slog.Any("error", err))
	return models.ErrInternalServer
}
