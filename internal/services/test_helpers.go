package services

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/scholar/internal/models"
	"github.com/google/uuid"
)

// MemoryAccountRepository is an in-memory AccountRepository for tests. It applies
// the same lock filter and one-time-secret semantics as the real stores.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.Account

	// Now drives the lock filter. Defaults to time.Now.
	Now func() time.Time
	// Err, when set, is returned by every method.
	Err error

	FailedLoginCalls int
}

// NewMemoryAccountRepository creates an empty repository
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[string]*models.Account),
		Now:      time.Now,
	}
}

// Put stores a copy of account, assigning an ID if it has none
func (m *MemoryAccountRepository) Put(account *models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	m.accounts[account.ID] = cloneAccount(account)
	return account
}

// Snapshot returns a copy of the stored account regardless of lock state
func (m *MemoryAccountRepository) Snapshot(id string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	return cloneAccount(a)
}

func (m *MemoryAccountRepository) visible(a *models.Account) bool {
	return !a.IsLocked(m.Now())
}

func (m *MemoryAccountRepository) find(match func(*models.Account) bool, guarded bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, a := range m.accounts {
		if match(a) && (!guarded || m.visible(a)) {
			return cloneAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemoryAccountRepository) update(id string, fn func(*models.Account) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	a, ok := m.accounts[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if !fn(a) {
		return false, nil
	}
	a.UpdatedAt = m.Now()
	return true, nil
}

func (m *MemoryAccountRepository) mustUpdate(id string, fn func(*models.Account)) error {
	_, err := m.update(id, func(a *models.Account) bool {
		fn(a)
		return true
	})
	return err
}

func (m *MemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.ID == id }, true)
}

func (m *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	return m.find(func(a *models.Account) bool { return a.Email == email }, true)
}

func (m *MemoryAccountRepository) GetByEmailForAuth(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	return m.find(func(a *models.Account) bool { return a.Email == email }, false)
}

func (m *MemoryAccountRepository) GetByPasswordResetToken(ctx context.Context, digest string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return digest != "" && a.PasswordResetToken == digest }, false)
}

func (m *MemoryAccountRepository) GetByEmailVerificationToken(ctx context.Context, digest string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return digest != "" && a.EmailVerificationToken == digest }, false)
}

func (m *MemoryAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	out := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if m.visible(a) {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []*models.Account{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, a := range m.accounts {
		if a.Email == models.NormalizeEmail(account.Email) {
			return nil, models.ErrConflict
		}
	}

	now := m.Now()
	account.ID = uuid.New().String()
	account.Email = models.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now
	m.accounts[account.ID] = cloneAccount(account)
	return account, nil
}

func (m *MemoryAccountRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockDuration time.Duration, now time.Time) (models.LockoutState, error) {
	var state models.LockoutState
	err := m.mustUpdate(id, func(a *models.Account) {
		m.FailedLoginCalls++
		policy := AccountPolicy{MaxLoginAttempts: maxAttempts, LockDuration: lockDuration}
		state = policy.NextFailure(a.Lockout(), now)
		a.LoginAttempts = state.LoginAttempts
		a.LockUntil = state.LockUntil
	})
	return state, err
}

func (m *MemoryAccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.LoginAttempts = 0
		a.LockUntil = nil
		a.LastLogin = &now
	})
}

func (m *MemoryAccountRepository) Unlock(ctx context.Context, id string) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.LoginAttempts = 0
		a.LockUntil = nil
	})
}

func (m *MemoryAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.PasswordHash = passwordHash
		a.PasswordChangedAt = &changedAt
	})
}

func (m *MemoryAccountRepository) SetPasswordResetToken(ctx context.Context, id, digest string, expires time.Time) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.PasswordResetToken = digest
		a.PasswordResetExpires = &expires
	})
}

func (m *MemoryAccountRepository) CompletePasswordReset(ctx context.Context, id, digest, passwordHash string, changedAt time.Time) (bool, error) {
	return m.update(id, func(a *models.Account) bool {
		if a.PasswordResetToken != digest {
			return false
		}
		a.PasswordHash = passwordHash
		a.PasswordChangedAt = &changedAt
		a.PasswordResetToken = ""
		a.PasswordResetExpires = nil
		return true
	})
}

func (m *MemoryAccountRepository) SetEmailVerificationToken(ctx context.Context, id, digest string, expires time.Time) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.EmailVerificationToken = digest
		a.EmailVerificationExpires = &expires
	})
}

func (m *MemoryAccountRepository) CompleteEmailVerification(ctx context.Context, id, digest string) (bool, error) {
	return m.update(id, func(a *models.Account) bool {
		if a.EmailVerificationToken != digest {
			return false
		}
		a.IsVerified = true
		a.EmailVerificationToken = ""
		a.EmailVerificationExpires = nil
		return true
	})
}

func (m *MemoryAccountRepository) EnableTwoFactor(ctx context.Context, id, sealedSecret string, recoveryDigests []string) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.TwoFactorSecret = sealedSecret
		a.TwoFactorEnabled = true
		a.TwoFactorRecoveryCodes = slices.Clone(recoveryDigests)
	})
}

func (m *MemoryAccountRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return m.mustUpdate(id, func(a *models.Account) {
		a.TwoFactorSecret = ""
		a.TwoFactorEnabled = false
		a.TwoFactorRecoveryCodes = nil
	})
}

func (m *MemoryAccountRepository) ConsumeRecoveryCode(ctx context.Context, id, digest string) (bool, error) {
	return m.update(id, func(a *models.Account) bool {
		i := slices.Index(a.TwoFactorRecoveryCodes, digest)
		if i < 0 {
			return false
		}
		a.TwoFactorRecoveryCodes = slices.Delete(a.TwoFactorRecoveryCodes, i, i+1)
		return true
	})
}

func (m *MemoryAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return m.mustUpdate(id, func(a *models.Account) { a.IsActive = active })
}

func (m *MemoryAccountRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	return m.mustUpdate(id, func(a *models.Account) { a.Role = role })
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.TwoFactorRecoveryCodes = slices.Clone(a.TwoFactorRecoveryCodes)
	return &c
}

// MockEmailService records deliveries for testing
type MockEmailService struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error

	VerificationTokens []string
	ResetTokens        []string
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.VerificationTokens = append(m.VerificationTokens, token)
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.ResetTokens = append(m.ResetTokens, token)
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

// SpyHasher wraps a PasswordHasher and counts Verify calls
type SpyHasher struct {
	PasswordHasher
	HashErr     error
	VerifyCalls int
}

func (s *SpyHasher) Hash(password string) (string, error) {
	if s.HashErr != nil {
		return "", s.HashErr
	}
	return s.PasswordHasher.Hash(password)
}

func (s *SpyHasher) Verify(password, hash string) bool {
	s.VerifyCalls++
	return s.PasswordHasher.Verify(password, hash)
}

// NewTestAccount creates an active, verified account with the given password hash
func NewTestAccount(email, passwordHash string, role models.Role) *models.Account {
	changed := time.Now().Add(-24 * time.Hour)
	a := models.NewAccount(email, "Test Account", passwordHash, role, changed)
	a.IsVerified = true
	a.CreatedAt = changed
	a.UpdatedAt = changed
	return a
}
