package handlers

import (
	"context"

	"github.com/BradenHooton/scholar/internal/models"
	"github.com/BradenHooton/scholar/internal/services"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	AuthenticateFunc   func(ctx context.Context, email, password string) (*services.AuthResult, error)
	RegisterFunc       func(ctx context.Context, email, password, name string) (*models.Account, error)
	RefreshFunc        func(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	ChangePasswordFunc func(ctx context.Context, accountID, currentPassword, newPassword string) (*services.AuthResult, error)
}

func (m *MockAuthService) Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error) {
	return m.AuthenticateFunc(ctx, email, password)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*models.Account, error) {
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error) {
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (*services.AuthResult, error) {
	return m.ChangePasswordFunc(ctx, accountID, currentPassword, newPassword)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestPasswordResetFunc  func(ctx context.Context, email string) error
	CompletePasswordResetFunc func(ctx context.Context, plaintext, newPassword string) (bool, error)
}

func (m *MockPasswordResetService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.RequestPasswordResetFunc(ctx, email)
}

func (m *MockPasswordResetService) CompletePasswordReset(ctx context.Context, plaintext, newPassword string) (bool, error) {
	return m.CompletePasswordResetFunc(ctx, plaintext, newPassword)
}

// MockEmailVerificationService implements EmailVerificationServiceInterface for testing
type MockEmailVerificationService struct {
	CompleteEmailVerificationFunc func(ctx context.Context, plaintext string) (bool, error)
	ResendFunc                    func(ctx context.Context, email string) error
}

func (m *MockEmailVerificationService) CompleteEmailVerification(ctx context.Context, plaintext string) (bool, error) {
	return m.CompleteEmailVerificationFunc(ctx, plaintext)
}

func (m *MockEmailVerificationService) Resend(ctx context.Context, email string) error {
	return m.ResendFunc(ctx, email)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	EnableTwoFactorFunc  func(ctx context.Context, account *models.Account) (*models.TwoFactorEnrollment, error)
	VerifyTwoFactorFunc  func(ctx context.Context, accountID, code string) (string, error)
	DisableTwoFactorFunc func(ctx context.Context, accountID, password string) error
}

func (m *MockTwoFactorService) EnableTwoFactor(ctx context.Context, account *models.Account) (*models.TwoFactorEnrollment, error) {
	return m.EnableTwoFactorFunc(ctx, account)
}

func (m *MockTwoFactorService) VerifyTwoFactor(ctx context.Context, accountID, code string) (string, error) {
	return m.VerifyTwoFactorFunc(ctx, accountID, code)
}

func (m *MockTwoFactorService) DisableTwoFactor(ctx context.Context, accountID, password string) error {
	return m.DisableTwoFactorFunc(ctx, accountID, password)
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	ListFunc       func(ctx context.Context, limit, offset int) ([]*models.PublicAccount, error)
	GetFunc        func(ctx context.Context, id string) (*models.PublicAccount, error)
	SetActiveFunc  func(ctx context.Context, actorID, id string, active bool) error
	UnlockFunc     func(ctx context.Context, actorID, id string) error
	ChangeRoleFunc func(ctx context.Context, actorID, id string, role models.Role) error
}

func (m *MockAccountService) List(ctx context.Context, limit, offset int) ([]*models.PublicAccount, error) {
	return m.ListFunc(ctx, limit, offset)
}

func (m *MockAccountService) Get(ctx context.Context, id string) (*models.PublicAccount, error) {
	return m.GetFunc(ctx, id)
}

func (m *MockAccountService) SetActive(ctx context.Context, actorID, id string, active bool) error {
	return m.SetActiveFunc(ctx, actorID, id, active)
}

func (m *MockAccountService) Unlock(ctx context.Context, actorID, id string) error {
	return m.UnlockFunc(ctx, actorID, id)
}

func (m *MockAccountService) ChangeRole(ctx context.Context, actorID, id string, role models.Role) error {
	return m.ChangeRoleFunc(ctx, actorID, id, role)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
