package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/scholar/internal/database"
	"github.com/BradenHooton/scholar/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, name, password_hash, role, is_verified, is_active, last_login,
	login_attempts, lock_until, password_changed_at,
	password_reset_token, password_reset_expires,
	email_verification_token, email_verification_expires,
	two_factor_secret, two_factor_enabled, two_factor_recovery_codes,
	created_at, updated_at`

// unlockedClause hides accounts whose lock window has not lapsed at $n
const unlockedClause = `(lock_until IS NULL OR lock_until <= $%d)`

// PostgresAccountRepository stores accounts in the accounts table.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresAccountRepository(db *database.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: db.Pool, now: time.Now}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccountRow handles nullable columns and populates an Account from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	var resetToken, verificationToken, twoFactorSecret *string

	err := scanner.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.IsVerified, &a.IsActive, &a.LastLogin,
		&a.LoginAttempts, &a.LockUntil, &a.PasswordChangedAt,
		&resetToken, &a.PasswordResetExpires,
		&verificationToken, &a.EmailVerificationExpires,
		&twoFactorSecret, &a.TwoFactorEnabled, &a.TwoFactorRecoveryCodes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	a.PasswordResetToken = deref(resetToken)
	a.EmailVerificationToken = deref(verificationToken)
	a.TwoFactorSecret = deref(twoFactorSecret)

	return &a, nil
}

func scanAccountRows(rows pgx.Rows) ([]*models.Account, error) {
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *PostgresAccountRepository) getOne(ctx context.Context, where string, args ...any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	return scanAccountRow(r.pool.QueryRow(ctx, query, args...))
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, `id = $1 AND `+fmt.Sprintf(unlockedClause, 2), id, r.now())
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `LOWER(email) = $1 AND `+fmt.Sprintf(unlockedClause, 2), models.NormalizeEmail(email), r.now())
}

func (r *PostgresAccountRepository) GetByEmailForAuth(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `LOWER(email) = $1`, models.NormalizeEmail(email))
}

func (r *PostgresAccountRepository) GetByPasswordResetToken(ctx context.Context, digest string) (*models.Account, error) {
	if digest == "" {
		return nil, models.ErrNotFound
	}
	return r.getOne(ctx, `password_reset_token = $1`, digest)
}

func (r *PostgresAccountRepository) GetByEmailVerificationToken(ctx context.Context, digest string) (*models.Account, error) {
	if digest == "" {
		return nil, models.ErrNotFound
	}
	return r.getOne(ctx, `email_verification_token = $1`, digest)
}

func (r *PostgresAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + fmt.Sprintf(unlockedClause, 1) +
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, r.now(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return scanAccountRows(rows)
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	now := r.now()
	account.ID = uuid.New().String()
	account.Email = models.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = models.RoleUser
	}

	query := `
		INSERT INTO accounts (id, email, name, password_hash, role, is_verified, is_active,
			password_changed_at, email_verification_token, email_verification_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Email, account.Name, account.PasswordHash, account.Role,
		account.IsVerified, account.IsActive, account.PasswordChangedAt,
		account.EmailVerificationToken, account.EmailVerificationExpires,
		account.CreatedAt, account.UpdatedAt,
	))
}

// RecordFailedLogin increments the counter and decides the lock in a single
// UPDATE so concurrent failures cannot lose increments or skip the lock.
func (r *PostgresAccountRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockDuration time.Duration, now time.Time) (models.LockoutState, error) {
	query := `
		UPDATE accounts SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN
					CASE WHEN 1 >= $3 THEN $4::timestamptz ELSE NULL END
				WHEN lock_until IS NULL AND login_attempts + 1 >= $3 THEN $4::timestamptz
				ELSE lock_until
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING login_attempts, lock_until
	`

	var state models.LockoutState
	err := r.pool.QueryRow(ctx, query, id, now, maxAttempts, now.Add(lockDuration)).
		Scan(&state.LoginAttempts, &state.LockUntil)
	if err != nil {
		return models.LockoutState{}, database.MapPostgresError(err)
	}
	return state, nil
}

func (r *PostgresAccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET login_attempts = 0, lock_until = NULL, last_login = $2, updated_at = $2 WHERE id = $1`,
		id, now)
}

func (r *PostgresAccountRepository) Unlock(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE accounts SET login_attempts = 0, lock_until = NULL, updated_at = $2 WHERE id = $1`,
		id, r.now())
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET password_hash = $2, password_changed_at = $3, updated_at = $4 WHERE id = $1`,
		id, passwordHash, changedAt, r.now())
}

func (r *PostgresAccountRepository) SetPasswordResetToken(ctx context.Context, id, digest string, expires time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET password_reset_token = $2, password_reset_expires = $3, updated_at = $4 WHERE id = $1`,
		id, digest, expires, r.now())
}

func (r *PostgresAccountRepository) CompletePasswordReset(ctx context.Context, id, digest, passwordHash string, changedAt time.Time) (bool, error) {
	query := `
		UPDATE accounts SET
			password_hash = $3, password_changed_at = $4,
			password_reset_token = NULL, password_reset_expires = NULL,
			updated_at = $5
		WHERE id = $1 AND password_reset_token = $2
	`
	return r.conditional(ctx, query, id, digest, passwordHash, changedAt, r.now())
}

func (r *PostgresAccountRepository) SetEmailVerificationToken(ctx context.Context, id, digest string, expires time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET email_verification_token = $2, email_verification_expires = $3, updated_at = $4 WHERE id = $1`,
		id, digest, expires, r.now())
}

func (r *PostgresAccountRepository) CompleteEmailVerification(ctx context.Context, id, digest string) (bool, error) {
	query := `
		UPDATE accounts SET
			is_verified = TRUE,
			email_verification_token = NULL, email_verification_expires = NULL,
			updated_at = $3
		WHERE id = $1 AND email_verification_token = $2
	`
	return r.conditional(ctx, query, id, digest, r.now())
}

func (r *PostgresAccountRepository) EnableTwoFactor(ctx context.Context, id, sealedSecret string, recoveryDigests []string) error {
	return r.exec(ctx, `
		UPDATE accounts SET two_factor_secret = $2, two_factor_enabled = TRUE,
			two_factor_recovery_codes = $3, updated_at = $4
		WHERE id = $1`,
		id, sealedSecret, recoveryDigests, r.now())
}

func (r *PostgresAccountRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts SET two_factor_secret = NULL, two_factor_enabled = FALSE,
			two_factor_recovery_codes = '{}', updated_at = $2
		WHERE id = $1`,
		id, r.now())
}

// ConsumeRecoveryCode removes digest from the stored codes only if it is still
// present, so a code can be redeemed once even under concurrent requests.
func (r *PostgresAccountRepository) ConsumeRecoveryCode(ctx context.Context, id, digest string) (bool, error) {
	query := `
		UPDATE accounts SET
			two_factor_recovery_codes = array_remove(two_factor_recovery_codes, $2),
			updated_at = $3
		WHERE id = $1 AND $2 = ANY(two_factor_recovery_codes)
	`
	return r.conditional(ctx, query, id, digest, r.now())
}

func (r *PostgresAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, r.now())
}

func (r *PostgresAccountRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.exec(ctx, `UPDATE accounts SET role = $2, updated_at = $3 WHERE id = $1`, id, role, r.now())
}

// exec runs an update that must touch exactly the account named by id
func (r *PostgresAccountRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// conditional runs an update guarded by a WHERE predicate and reports whether it applied
func (r *PostgresAccountRepository) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}
