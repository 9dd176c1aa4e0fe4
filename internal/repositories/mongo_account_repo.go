package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/scholar/internal/database"
	"github.com/BradenHooton/scholar/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// accountDocument is the BSON shape of an account. Emails are stored
// normalised so the unique index on email is case-insensitive.
type accountDocument struct {
	ID                       string      `bson:"_id"`
	Email                    string      `bson:"email"`
	Name                     string      `bson:"name"`
	PasswordHash             string      `bson:"password_hash"`
	Role                     models.Role `bson:"role"`
	IsVerified               bool        `bson:"is_verified"`
	IsActive                 bool        `bson:"is_active"`
	LastLogin                *time.Time  `bson:"last_login,omitempty"`
	LoginAttempts            int         `bson:"login_attempts"`
	LockUntil                *time.Time  `bson:"lock_until,omitempty"`
	PasswordChangedAt        *time.Time  `bson:"password_changed_at,omitempty"`
	PasswordResetToken       string      `bson:"password_reset_token,omitempty"`
	PasswordResetExpires     *time.Time  `bson:"password_reset_expires,omitempty"`
	EmailVerificationToken   string      `bson:"email_verification_token,omitempty"`
	EmailVerificationExpires *time.Time  `bson:"email_verification_expires,omitempty"`
	TwoFactorSecret          string      `bson:"two_factor_secret,omitempty"`
	TwoFactorEnabled         bool        `bson:"two_factor_enabled"`
	TwoFactorRecoveryCodes   []string    `bson:"two_factor_recovery_codes"`
	CreatedAt                time.Time   `bson:"created_at"`
	UpdatedAt                time.Time   `bson:"updated_at"`
}

func newAccountDocument(a *models.Account) *accountDocument {
	codes := a.TwoFactorRecoveryCodes
	if codes == nil {
		codes = []string{}
	}
	return &accountDocument{
		ID:                       a.ID,
		Email:                    a.Email,
		Name:                     a.Name,
		PasswordHash:             a.PasswordHash,
		Role:                     a.Role,
		IsVerified:               a.IsVerified,
		IsActive:                 a.IsActive,
		LastLogin:                a.LastLogin,
		LoginAttempts:            a.LoginAttempts,
		LockUntil:                a.LockUntil,
		PasswordChangedAt:        a.PasswordChangedAt,
		PasswordResetToken:       a.PasswordResetToken,
		PasswordResetExpires:     a.PasswordResetExpires,
		EmailVerificationToken:   a.EmailVerificationToken,
		EmailVerificationExpires: a.EmailVerificationExpires,
		TwoFactorSecret:          a.TwoFactorSecret,
		TwoFactorEnabled:         a.TwoFactorEnabled,
		TwoFactorRecoveryCodes:   codes,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}
}

func (d *accountDocument) account() *models.Account {
	return &models.Account{
		ID:                       d.ID,
		Email:                    d.Email,
		Name:                     d.Name,
		PasswordHash:             d.PasswordHash,
		Role:                     d.Role,
		IsVerified:               d.IsVerified,
		IsActive:                 d.IsActive,
		LastLogin:                d.LastLogin,
		LoginAttempts:            d.LoginAttempts,
		LockUntil:                d.LockUntil,
		PasswordChangedAt:        d.PasswordChangedAt,
		PasswordResetToken:       d.PasswordResetToken,
		PasswordResetExpires:     d.PasswordResetExpires,
		EmailVerificationToken:   d.EmailVerificationToken,
		EmailVerificationExpires: d.EmailVerificationExpires,
		TwoFactorSecret:          d.TwoFactorSecret,
		TwoFactorEnabled:         d.TwoFactorEnabled,
		TwoFactorRecoveryCodes:   d.TwoFactorRecoveryCodes,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}
}

// MongoAccountRepository stores accounts in a MongoDB collection.
type MongoAccountRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoAccountRepository(db *database.MongoDB) *MongoAccountRepository {
	return &MongoAccountRepository{col: db.Accounts, now: time.Now}
}

// EnsureIndexes creates the unique email index and the one-time secret indexes
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	stringTyped := func(field string) bson.M {
		return bson.M{field: bson.M{"$type": "string"}}
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("accounts_email_key").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "password_reset_token", Value: 1}},
			Options: options.Index().SetName("accounts_password_reset_token_key").SetUnique(true).
				SetPartialFilterExpression(stringTyped("password_reset_token")),
		},
		{
			Keys: bson.D{{Key: "email_verification_token", Value: 1}},
			Options: options.Index().SetName("accounts_email_verification_token_key").SetUnique(true).
				SetPartialFilterExpression(stringTyped("email_verification_token")),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("accounts_created_at_idx"),
		},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

// unlockedFilter matches accounts without a lock or whose lock lapsed at now
func unlockedFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"lock_until": nil},
		bson.M{"lock_until": bson.M{"$lte": now}},
	}}
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var doc accountDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, database.MapMongoError(err)
	}
	return doc.account(), nil
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id, "$and": bson.A{unlockedFilter(r.now())}})
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": models.NormalizeEmail(email), "$and": bson.A{unlockedFilter(r.now())}})
}

func (r *MongoAccountRepository) GetByEmailForAuth(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (r *MongoAccountRepository) GetByPasswordResetToken(ctx context.Context, digest string) (*models.Account, error) {
	if digest == "" {
		return nil, models.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"password_reset_token": digest})
}

func (r *MongoAccountRepository) GetByEmailVerificationToken(ctx context.Context, digest string) (*models.Account, error) {
	if digest == "" {
		return nil, models.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"email_verification_token": digest})
}

func (r *MongoAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(ctx, unlockedFilter(r.now()), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer cursor.Close(ctx)

	accounts := make([]*models.Account, 0)
	for cursor.Next(ctx) {
		var doc accountDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		accounts = append(accounts, doc.account())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	account.ID = uuid.New().String()
	account.Email = models.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = models.RoleUser
	}

	if _, err := r.col.InsertOne(ctx, newAccountDocument(account)); err != nil {
		return nil, database.MapMongoError(err)
	}

	return account, nil
}

// RecordFailedLogin applies the increment and lock decision in one pipeline
// update. Every $set expression reads the pre-update document.
func (r *MongoAccountRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockDuration time.Duration, now time.Time) (models.LockoutState, error) {
	lockAt := now.Add(lockDuration)
	lockOrNull := func(attempts int) any {
		if attempts >= maxAttempts {
			return lockAt
		}
		return nil
	}

	lockUntil := bson.M{"$ifNull": bson.A{"$lock_until", nil}}
	attempts := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$login_attempts", 0}}, 1}}
	lapsed := bson.M{"$and": bson.A{
		bson.M{"$ne": bson.A{lockUntil, nil}},
		bson.M{"$lte": bson.A{lockUntil, now}},
	}}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"login_attempts": bson.M{"$cond": bson.A{lapsed, 1, attempts}},
		"lock_until": bson.M{"$switch": bson.M{
			"branches": bson.A{
				bson.M{"case": lapsed, "then": lockOrNull(1)},
				bson.M{
					"case": bson.M{"$and": bson.A{
						bson.M{"$eq": bson.A{lockUntil, nil}},
						bson.M{"$gte": bson.A{attempts, maxAttempts}},
					}},
					"then": lockAt,
				},
			},
			"default": lockUntil,
		}},
		"updated_at": now,
	}}}}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"login_attempts": 1, "lock_until": 1})

	var out struct {
		LoginAttempts int        `bson:"login_attempts"`
		LockUntil     *time.Time `bson:"lock_until"`
	}
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&out); err != nil {
		return models.LockoutState{}, database.MapMongoError(err)
	}

	return models.LockoutState{LoginAttempts: out.LoginAttempts, LockUntil: out.LockUntil}, nil
}

func (r *MongoAccountRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	return r.updateByID(ctx, id, bson.M{
		"$set":   bson.M{"login_attempts": 0, "last_login": now, "updated_at": now},
		"$unset": bson.M{"lock_until": ""},
	})
}

func (r *MongoAccountRepository) Unlock(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{
		"$set":   bson.M{"login_attempts": 0, "updated_at": r.now()},
		"$unset": bson.M{"lock_until": ""},
	})
}

func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"password_hash":       passwordHash,
		"password_changed_at": changedAt,
		"updated_at":          r.now(),
	}})
}

func (r *MongoAccountRepository) SetPasswordResetToken(ctx context.Context, id, digest string, expires time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"password_reset_token":   digest,
		"password_reset_expires": expires,
		"updated_at":             r.now(),
	}})
}

func (r *MongoAccountRepository) CompletePasswordReset(ctx context.Context, id, digest, passwordHash string, changedAt time.Time) (bool, error) {
	return r.conditional(ctx, bson.M{"_id": id, "password_reset_token": digest}, bson.M{
		"$set": bson.M{
			"password_hash":       passwordHash,
			"password_changed_at": changedAt,
			"updated_at":          r.now(),
		},
		"$unset": bson.M{"password_reset_token": "", "password_reset_expires": ""},
	})
}

func (r *MongoAccountRepository) SetEmailVerificationToken(ctx context.Context, id, digest string, expires time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"email_verification_token":   digest,
		"email_verification_expires": expires,
		"updated_at":                 r.now(),
	}})
}

func (r *MongoAccountRepository) CompleteEmailVerification(ctx context.Context, id, digest string) (bool, error) {
	return r.conditional(ctx, bson.M{"_id": id, "email_verification_token": digest}, bson.M{
		"$set":   bson.M{"is_verified": true, "updated_at": r.now()},
		"$unset": bson.M{"email_verification_token": "", "email_verification_expires": ""},
	})
}

func (r *MongoAccountRepository) EnableTwoFactor(ctx context.Context, id, sealedSecret string, recoveryDigests []string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"two_factor_secret":         sealedSecret,
		"two_factor_enabled":        true,
		"two_factor_recovery_codes": recoveryDigests,
		"updated_at":                r.now(),
	}})
}

func (r *MongoAccountRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{
		"$set":   bson.M{"two_factor_enabled": false, "two_factor_recovery_codes": bson.A{}, "updated_at": r.now()},
		"$unset": bson.M{"two_factor_secret": ""},
	})
}

// ConsumeRecoveryCode pulls digest only from a document that still holds it
func (r *MongoAccountRepository) ConsumeRecoveryCode(ctx context.Context, id, digest string) (bool, error) {
	return r.conditional(ctx, bson.M{"_id": id, "two_factor_recovery_codes": digest}, bson.M{
		"$pull": bson.M{"two_factor_recovery_codes": digest},
		"$set":  bson.M{"updated_at": r.now()},
	})
}

func (r *MongoAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"is_active": active, "updated_at": r.now()}})
}

func (r *MongoAccountRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"role": string(role), "updated_at": r.now()}})
}

func (r *MongoAccountRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	result, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return database.MapMongoError(err)
	}

	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *MongoAccountRepository) conditional(ctx context.Context, filter, update bson.M) (bool, error) {
	result, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, database.MapMongoError(err)
	}
	return result.MatchedCount == 1, nil
}
