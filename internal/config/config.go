package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Auth     AuthConfig
	Email    EmailConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	// AuthRateLimit is the per-IP request budget per minute on credential endpoints
	AuthRateLimit int
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type AuthConfig struct {
	AccessSecret            string
	RefreshSecret           string
	TOTPEncryptionKey       []byte
	Issuer                  string
	AccessTokenExpiry       time.Duration
	RefreshTokenExpiry      time.Duration
	PasswordResetExpiry     time.Duration
	EmailVerificationExpiry time.Duration
	MaxLoginAttempts        int
	LockDuration            time.Duration
	BcryptCost              int
	RecoveryCodeCount       int
	TimingDelayBase         time.Duration
	TimingDelayRandom       time.Duration
}

// EmailConfig configures SES delivery. An empty AWSRegion disables sending.
type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	AppURL      string
}

// AdminConfig seeds the first admin account when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "scholar"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", ""),
			Database:   getEnv("MONGO_DATABASE", "scholar"),
			Collection: getEnv("MONGO_COLLECTION", "accounts"),
		},
		Auth: AuthConfig{
			AccessSecret:            getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:           getEnv("JWT_REFRESH_SECRET", ""),
			Issuer:                  getEnv("JWT_ISSUER", "scholar"),
			AccessTokenExpiry:       getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:      getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			PasswordResetExpiry:     getEnvAsDuration("PASSWORD_RESET_EXPIRY", 10*time.Minute),
			EmailVerificationExpiry: getEnvAsDuration("EMAIL_VERIFICATION_EXPIRY", 24*time.Hour),
			MaxLoginAttempts:        getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockDuration:            getEnvAsDuration("LOCK_DURATION", 30*time.Minute),
			BcryptCost:              getEnvAsInt("BCRYPT_COST", 12),
			RecoveryCodeCount:       getEnvAsInt("RECOVERY_CODE_COUNT", 10),
			TimingDelayBase:         getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayRandom:       getEnvAsDuration("TIMING_DELAY_RANDOM", 50*time.Millisecond),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@scholar.local"),
			AppURL:      strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case DriverMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMongo, cfg.Store.Driver)
	}

	if err := validateSecret("JWT_ACCESS_SECRET", cfg.Auth.AccessSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("JWT_REFRESH_SECRET", cfg.Auth.RefreshSecret, env); err != nil {
		return nil, err
	}
	if cfg.Auth.AccessSecret == cfg.Auth.RefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	key, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	cfg.Auth.TOTPEncryptionKey = key

	if err := cfg.Auth.validatePolicy(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (a *AuthConfig) validatePolicy() error {
	switch {
	case a.MaxLoginAttempts < 1:
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	case a.LockDuration <= 0:
		return fmt.Errorf("LOCK_DURATION must be positive")
	case a.AccessTokenExpiry <= 0 || a.RefreshTokenExpiry <= 0:
		return fmt.Errorf("token expiries must be positive")
	case a.PasswordResetExpiry <= 0 || a.EmailVerificationExpiry <= 0:
		return fmt.Errorf("one-time token expiries must be positive")
	case a.BcryptCost < 4 || a.BcryptCost > 31:
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	case a.RecoveryCodeCount < 1:
		return fmt.Errorf("RECOVERY_CODE_COUNT must be at least 1")
	}
	return nil
}

// validateSecret enforces minimum security standards for signing secrets
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// parseEncryptionKey decodes a hex-encoded AES-256 key
func parseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}

	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		origins := getEnvAsList("ALLOWED_ORIGINS")
		if origins == nil {
			return []string{}
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
