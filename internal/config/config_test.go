package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-32-characters-long!")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-32-characters-long")
	t.Setenv("TOTP_ENCRYPTION_KEY", testEncryptionKey)
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)

	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockDuration)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 10*time.Minute, cfg.Auth.PasswordResetExpiry)
	assert.Equal(t, 24*time.Hour, cfg.Auth.EmailVerificationExpiry)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 10, cfg.Auth.RecoveryCodeCount)
	assert.Len(t, cfg.Auth.TOTPEncryptionKey, 32)
}

func TestLoad_CustomPolicy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCK_DURATION", "1h")
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,172.16.0.0/12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, time.Hour, cfg.Auth.LockDuration)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "invalid durations fall back to the default")
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
}

func TestLoad_MongoDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGO_URI")

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "accounts", cfg.Mongo.Collection)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing access secret", map[string]string{"JWT_ACCESS_SECRET": ""}, "JWT_ACCESS_SECRET is required"},
		{"short refresh secret", map[string]string{"JWT_REFRESH_SECRET": "short"}, "at least 16"},
		{"weak secret", map[string]string{"JWT_ACCESS_SECRET": "changeme"}, "JWT_ACCESS_SECRET"},
		{"identical secrets", map[string]string{"JWT_REFRESH_SECRET": "access-secret-32-characters-long!"}, "must differ"},
		{"production length", map[string]string{"ENV": "production", "JWT_ACCESS_SECRET": "only-twenty-chars!!!"}, "at least 32"},
		{"missing totp key", map[string]string{"TOTP_ENCRYPTION_KEY": ""}, "TOTP_ENCRYPTION_KEY is required"},
		{"short totp key", map[string]string{"TOTP_ENCRYPTION_KEY": "abcd"}, "32 bytes"},
		{"non-hex totp key", map[string]string{"TOTP_ENCRYPTION_KEY": strings.Repeat("z", 64)}, "hex"},
		{"missing db password", map[string]string{"DB_PASSWORD": ""}, "DB_PASSWORD"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"zero attempts", map[string]string{"MAX_LOGIN_ATTEMPTS": "0"}, "MAX_LOGIN_ATTEMPTS"},
		{"bcrypt cost", map[string]string{"BCRYPT_COST": "40"}, "BCRYPT_COST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
