package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedEmail("alice@example.com"))
	assert.Equal(t, "a@*.com", SanitizedEmail("a@x.com"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.True(t, SanitizeQueryString("Password=x"))
	assert.False(t, SanitizeQueryString("page=2&limit=10"))
}

func TestAuditLogger_LogLogin(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	al.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	al.LogLogin(context.Background(), "acc-1", "alice@example.com", false, "invalid_credentials")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "audit", rec["msg"])
	assert.Equal(t, EventLogin, rec["event_type"])
	assert.Equal(t, "acc-1", rec["account_id"])
	assert.Equal(t, "a****@*******.com", rec["email"])
	assert.Equal(t, "invalid_credentials", rec["failure_reason"])
	assert.Equal(t, "2026-01-02T03:04:05Z", rec["timestamp"])
	assert.NotContains(t, buf.String(), "alice@example.com")
}

func TestAuditLogger_LogLockout(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	until := time.Date(2026, 1, 2, 3, 34, 5, 0, time.UTC)
	al.LogLockout(context.Background(), "acc-1", until)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, EventLockout, rec["event_type"])
	assert.Equal(t, "2026-01-02T03:34:05Z", rec["lock_until"])
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	var al *AuditLogger
	assert.NotPanics(t, func() { al.LogAccountAction(context.Background(), EventPasswordReset, "acc", nil) })
}

func TestAuditLogger_ClientIPFromContext(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := WithClientIP(context.Background(), "198.51.100.7")
	al.LogAccountAction(ctx, EventTwoFactorEnabled, "acc-1", nil)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "198.51.100.7", rec["ip_address"])
	assert.Empty(t, ClientIPFromContext(context.Background()))
}
