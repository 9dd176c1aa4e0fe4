package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLogin              = "login"
	EventLockout            = "lockout"
	EventPasswordChange     = "password_change"
	EventPasswordReset      = "password_reset"
	EventEmailVerification  = "email_verification"
	EventTwoFactorEnabled   = "two_factor_enabled"
	EventTwoFactorDisabled  = "two_factor_disabled"
	EventTwoFactorVerified  = "two_factor_verified"
	EventRecoveryCodeUsed   = "recovery_code_used"
	EventAccountRegistered  = "account_registered"
	EventAccountAdminChange = "account_admin_change"
)

// AuditEvent represents a security audit event. Email must already be masked.
type AuditEvent struct {
	EventType     string
	AccountID     string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured "audit" records
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log records event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	if event.IPAddress == "" {
		event.IPAddress = ClientIPFromContext(ctx)
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", event.Email))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLogin records an authentication attempt
func (al *AuditLogger) LogLogin(ctx context.Context, accountID, email string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		EventType:     EventLogin,
		AccountID:     accountID,
		Email:         SanitizedEmail(email),
		Success:       success,
		FailureReason: reason,
	})
}

// LogLockout records an account entering the locked state
func (al *AuditLogger) LogLockout(ctx context.Context, accountID string, until time.Time) {
	al.Log(ctx, AuditEvent{
		EventType: EventLockout,
		AccountID: accountID,
		Success:   false,
		Metadata:  map[string]string{"lock_until": until.UTC().Format(time.RFC3339)},
	})
}

// LogAccountAction records a successful account lifecycle event
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string) {
	al.Log(ctx, AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		Success:   true,
		Metadata:  metadata,
	})
}

type clientIPKey struct{}

// WithClientIP stores the caller's IP so audit events logged further down the
// request carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the IP stored by WithClientIP, if any
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
