package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
)

// EmailService defines the interface for delivering one-time secrets to account owners
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// SESClient is the subset of the SES API used for delivery
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   SESClient
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESEmailService(ses.NewFromConfig(cfg), fromAddress, baseURL, logger), nil
}

func newSESEmailService(client SESClient, fromAddress, baseURL string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{
		sesClient:   client,
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// SendVerificationEmail sends the email-verification link
func (s *AWSSESEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := s.link("/verify-email", token)
	text := fmt.Sprintf(`Welcome to Scholar!

Please confirm your email address by opening the link below:

%s

This link expires at %s.
If you did not create an account, you can ignore this email.
`, link, expiresAt.UTC().Format(time.RFC1123))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>Verify your email address</h1>
  <p>Please confirm your email address to finish setting up your Scholar account.</p>
  <p><a href="%s">Verify email address</a></p>
  <p>This link expires at %s.</p>
  <p>If you did not create an account, you can ignore this email.</p>
</body>
</html>`, link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, "Verify your email address", html, text, "verification")
}

// SendPasswordResetEmail sends the password-reset link
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := s.link("/reset-password", token)
	text := fmt.Sprintf(`A password reset was requested for your Scholar account.

Open the link below to choose a new password:

%s

This link expires at %s and can be used once.
If you did not request a reset, you can ignore this email; your password is unchanged.
`, link, expiresAt.UTC().Format(time.RFC1123))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>Reset your password</h1>
  <p>A password reset was requested for your Scholar account.</p>
  <p><a href="%s">Choose a new password</a></p>
  <p>This link expires at %s and can be used once.</p>
  <p>If you did not request a reset, you can ignore this email.</p>
</body>
</html>`, link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, email, "Reset your password", html, text, "password_reset")
}

func (s *AWSSESEmailService) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.baseURL, path, url.QueryEscape(token))
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, html, text, kind string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html)},
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService records deliveries without sending them. Used when SES is not configured.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a new LogEmailService
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendVerificationEmail(ctx context.Context, email, _ string, expiresAt time.Time) error {
	s.logger.Info("email delivery disabled, verification email not sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendPasswordResetEmail(ctx context.Context, email, _ string, expiresAt time.Time) error {
	s.logger.Info("email delivery disabled, password reset email not sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("expires_at", expiresAt))
	return nil
}
