package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/config"
	"github.com/BradenHooton/scholar/internal/database"
	"github.com/BradenHooton/scholar/internal/handlers"
	middlewareCustom "github.com/BradenHooton/scholar/internal/middleware"
	"github.com/BradenHooton/scholar/internal/models"
	"github.com/BradenHooton/scholar/internal/repositories"
	"github.com/BradenHooton/scholar/internal/routes"
	"github.com/BradenHooton/scholar/internal/services"
	pkgauth "github.com/BradenHooton/scholar/pkg/auth"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
	pkglogger "github.com/BradenHooton/scholar/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// store is the selected account backend together with its lifecycle hooks
type store struct {
	repo        services.AccountRepository
	healthCheck handlers.HealthChecker
	close       func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Driver))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open account store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()

	// Credential store and token issuer
	hasher, err := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize password hasher", slog.Any("error", err))
		os.Exit(1)
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTokenExpiry,
		RefreshTTL:    cfg.Auth.RefreshTokenExpiry,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		logger.Error("failed to initialize token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingDelayBase,
		RandomDelay: cfg.Auth.TimingDelayRandom,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService, err := newEmailService(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	policy := services.AccountPolicy{
		MaxLoginAttempts:     cfg.Auth.MaxLoginAttempts,
		LockDuration:         cfg.Auth.LockDuration,
		PasswordResetTTL:     cfg.Auth.PasswordResetExpiry,
		EmailVerificationTTL: cfg.Auth.EmailVerificationExpiry,
		RecoveryCodeCount:    cfg.Auth.RecoveryCodeCount,
		PasswordChangeSkew:   services.DefaultAccountPolicy().PasswordChangeSkew,
	}

	// Initialize services
	verificationService := services.NewEmailVerificationService(st.repo, emailService, policy, logger, auditLogger)
	authService := services.NewAuthService(st.repo, tokenIssuer, hasher, policy, verificationService, timingDelay, logger, auditLogger)
	resetService := services.NewPasswordResetService(st.repo, hasher, emailService, policy, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(st.repo, totpManager, tokenIssuer, hasher, policy, logger, auditLogger)
	accountService := services.NewAccountService(st.repo, logger, auditLogger)

	// Bootstrap first admin account if configured
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, cfg.Admin, st.repo, hasher, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.ClientIP(ipConfig))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, resetService, verificationService, logger),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, logger),
		Accounts:  handlers.NewAccountHandler(accountService, logger),
		Health:    handlers.NewHealthHandler(st.healthCheck, logger),
	}, tokenIssuer, st.repo, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Server.AuthRateLimit,
		IPConfig:          ipConfig,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// openStore connects the configured backend and prepares its schema
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		mdb, err := database.ConnectMongo(ctx, &cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		repo := repositories.NewMongoAccountRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = mdb.Close(context.Background())
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return &store{
			repo:        repo,
			healthCheck: mdb,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := mdb.Close(closeCtx); err != nil {
					logger.Error("failed to close mongo client", slog.Any("error", err))
				}
			},
		}, nil
	default:
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &store{
			repo:        repositories.NewPostgresAccountRepository(db),
			healthCheck: db,
			close:       db.Close,
		}, nil
	}
}

// newEmailService uses SES when a region is configured and logs deliveries otherwise
func newEmailService(cfg config.EmailConfig, logger *slog.Logger) (services.EmailService, error) {
	if cfg.AWSRegion == "" {
		logger.Warn("AWS_REGION not set, emails will be logged instead of sent")
		return services.NewLogEmailService(logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.FromAddress, cfg.AppURL, logger)
}

// ensureAdminAccount creates the first admin account if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, cfg config.AdminConfig, repo services.AccountRepository, hasher *pkgauth.Hasher, logger *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	email := models.NormalizeEmail(cfg.Email)
	_, err := repo.GetByEmailForAuth(ctx, email)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(cfg.Password); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := models.NewAccount(email, "Admin", hash, models.RoleAdmin, time.Now().Add(-time.Second))
	admin.IsVerified = true

	if _, err := repo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
