package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/background"
	"github.com/payward/payward/internal/billing"
	"github.com/payward/payward/internal/config"
	"github.com/payward/payward/internal/database"
	"github.com/payward/payward/internal/handlers"
	"github.com/payward/payward/internal/middleware"
	"github.com/payward/payward/internal/models"
	"github.com/payward/payward/internal/pdf"
	"github.com/payward/payward/internal/repositories"
	"github.com/payward/payward/internal/routes"
	"github.com/payward/payward/internal/services"
	pkgauth "github.com/payward/payward/pkg/auth"
	pkghttp "github.com/payward/payward/pkg/http"
	pkglogger "github.com/payward/payward/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	cardRepo := repositories.NewCardRepository(db)

	// Shared infrastructure
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	otpManager := auth.NewOTPManager("payward", cfg.Auth.OTPValidity)

	emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	billingProvider := billing.NewStripeProvider(cfg.Billing.SecretKey, cfg.Billing.WebhookSecret, logger)

	// Services
	throttleService := services.NewThrottleService(attemptRepo, userRepo, services.ThrottleConfig{
		DeviceMaxAttempts:   cfg.Throttle.DeviceMaxAttempts,
		DeviceBlockDuration: cfg.Throttle.DeviceBlockDuration,
		AccountMaxAttempts:  cfg.Throttle.AccountMaxAttempts,
		AccountLockDuration: cfg.Throttle.AccountLockDuration,
	}, logger)
	authService := services.NewAuthService(userRepo, throttleService, tokenManager, otpManager,
		emailService, logger, auditLogger, cfg.Auth.OTPValidity)
	userService := services.NewUserService(userRepo, logger)
	subscriptionService := services.NewSubscriptionService(userRepo, transactionRepo, cardRepo,
		billingProvider, cfg.Billing.PlanPrices, logger, auditLogger)
	transactionService := services.NewTransactionService(userRepo, transactionRepo, db,
		billingProvider, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, attemptRepo, transactionRepo, logger, auditLogger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	statementGenerator := pdf.NewDocumentGenerator("Payward")
	apiHandlers := routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, ipConfig),
		User:         handlers.NewUserHandler(userService),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService),
		Transaction:  handlers.NewTransactionHandler(transactionService, statementGenerator),
		Webhook:      handlers.NewWebhookHandler(subscriptionService),
		Admin:        handlers.NewAdminHandler(adminService, userService, subscriptionService),
	}

	// Bootstrap first admin account if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootCancel()

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, apiHandlers, tokenManager, userRepo)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupManager := background.NewCleanupManager(attemptRepo, userRepo, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin account when ADMIN_EMAIL and
// ADMIN_PASSWORD are set. The account is created verified and unsubscribed;
// the subscription entitlement check does not apply to administrators.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
		Verified:     true,
		Currency:     "USD",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
