package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	pkgauth "github.com/payward/payward/pkg/auth"
	pkglogger "github.com/payward/payward/pkg/logger"
)

// ThrottleGate is the login throttling contract consumed by AuthService.
// Implemented by ThrottleService.
type ThrottleGate interface {
	CheckAdmission(ctx context.Context, ip, device, email string) error
	RecordFailure(ctx context.Context, ip, device, email string, user *models.User) error
	CheckAccountLock(ctx context.Context, user *models.User) error
	ClearOnSuccess(ctx context.Context, ip, device, email, userID string) error
}

// AuthService handles registration, login, and credential recovery
type AuthService struct {
	repo        UserRepository
	throttle    ThrottleGate
	tm          *auth.TokenManager
	otp         *auth.OTPManager
	email       EmailService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	otpValidity time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(repo UserRepository, throttle ThrottleGate, tm *auth.TokenManager, otp *auth.OTPManager, email EmailService, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, otpValidity time.Duration) *AuthService {
	return &AuthService{
		repo:        repo,
		throttle:    throttle,
		tm:          tm,
		otp:         otp,
		email:       email,
		logger:      logger,
		auditLogger: auditLogger,
		otpValidity: otpValidity,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Name             string  `json:"name"`
	Role             string  `json:"role"`
	Verified         bool    `json:"verified"`
	Subscribed       bool    `json:"subscribed"`
	SubscriptionPlan *string `json:"subscription_plan,omitempty"`
	WalletBalance    int64   `json:"wallet_balance_cents"`
	Currency         string  `json:"currency"`
	CreatedAt        string  `json:"created_at"`
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	User        *UserResponse `json:"user"`
}

// Login runs the throttled authentication sequence. The stages are evaluated
// in strict order and each rejection is terminal for the attempt:
//
//  1. admission: a blocked (ip, device, email) tuple is rejected before any
//     password work, with the remaining wait in whole minutes
//  2. credential verification: mismatch and unknown email both record a
//     failure against the counters and return the same generic rejection
//  3. account lock: consulted only after the password matched
//  4. entitlement: unverified or unsubscribed accounts are rejected
//  5. success: counters cleared broadly, security state reset, token issued
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrInvalidCredentials
	}
	device := DeviceFingerprint(ipAddress, userAgent)

	if err := s.throttle.CheckAdmission(ctx, ipAddress, device, email); err != nil {
		if errors.Is(err, models.ErrRateLimited) {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     ipAddress,
				Device:        device,
				FailureReason: "rate_limited",
			})
		}
		return nil, err
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, errors.Join(models.ErrInfrastructure, err)
	}

	if user == nil || pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		if recordErr := s.throttle.RecordFailure(ctx, ipAddress, device, email, user); recordErr != nil {
			return nil, recordErr
		}
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			Device:        device,
			FailureReason: "invalid_credentials",
		})
		return nil, models.ErrInvalidCredentials
	}

	if err := s.throttle.CheckAccountLock(ctx, user); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				UserID:        user.ID,
				IPAddress:     ipAddress,
				Device:        device,
				FailureReason: "account_locked",
			})
		}
		return nil, err
	}

	if !user.Verified {
		s.logger.Info("login blocked: email not verified", slog.String("user_id", user.ID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			Device:        device,
			FailureReason: "unverified",
		})
		return nil, models.ErrUnverified
	}

	// Staff accounts are not customers and carry no subscription.
	if !user.IsStaff() && !user.HasActiveSubscription() {
		s.logger.Info("login blocked: no active subscription", slog.String("user_id", user.ID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			Device:        device,
			FailureReason: "subscription_required",
		})
		return nil, models.ErrSubscriptionRequired
	}

	if err := s.throttle.ClearOnSuccess(ctx, ipAddress, device, email, user.ID); err != nil {
		return nil, err
	}

	accessToken, err := s.tm.Issue(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_succeeded",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Device:    device,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: accessToken,
		User:        toUserResponse(user),
	}, nil
}

// Register creates an unverified account and emails a one-time verification
// code. The account cannot log in until the code is confirmed.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := s.otp.GenerateSecret(email)
	if err != nil {
		s.logger.Error("failed to generate otp secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	expiresAt := time.Now().Add(s.otpValidity)

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         models.RoleUser,
		Verified:     false,
		OTPSecret:    secret,
		OTPExpiresAt: &expiresAt,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration with existing email")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, err
	}

	code, err := s.otp.Code(secret)
	if err != nil {
		s.logger.Error("failed to derive otp code", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.email.SendVerificationCode(ctx, user.Email, code, expiresAt); err != nil {
		// The account exists; the user can request a fresh code.
		s.logger.Error("failed to send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("user_registered", user.ID, "", nil)

	return toUserResponse(user), nil
}

// VerifyEmail confirms the one-time code from the registration email and
// marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrCodeInvalid
		}
		return err
	}
	if user.Verified {
		return nil
	}

	if user.OTPSecret == "" || user.OTPExpiresAt == nil || user.OTPExpiresAt.Before(time.Now()) {
		return models.ErrCodeInvalid
	}
	if !s.otp.Validate(code, user.OTPSecret) {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "verification_failed",
			UserID:        user.ID,
			FailureReason: "code_invalid",
		})
		return models.ErrCodeInvalid
	}

	if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
		s.logger.Error("failed to mark user verified", slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}

	s.logger.Info("email verified", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("email_verified", user.ID, "", nil)
	return nil
}

// ResendVerification issues a fresh code for an unverified account. Always
// reports success to the caller so the endpoint cannot confirm which emails
// have accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.Verified {
		return nil
	}

	secret, err := s.otp.GenerateSecret(email)
	if err != nil {
		return models.ErrInternalServer
	}
	expiresAt := time.Now().Add(s.otpValidity)

	if err := s.repo.SetOTPSecret(ctx, user.ID, secret, expiresAt); err != nil {
		return err
	}

	code, err := s.otp.Code(secret)
	if err != nil {
		return models.ErrInternalServer
	}
	return s.email.SendVerificationCode(ctx, user.Email, code, expiresAt)
}

// ForgotPassword emails a one-time reset code. Like ResendVerification it
// never reveals whether the email has an account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	secret, err := s.otp.GenerateSecret(email)
	if err != nil {
		return models.ErrInternalServer
	}
	expiresAt := time.Now().Add(s.otpValidity)

	if err := s.repo.SetResetSecret(ctx, user.ID, secret, expiresAt); err != nil {
		return err
	}

	code, err := s.otp.Code(secret)
	if err != nil {
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("password_reset_requested", user.ID, "", nil)
	return s.email.SendPasswordResetCode(ctx, user.Email, code, expiresAt)
}

// ResetPassword consumes a valid reset code and stores the new password.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrCodeInvalid
		}
		return err
	}

	if user.ResetSecret == "" || user.ResetExpiresAt == nil || user.ResetExpiresAt.Before(time.Now()) {
		return models.ErrCodeInvalid
	}
	if !s.otp.Validate(code, user.ResetSecret) {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "password_reset_failed",
			UserID:        user.ID,
			FailureReason: "code_invalid",
		})
		return models.ErrCodeInvalid
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("password_reset", user.ID, "", nil)
	return nil
}

func toUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             user.Role,
		Verified:         user.Verified,
		Subscribed:       user.Subscribed,
		SubscriptionPlan: user.SubscriptionPlan,
		WalletBalance:    user.WalletBalanceCents,
		Currency:         user.Currency,
		CreatedAt:        user.CreatedAt.Format(time.RFC3339),
	}
}
