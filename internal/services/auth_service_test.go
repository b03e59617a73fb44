package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payward/payward/internal/auth"
	"github.com/payward/payward/internal/models"
	pkgauth "github.com/payward/payward/pkg/auth"
	pkglogger "github.com/payward/payward/pkg/logger"
)

const testPassword = "correct-horse-battery"

var (
	testHashOnce sync.Once
	testHash     string
)

// passwordHash amortizes the bcrypt cost across the test file.
func passwordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		hash, err := pkgauth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		testHash = hash
	})
	return testHash
}

func newTestAuthService(repo UserRepository, throttle ThrottleGate, email EmailService) (*AuthService, *auth.TokenManager, *auth.OTPManager) {
	logger := testLogger()
	tm := auth.NewTokenManager("test-secret-at-least-32-characters!!!", time.Hour)
	otp := auth.NewOTPManager("payward-test", 10*time.Minute)
	if email == nil {
		email = &MockEmailService{}
	}
	svc := NewAuthService(repo, throttle, tm, otp, email, logger, pkglogger.NewAuditLogger(logger), 10*time.Minute)
	return svc, tm, otp
}

func activeUser(t *testing.T) *models.User {
	plan := models.PlanPro
	return &models.User{
		ID:               "user-1",
		Email:            "user@example.com",
		PasswordHash:     passwordHash(t),
		Name:             "Test User",
		Role:             models.RoleUser,
		Verified:         true,
		Subscribed:       true,
		SubscriptionPlan: &plan,
	}
}

func TestAuthService_Login_BlockedTupleRejectedBeforeCredentialCheck(t *testing.T) {
	lookedUp := false
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			lookedUp = true
			return nil, models.ErrNotFound
		},
	}
	throttle := &MockThrottleGate{
		CheckAdmissionFunc: func(ctx context.Context, ip, device, email string) error {
			return models.NewRetryableAuthError(models.ErrRateLimited, 12)
		},
	}
	svc, _, _ := newTestAuthService(repo, throttle, nil)

	_, err := svc.Login(context.Background(), "user@example.com", testPassword, "1.2.3.4", "test-agent")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.False(t, lookedUp, "blocked tuples must be rejected before any credential work")

	var retryable *models.RetryableAuthError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 12, retryable.RetryAfterMinutes)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	var recordedUser *models.User
	recorded := false
	throttle := &MockThrottleGate{
		RecordFailureFunc: func(ctx context.Context, ip, device, email string, user *models.User) error {
			recorded = true
			recordedUser = user
			return nil
		},
	}
	svc, _, _ := newTestAuthService(&MockUserRepository{}, throttle, nil)

	_, err := svc.Login(context.Background(), "ghost@example.com", testPassword, "1.2.3.4", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.True(t, recorded, "unknown emails still move the tuple counter")
	assert.Nil(t, recordedUser, "no account counter exists for unknown emails")
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	user := activeUser(t)
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	var recordedUser *models.User
	throttle := &MockThrottleGate{
		RecordFailureFunc: func(ctx context.Context, ip, device, email string, u *models.User) error {
			recordedUser = u
			return nil
		},
	}
	svc, _, _ := newTestAuthService(repo, throttle, nil)

	_, err := svc.Login(context.Background(), user.Email, "not-the-password", "1.2.3.4", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	require.NotNil(t, recordedUser, "failures for existing accounts move the account counter")
	assert.Equal(t, user.ID, recordedUser.ID)
}

// The account counter at 19 admits a correct password; at 20 it locks even
// though the password matched.
func TestAuthService_Login_AccountCounterBoundary(t *testing.T) {
	t.Run("19 succeeds and resets", func(t *testing.T) {
		user := activeUser(t)
		user.LoginAttempts = 19
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		}
		reset := false
		repo.ResetSecurityStateFunc = func(ctx context.Context, id string) error {
			reset = true
			return nil
		}
		throttleRepo := &MockLoginAttemptRepository{}
		gate := NewThrottleService(throttleRepo, repo, testThrottleConfig(), testLogger())
		svc, tm, _ := newTestAuthService(repo, gate, nil)

		resp, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
		require.NoError(t, err)
		assert.True(t, reset, "success resets the account counter")

		claims, err := tm.Verify(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("20 locks on correct password", func(t *testing.T) {
		user := activeUser(t)
		user.LoginAttempts = 20
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		}
		var lockedUntil time.Time
		repo.LockAccountFunc = func(ctx context.Context, id string, until time.Time) error {
			lockedUntil = until
			return nil
		}
		gate := NewThrottleService(&MockLoginAttemptRepository{}, repo, testThrottleConfig(), testLogger())
		svc, _, _ := newTestAuthService(repo, gate, nil)

		_, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
		assert.ErrorIs(t, err, models.ErrAccountLocked)
		assert.WithinDuration(t, time.Now().Add(60*time.Minute), lockedUntil, 5*time.Second)
	})
}

func TestAuthService_Login_Unverified(t *testing.T) {
	user := activeUser(t)
	user.Verified = false
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, nil)

	_, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
	assert.ErrorIs(t, err, models.ErrUnverified)
}

func TestAuthService_Login_SubscriptionRequired(t *testing.T) {
	t.Run("never subscribed", func(t *testing.T) {
		user := activeUser(t)
		user.Subscribed = false
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		}
		svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, nil)

		_, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
		assert.ErrorIs(t, err, models.ErrSubscriptionRequired)
	})

	t.Run("lapsed period", func(t *testing.T) {
		user := activeUser(t)
		endsAt := time.Now().Add(-24 * time.Hour)
		user.SubscriptionEndsAt = &endsAt
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		}
		svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, nil)

		_, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
		assert.ErrorIs(t, err, models.ErrSubscriptionRequired)
	})

	t.Run("admin exempt", func(t *testing.T) {
		user := activeUser(t)
		user.Role = models.RoleAdmin
		user.Subscribed = false
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
		}
		svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, nil)

		resp, err := svc.Login(context.Background(), user.Email, testPassword, "1.2.3.4", "test-agent")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
	})
}

func TestAuthService_Login_Success_ClearsBroadly(t *testing.T) {
	user := activeUser(t)
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	var clearedIP, clearedDevice, clearedEmail string
	throttle := &MockThrottleGate{
		ClearOnSuccessFunc: func(ctx context.Context, ip, device, email, userID string) error {
			clearedIP, clearedDevice, clearedEmail = ip, device, email
			return nil
		},
	}
	svc, _, _ := newTestAuthService(repo, throttle, nil)

	resp, err := svc.Login(context.Background(), "User@Example.com ", testPassword, "1.2.3.4", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, user.Email, resp.User.Email)

	assert.Equal(t, "1.2.3.4", clearedIP)
	assert.Equal(t, DeviceFingerprint("1.2.3.4", "test-agent"), clearedDevice)
	assert.Equal(t, "user@example.com", clearedEmail, "email is normalized before throttling")
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, nil)

	_, err := svc.Register(context.Background(), "user@example.com", testPassword, "Test User")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(&MockUserRepository{}, &MockThrottleGate{}, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "short", "Test User")
	assert.Error(t, err)
}

func TestAuthService_Register_EmailsValidCode(t *testing.T) {
	var created *models.User
	repo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user-1"
			created = user
			return user, nil
		},
	}
	var sentCode string
	email := &MockEmailService{
		SendVerificationCodeFunc: func(ctx context.Context, to, code string, expiresAt time.Time) error {
			sentCode = code
			return nil
		},
	}
	svc, _, otp := newTestAuthService(repo, &MockThrottleGate{}, email)

	resp, err := svc.Register(context.Background(), "User@Example.com", testPassword, "Test User")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", resp.Email)
	assert.False(t, resp.Verified)

	require.NotNil(t, created)
	assert.NotEmpty(t, created.OTPSecret)
	require.NotEmpty(t, sentCode)
	assert.True(t, otp.Validate(sentCode, created.OTPSecret), "the emailed code must verify against the stored secret")
}

func TestAuthService_VerifyEmail(t *testing.T) {
	svcFor := func(user *models.User, verified *bool) (*AuthService, *auth.OTPManager) {
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return user, nil
			},
			MarkVerifiedFunc: func(ctx context.Context, id string) error {
				*verified = true
				return nil
			},
		}
		svc, _, otp := newTestAuthService(repo, &MockThrottleGate{}, nil)
		return svc, otp
	}

	t.Run("valid code", func(t *testing.T) {
		user := activeUser(t)
		user.Verified = false
		var marked bool
		svc, otp := svcFor(user, &marked)

		secret, err := otp.GenerateSecret(user.Email)
		require.NoError(t, err)
		expiresAt := time.Now().Add(10 * time.Minute)
		user.OTPSecret = secret
		user.OTPExpiresAt = &expiresAt

		code, err := otp.Code(secret)
		require.NoError(t, err)

		require.NoError(t, svc.VerifyEmail(context.Background(), user.Email, code))
		assert.True(t, marked)
	})

	t.Run("wrong code", func(t *testing.T) {
		user := activeUser(t)
		user.Verified = false
		var marked bool
		svc, otp := svcFor(user, &marked)

		secret, err := otp.GenerateSecret(user.Email)
		require.NoError(t, err)
		expiresAt := time.Now().Add(10 * time.Minute)
		user.OTPSecret = secret
		user.OTPExpiresAt = &expiresAt

		err = svc.VerifyEmail(context.Background(), user.Email, "000000")
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
		assert.False(t, marked)
	})

	t.Run("expired code", func(t *testing.T) {
		user := activeUser(t)
		user.Verified = false
		var marked bool
		svc, otp := svcFor(user, &marked)

		secret, err := otp.GenerateSecret(user.Email)
		require.NoError(t, err)
		expiresAt := time.Now().Add(-time.Minute)
		user.OTPSecret = secret
		user.OTPExpiresAt = &expiresAt

		code, err := otp.Code(secret)
		require.NoError(t, err)

		err = svc.VerifyEmail(context.Background(), user.Email, code)
		assert.ErrorIs(t, err, models.ErrCodeInvalid)
		assert.False(t, marked)
	})
}

func TestAuthService_ForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	sent := false
	email := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, to, code string, expiresAt time.Time) error {
			sent = true
			return nil
		},
	}
	svc, _, _ := newTestAuthService(&MockUserRepository{}, &MockThrottleGate{}, email)

	err := svc.ForgotPassword(context.Background(), "ghost@example.com")
	assert.NoError(t, err, "unknown emails must not be distinguishable")
	assert.False(t, sent)
}

func TestAuthService_ResetPassword(t *testing.T) {
	user := activeUser(t)
	var storedSecret string
	var updatedHash string
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		SetResetSecretFunc: func(ctx context.Context, id, secret string, expiresAt time.Time) error {
			storedSecret = secret
			user.ResetSecret = secret
			user.ResetExpiresAt = &expiresAt
			return nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
			updatedHash = passwordHash
			return nil
		},
	}
	var sentCode string
	email := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, to, code string, expiresAt time.Time) error {
			sentCode = code
			return nil
		},
	}
	svc, _, _ := newTestAuthService(repo, &MockThrottleGate{}, email)

	require.NoError(t, svc.ForgotPassword(context.Background(), user.Email))
	require.NotEmpty(t, storedSecret)
	require.NotEmpty(t, sentCode)

	err := svc.ResetPassword(context.Background(), user.Email, "999999", "brand-new-password-1")
	assert.ErrorIs(t, err, models.ErrCodeInvalid, "a wrong code must not reset the password")

	require.NoError(t, svc.ResetPassword(context.Background(), user.Email, sentCode, "brand-new-password-1"))
	require.NotEmpty(t, updatedHash)
	assert.NoError(t, pkgauth.ComparePassword(updatedHash, "brand-new-password-1"))
}
