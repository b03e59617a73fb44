package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payward/payward/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		DeviceMaxAttempts:   10,
		DeviceBlockDuration: 30 * time.Minute,
		AccountMaxAttempts:  20,
		AccountLockDuration: 60 * time.Minute,
	}
}

func TestThrottleService_CheckAdmission_NoRecord(t *testing.T) {
	svc := NewThrottleService(&MockLoginAttemptRepository{}, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAdmission(context.Background(), "1.2.3.4", "device-a", "user@example.com")
	assert.NoError(t, err)
}

func TestThrottleService_CheckAdmission_BlockedTuple(t *testing.T) {
	blockedUntil := time.Now().Add(29*time.Minute + 30*time.Second)
	attempts := &MockLoginAttemptRepository{
		FindFunc: func(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
			return &models.LoginAttempt{
				IPAddress:         ip,
				DeviceFingerprint: device,
				Email:             email,
				AttemptCount:      10,
				BlockedUntil:      &blockedUntil,
			}, nil
		},
	}
	svc := NewThrottleService(attempts, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAdmission(context.Background(), "1.2.3.4", "device-a", "user@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimited)

	var retryable *models.RetryableAuthError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 30, retryable.RetryAfterMinutes, "partial minutes round up")
}

func TestThrottleService_CheckAdmission_ExpiredBlock(t *testing.T) {
	blockedUntil := time.Now().Add(-time.Minute)
	attempts := &MockLoginAttemptRepository{
		FindFunc: func(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
			return &models.LoginAttempt{AttemptCount: 10, BlockedUntil: &blockedUntil}, nil
		},
	}
	svc := NewThrottleService(attempts, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAdmission(context.Background(), "1.2.3.4", "device-a", "user@example.com")
	assert.NoError(t, err, "an elapsed block window admits the attempt")
}

func TestThrottleService_CheckAdmission_StoreError(t *testing.T) {
	attempts := &MockLoginAttemptRepository{
		FindFunc: func(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewThrottleService(attempts, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAdmission(context.Background(), "1.2.3.4", "device-a", "user@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInfrastructure)
	assert.NotErrorIs(t, err, models.ErrRateLimited, "store failure is not an admission decision")
}

func TestThrottleService_RecordFailure_UnknownUser(t *testing.T) {
	var gotThreshold int
	var gotBlockFor time.Duration
	attempts := &MockLoginAttemptRepository{
		RecordFailureFunc: func(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error) {
			gotThreshold = threshold
			gotBlockFor = blockFor
			return &models.LoginAttempt{AttemptCount: 1}, nil
		},
	}
	users := &MockUserRepository{
		IncrementLoginAttemptsFunc: func(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error) {
			t.Fatal("account counter must not move for unknown emails")
			return nil, nil
		},
	}
	svc := NewThrottleService(attempts, users, testThrottleConfig(), testLogger())

	err := svc.RecordFailure(context.Background(), "1.2.3.4", "device-a", "ghost@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, gotThreshold)
	assert.Equal(t, 30*time.Minute, gotBlockFor)
}

func TestThrottleService_RecordFailure_KnownUser_MovesBothCounters(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "user@example.com"}

	var incrementedID string
	var gotThreshold int
	users := &MockUserRepository{
		IncrementLoginAttemptsFunc: func(ctx context.Context, id string, threshold int, lockFor time.Duration) (*models.User, error) {
			incrementedID = id
			gotThreshold = threshold
			return &models.User{ID: id, LoginAttempts: 5}, nil
		},
	}
	svc := NewThrottleService(&MockLoginAttemptRepository{}, users, testThrottleConfig(), testLogger())

	err := svc.RecordFailure(context.Background(), "1.2.3.4", "device-a", user.Email, user)
	require.NoError(t, err)
	assert.Equal(t, "user-1", incrementedID)
	assert.Equal(t, 20, gotThreshold)
}

func TestThrottleService_CheckAccountLock_BelowThreshold(t *testing.T) {
	svc := NewThrottleService(&MockLoginAttemptRepository{}, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAccountLock(context.Background(), &models.User{ID: "user-1", LoginAttempts: 19})
	assert.NoError(t, err)
}

func TestThrottleService_CheckAccountLock_AtThreshold_LocksOnCorrectPassword(t *testing.T) {
	var lockedID string
	var lockedUntil time.Time
	users := &MockUserRepository{
		LockAccountFunc: func(ctx context.Context, id string, until time.Time) error {
			lockedID = id
			lockedUntil = until
			return nil
		},
	}
	svc := NewThrottleService(&MockLoginAttemptRepository{}, users, testThrottleConfig(), testLogger())

	err := svc.CheckAccountLock(context.Background(), &models.User{ID: "user-1", LoginAttempts: 20})
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, "user-1", lockedID)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), lockedUntil, 5*time.Second)
}

func TestThrottleService_CheckAccountLock_ActiveLock(t *testing.T) {
	lockUntil := time.Now().Add(30 * time.Minute)
	svc := NewThrottleService(&MockLoginAttemptRepository{}, &MockUserRepository{}, testThrottleConfig(), testLogger())

	err := svc.CheckAccountLock(context.Background(), &models.User{
		ID:            "user-1",
		LoginAttempts: 20,
		AccountLocked: true,
		LockUntil:     &lockUntil,
	})
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestThrottleService_CheckAccountLock_ExpiredLockClears(t *testing.T) {
	lockUntil := time.Now().Add(-time.Minute)
	var resetID string
	users := &MockUserRepository{
		ResetSecurityStateFunc: func(ctx context.Context, id string) error {
			resetID = id
			return nil
		},
	}
	svc := NewThrottleService(&MockLoginAttemptRepository{}, users, testThrottleConfig(), testLogger())

	err := svc.CheckAccountLock(context.Background(), &models.User{
		ID:            "user-1",
		LoginAttempts: 20,
		AccountLocked: true,
		LockUntil:     &lockUntil,
	})
	assert.NoError(t, err)
	assert.Equal(t, "user-1", resetID)
}

func TestThrottleService_ClearOnSuccess(t *testing.T) {
	var clearedIP, clearedDevice, clearedEmail, resetID string
	attempts := &MockLoginAttemptRepository{
		ClearFunc: func(ctx context.Context, ip, device, email string) error {
			clearedIP, clearedDevice, clearedEmail = ip, device, email
			return nil
		},
	}
	users := &MockUserRepository{
		ResetSecurityStateFunc: func(ctx context.Context, id string) error {
			resetID = id
			return nil
		},
	}
	svc := NewThrottleService(attempts, users, testThrottleConfig(), testLogger())

	err := svc.ClearOnSuccess(context.Background(), "1.2.3.4", "device-a", "user@example.com", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", clearedIP)
	assert.Equal(t, "device-a", clearedDevice)
	assert.Equal(t, "user@example.com", clearedEmail)
	assert.Equal(t, "user-1", resetID)
}

// memoryAttemptStore replicates the repository's atomic increment-or-create
// semantics in memory so concurrent counting can be exercised without a
// database.
type memoryAttemptStore struct {
	mu        sync.Mutex
	count     int
	blocked   *time.Time
	blockSets int
}

func (s *memoryAttemptStore) Find(ctx context.Context, ip, device, email string) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return nil, nil
	}
	return &models.LoginAttempt{AttemptCount: s.count, BlockedUntil: s.blocked}, nil
}

func (s *memoryAttemptStore) RecordFailure(ctx context.Context, ip, device, email string, threshold int, blockFor time.Duration) (*models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	windowActive := s.blocked != nil && s.blocked.After(time.Now())
	if s.count >= threshold && !windowActive {
		until := time.Now().Add(blockFor)
		s.blocked = &until
		s.blockSets++
	}
	return &models.LoginAttempt{AttemptCount: s.count, BlockedUntil: s.blocked}, nil
}

func (s *memoryAttemptStore) Clear(ctx context.Context, ip, device, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.blocked = nil
	return nil
}

func TestThrottleService_ConcurrentFailures_NoLostUpdates(t *testing.T) {
	store := &memoryAttemptStore{}
	svc := NewThrottleService(store, &MockUserRepository{}, testThrottleConfig(), testLogger())

	const attempts = 15
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_ = svc.RecordFailure(context.Background(), "1.2.3.4", "device-a", "user@example.com", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, attempts, store.count, "every concurrent failure must be counted")
	require.NotNil(t, store.blocked)
	assert.Equal(t, 1, store.blockSets, "the block window must start exactly once")
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *store.blocked, 5*time.Second)
}

func TestThrottleService_FailureAfterWindowExpiry_ReBlocks(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	store := &memoryAttemptStore{count: 10, blocked: &expired, blockSets: 1}
	svc := NewThrottleService(store, &MockUserRepository{}, testThrottleConfig(), testLogger())

	// The elapsed window admits the attempt, but the very next failure must
	// open a fresh one because the counter is still past the threshold.
	require.NoError(t, svc.CheckAdmission(context.Background(), "1.2.3.4", "device-a", "user@example.com"))
	_ = svc.RecordFailure(context.Background(), "1.2.3.4", "device-a", "user@example.com", nil)

	require.NotNil(t, store.blocked)
	assert.True(t, store.blocked.After(time.Now()), "a new block window must start on the first failure after expiry")
	assert.Equal(t, 2, store.blockSets)
}

func TestDeviceFingerprint(t *testing.T) {
	a := DeviceFingerprint("1.2.3.4", "Mozilla/5.0")
	b := DeviceFingerprint("1.2.3.4", "Mozilla/5.0")
	c := DeviceFingerprint("1.2.3.4", "curl/8.0")

	assert.Equal(t, a, b, "fingerprint is deterministic")
	assert.NotEqual(t, a, c, "user agent changes the fingerprint")
	assert.Len(t, a, 32)
}
