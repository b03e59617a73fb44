package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-development-secret")
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_PASSWORD")
}

func TestLoad_ThrottleDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-development-secret")
	t.Setenv("DB_PASSWORD", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Throttle.DeviceMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Throttle.DeviceBlockDuration)
	assert.Equal(t, 20, cfg.Throttle.AccountMaxAttempts)
	assert.Equal(t, 60*time.Minute, cfg.Throttle.AccountLockDuration)
}

func TestLoad_AccountThresholdMustExceedDevice(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-development-secret")
	t.Setenv("DB_PASSWORD", "postgres")
	t.Setenv("THROTTLE_DEVICE_MAX_ATTEMPTS", "20")
	t.Setenv("THROTTLE_ACCOUNT_MAX_ATTEMPTS", "10")

	_, err := Load()
	assert.ErrorContains(t, err, "must exceed")
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		env     string
		wantErr bool
	}{
		{"dev minimum ok", "sixteen-chars-ok", "development", false},
		{"dev too short", "short", "development", true},
		{"prod needs 32", "sixteen-chars-ok", "production", true},
		{"prod ok", "this-secret-is-definitely-32-chars!", "production", false},
		{"weak value", "changeme", "development", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
