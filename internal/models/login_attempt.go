package models

import "time"

// LoginAttempt is the failure counter for one (ip, device, email) tuple.
// One row per tuple; created on the first failed login and incremented on
// every subsequent failure for the same tuple. BlockedUntil is set when the
// device threshold is reached and holds until it elapses; failures inside
// the window never extend it, and failures after it re-arm a new window.
type LoginAttempt struct {
	ID                string     `db:"id"`
	IPAddress         string     `db:"ip_address"`
	DeviceFingerprint string     `db:"device_fingerprint"`
	Email             string     `db:"email"`
	AttemptCount      int        `db:"attempt_count"`
	LastAttemptAt     time.Time  `db:"last_attempt_at"`
	BlockedUntil      *time.Time `db:"blocked_until"`
}

// Blocked reports whether the tuple is inside its block window at t.
func (a *LoginAttempt) Blocked(t time.Time) bool {
	return a.BlockedUntil != nil && a.BlockedUntil.After(t)
}

// BlockedMinutes returns the whole minutes remaining in the block window,
// rounded up. Zero when the tuple is not blocked at t.
func (a *LoginAttempt) BlockedMinutes(t time.Time) int {
	if !a.Blocked(t) {
		return 0
	}
	remaining := a.BlockedUntil.Sub(t)
	minutes := int(remaining / time.Minute)
	if remaining%time.Minute != 0 {
		minutes++
	}
	return minutes
}
