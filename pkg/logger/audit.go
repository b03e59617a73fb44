package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditLogger emits structured security events. Every login rejection kind
// (rate_limited, invalid_credentials, account_locked, subscription_required)
// is recorded distinctly here even when the client sees a generic message.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// AuditEvent is a single security-relevant occurrence
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	Device        string
	FailureReason string
	Success       bool
}

// LogAuthAttempt records login and verification outcomes
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.Device != "" {
		attrs = append(attrs, slog.String("device_fingerprint", event.Device))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction records non-login account events (locks, resets, admin ops)
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// LogBillingEvent records billing provider webhook handling
func (al *AuditLogger) LogBillingEvent(eventType, reference string, handled bool) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "billing"),
		slog.String("event_type", eventType),
		slog.String("reference", reference),
		slog.Bool("handled", handled),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
