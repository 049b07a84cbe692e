package logger

import (
	"context"
	"log/slog"
	"time"
)

// GuardAuditEvent describes a brute-force guard event for the audit log
type GuardAuditEvent struct {
	EventType    string
	IPAddress    string
	Account      string
	Reason       string
	BlockedUntil *time.Time
	Metadata     map[string]string
}

// DecisionAuditEvent describes a rendered security decision
type DecisionAuditEvent struct {
	IPAddress   string
	Disposition string
	Reason      string
	RiskLevel   string
	Path        string
	Method      string
	Fingerprint string
}

// SecurityAuditLogger writes the immediate, structured half of the audit trail
type SecurityAuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewSecurityAuditLogger creates a new audit logger. In production account identifiers are masked.
func NewSecurityAuditLogger(logger *slog.Logger, env string) *SecurityAuditLogger {
	return &SecurityAuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogGuardEvent logs login failures, successes and escalations
func (al *SecurityAuditLogger) LogGuardEvent(ctx context.Context, event GuardAuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "login_guard"),
		slog.String("event_type", event.EventType),
		slog.String("ip_address", event.IPAddress),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Account != "" {
		attrs = append(attrs, al.accountAttr(event.Account))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.BlockedUntil != nil {
		attrs = append(attrs, slog.Time("blocked_until", *event.BlockedUntil))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if event.BlockedUntil != nil {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogDecision logs a security decision. Anything other than allow is a warning.
func (al *SecurityAuditLogger) LogDecision(ctx context.Context, event DecisionAuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "decision"),
		slog.String("ip_address", event.IPAddress),
		slog.String("disposition", event.Disposition),
		slog.String("reason", event.Reason),
		slog.String("risk_level", event.RiskLevel),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("method", event.Method))
	}
	if event.Fingerprint != "" {
		attrs = append(attrs, RedactedAttr("fingerprint", event.Fingerprint, al.env))
	}

	if event.Disposition == "allow" {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
	}
}

func (al *SecurityAuditLogger) accountAttr(account string) slog.Attr {
	if al.env == "production" {
		return slog.String("account", MaskAccount(account))
	}
	return slog.String("account", account)
}
