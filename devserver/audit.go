package devserver

import (
	"log/slog"
	"net/http"
)

// AuditEvent names a security-relevant action on the dev server.
type AuditEvent string

const (
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLink             AuditEvent = "link"
	AuditLinkFailure      AuditEvent = "link_failure"
	AuditRegister         AuditEvent = "register"
	AuditSessionRefreshed AuditEvent = "session_refreshed"
	AuditSessionRevoked   AuditEvent = "session_revoked"
	AuditFunctionCalled   AuditEvent = "function_called"
)

type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "audit")}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, userID string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if userID != "" {
		base = append(base, slog.String("user_id", userID))
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", append(base, attrs...)...)
}

func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("reason", reason),
	}
	al.logger.LogAttrs(r.Context(), slog.LevelWarn, "audit", append(base, attrs...)...)
}
