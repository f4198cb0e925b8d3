package auth

import (
	"context"
	"log/slog"
)

// AuditEvent identifies an authentication state transition.
type AuditEvent string

const (
	AuditLogin            AuditEvent = "login"
	AuditRelogin          AuditEvent = "relogin"
	AuditSessionReused    AuditEvent = "session_reused"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLink             AuditEvent = "link"
	AuditLinkFailure      AuditEvent = "link_failure"
	AuditLogout           AuditEvent = "logout"
	AuditSwitch           AuditEvent = "switch"
	AuditRemove           AuditEvent = "remove"
	AuditRefresh          AuditEvent = "refresh"
	AuditRefreshFailure   AuditEvent = "refresh_failure"
	AuditInvalidateFailed AuditEvent = "invalidate_failed"
)

// auditLogger writes one structured entry per transition. Tokens never reach
// the log; user ids and provider types do.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "auth")}
}

func (al *auditLogger) log(ctx context.Context, event AuditEvent, userID string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("user_id", userID),
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "auth", append(base, attrs...)...)
}

func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, userID string, err error, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "auth", append(base, attrs...)...)
}

func providerAttrs(cred Credential) []slog.Attr {
	return []slog.Attr{
		slog.String("provider_type", cred.ProviderType()),
		slog.String("provider_name", cred.ProviderName()),
	}
}
