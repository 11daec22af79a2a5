package credgate

import (
	"context"
	"errors"
	"time"

	"github.com/ohgun/credgate/internal/audit"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRateLimited = "refresh_rate_limited"
	auditEventRefreshReplay      = "refresh_replay_detected"
	auditEventRefreshUnknown     = "refresh_unknown"
	auditEventRefreshOwnerGone   = "refresh_owner_not_found"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventLogout             = "logout"
	auditEventRevokeAll          = "revoke_all"
)

// AuditErrorCode is the stable error string written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredential AuditErrorCode = "invalid_credential"
	auditErrReplay            AuditErrorCode = "replay_detected"
	auditErrUnknown           AuditErrorCode = "unknown_credential"
	auditErrOwnerNotFound     AuditErrorCode = "owner_not_found"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		TokenID:   tokenID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// detail carries the underlying cause into audit metadata only.
func detail(err error) func() map[string]string {
	if err == nil {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"detail": err.Error()}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrReplayDetected):
		return auditErrReplay
	case errors.Is(err, ErrUnknownCredential):
		return auditErrUnknown
	case errors.Is(err, ErrOwnerNotFound):
		return auditErrOwnerNotFound
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
