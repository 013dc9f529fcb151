package authcore

import (
	"context"

	internalaudit "github.com/flowforward/authcore/internal/audit"
)

// Audit event types emitted by the engine. Replay escalation is visible
// here and in metrics, never in API error values.
const (
	AuditLoginSuccess   = "login.success"
	AuditLoginFailure   = "login.failure"
	AuditRefreshSuccess = "refresh.success"
	AuditRefreshInvalid = "refresh.invalid"
	AuditRefreshExpired = "refresh.expired"
	AuditReplayDetected = "refresh.replay_detected"
	AuditLogout         = "logout.session"
	AuditLogoutAll      = "logout.all"
)

type auditFields struct {
	subjectID string
	familyID  string
	tokenID   string
	success   bool
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, f auditFields) {
	if e.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		SubjectID: f.subjectID,
		FamilyID:  f.familyID,
		TokenID:   f.tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   f.success,
		Metadata:  f.metadata,
	}
	if f.err != nil {
		event.Error = f.err.Error()
	}

	e.audit.Emit(ctx, event)
}
