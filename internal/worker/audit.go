package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/events"
)

// auditedEvents are written to the audit log.
var auditedEvents = []events.EventType{
	events.EventPrincipalRegistered,
	events.EventPrincipalLoggedIn,
	events.EventPrincipalLoggedOut,
	events.EventMaterialCreated,
	events.EventMaterialUpdated,
	events.EventMaterialDeleted,
	events.EventMaterialPurchased,
}

// AuditLogger writes one structured log line per domain event.
type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("audit")}
}

// Register subscribes to every audited event type.
func (a *AuditLogger) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, t := range auditedEvents {
		dispatcher.Subscribe(t, a.handle)
	}
}

func (a *AuditLogger) handle(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("subject_id", event.SubjectID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.String("actor_id", event.Actor.ID),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	)
	return nil
}
