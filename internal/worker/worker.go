package worker

import (
	"context"

	"github.com/dumaterial/materials-api/internal/events"
)

// Start registers the audit logger and the media cleanup pool on dispatcher
// and launches the pool. Callers stop the pool with cleanup.Stop.
func Start(ctx context.Context, dispatcher events.Dispatcher, audit *AuditLogger, cleanup *MediaCleanup) {
	if audit != nil {
		audit.Register(dispatcher)
	}
	if cleanup != nil {
		cleanup.Register(dispatcher)
		cleanup.Start(ctx)
	}
}
