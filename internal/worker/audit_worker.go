package worker

import (
	"context"

	"github.com/spec-kit/ticket-relay/internal/service"
)

// StartAuditWorker registers audit handlers and drains events in the background until ctx ends.
func StartAuditWorker(ctx context.Context, auditService *service.AuditService) {
	if auditService == nil || !auditService.Enabled() {
		return
	}
	auditService.RegisterHandlers()
	go auditService.Run(ctx)
}
