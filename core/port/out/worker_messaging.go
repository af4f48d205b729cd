package out

import (
	"context"

	"complaint_server/core/domain"
)

// AuditPublisher emits build events for downstream consumers.
type AuditPublisher interface {
	PublishBuild(ctx context.Context, event *domain.BuildEvent) error
}
