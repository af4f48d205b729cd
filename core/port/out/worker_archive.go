package out

import (
	"context"

	"complaint_server/core/domain"
)

// ComplaintArchive keeps the append-only history of build events per case.
type ComplaintArchive interface {
	AppendEvent(ctx context.Context, event *domain.BuildEvent) error
	CaseHistory(ctx context.Context, key domain.CaseKey, limit int) ([]*domain.BuildEvent, error)
}
