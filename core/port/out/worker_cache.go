package out

import (
	"context"
	"time"

	"complaint_server/core/domain"
)

// ClassificationCache stores parsed classifier output by content hash.
type ClassificationCache interface {
	GetClassification(ctx context.Context, key string) (*domain.ClassificationResult, error)
	SetClassification(ctx context.Context, key string, result domain.ClassificationResult, ttl time.Duration) error
}

// CaseLocker serializes builds that share a case key across processes.
// The returned release func is safe to call once.
type CaseLocker interface {
	LockCase(ctx context.Context, key domain.CaseKey) (release func(), err error)
}
