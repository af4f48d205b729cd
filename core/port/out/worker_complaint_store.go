package out

import (
	"context"
	"time"

	"complaint_server/core/domain"
)

// ComplaintStore is the storage collaborator for complaint records.
type ComplaintStore interface {
	// GetByConversation returns nil, nil when no record exists.
	GetByConversation(ctx context.Context, conversationID string) (*domain.ComplaintRecord, error)
	// FindByCaseKey returns records sharing the key, newest received first.
	FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]*domain.ComplaintRecord, error)
	// Upsert writes the full record keyed by conversation id.
	Upsert(ctx context.Context, record *domain.ComplaintRecord) error
	// Touch moves the stored received time forward without changing content.
	Touch(ctx context.Context, conversationID string, receivedAt time.Time) error
	List(ctx context.Context, filter ListFilter) ([]*domain.ComplaintRecord, error)
}

// ListFilter narrows List results. Zero values mean no restriction.
type ListFilter struct {
	Since    *time.Time
	Category domain.Category
	CaseKey  domain.CaseKey
	Limit    int
	Offset   int
}

// CustomColumnStore manages user-defined columns attached to records.
type CustomColumnStore interface {
	ListColumns(ctx context.Context) ([]string, error)
	SetCustomValue(ctx context.Context, conversationID, column, value string) error
	CustomValues(ctx context.Context, conversationID string) (map[string]string, error)
}
