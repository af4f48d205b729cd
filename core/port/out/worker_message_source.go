package out

import (
	"context"
	"time"

	"complaint_server/core/domain"
)

// MessageSource fetches mailbox messages received at or after since,
// oldest first, with plain-text bodies.
type MessageSource interface {
	FetchSince(ctx context.Context, since time.Time) ([]*domain.RawMessage, error)
}

// ConversationHistory is implemented by sources that can look up the first
// message of a conversation. It returns nil, nil when unknown.
type ConversationHistory interface {
	EarliestInConversation(ctx context.Context, conversationID string) (*domain.RawMessage, error)
}
