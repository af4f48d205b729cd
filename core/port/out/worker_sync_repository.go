package out

import (
	"context"
	"time"
)

// SyncCursorStore persists the newest processed received time per mailbox.
type SyncCursorStore interface {
	GetCursor(ctx context.Context, mailbox string) (time.Time, bool, error)
	SetCursor(ctx context.Context, mailbox string, at time.Time) error
}
