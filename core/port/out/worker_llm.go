package out

import (
	"context"
	"time"

	"complaint_server/core/domain"
)

// ClassifyRequest is one classification call.
type ClassifyRequest struct {
	Subject           string
	Sender            string
	Body              string // latest reply only
	Timeout           time.Duration
	MaxRetries        int // total attempts
	BackoffMultiplier float64
}

// Classifier labels a message as complaint or not.
// Implementations return a usable result or an unclassified one; an error
// accompanies the unclassified result only when every attempt failed.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (domain.ClassificationResult, error)
}

// TextCompleter is the raw transport behind a Classifier: one request, one
// text response.
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
