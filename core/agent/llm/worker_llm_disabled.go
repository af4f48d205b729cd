package llm

import (
	"context"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
)

// Disabled stands in when no model is configured. Every accepted message is
// recorded as unclassified so the rest of the pipeline still runs.
type Disabled struct{}

var _ out.Classifier = Disabled{}

func (Disabled) Classify(ctx context.Context, req out.ClassifyRequest) (domain.ClassificationResult, error) {
	return domain.Unclassified(domain.ClassificationUnavailable), nil
}
