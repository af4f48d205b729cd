package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/logger"
)

// CachedClassifier serves repeated messages from a cache. Only parsed
// results are stored, so failures are retried on the next run.
type CachedClassifier struct {
	next  out.Classifier
	cache out.ClassificationCache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ out.Classifier = (*CachedClassifier)(nil)

func NewCachedClassifier(next out.Classifier, cache out.ClassificationCache, ttl time.Duration) *CachedClassifier {
	return &CachedClassifier{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logger.Component("classifier_cache"),
	}
}

func (c *CachedClassifier) Classify(ctx context.Context, req out.ClassifyRequest) (domain.ClassificationResult, error) {
	key := CacheKey(req.Subject, req.Sender, req.Body)

	cached, err := c.cache.GetClassification(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Msg("classification cache read failed")
	} else if cached != nil {
		return *cached, nil
	}

	result, err := c.next.Classify(ctx, req)
	if err != nil || !result.Usable() {
		return result, err
	}

	if err := c.cache.SetClassification(ctx, key, result, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("classification cache write failed")
	}
	return result, nil
}

// CacheKey hashes the classifier inputs.
func CacheKey(subject, sender, body string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
