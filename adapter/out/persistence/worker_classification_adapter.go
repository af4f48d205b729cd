package persistence

import (
	"context"
	"fmt"
	"time"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/cache"
)

// =============================================================================
// ClassificationCacheAdapter - Redis-backed classifier result cache
// =============================================================================

type ClassificationCacheAdapter struct {
	cache *cache.RedisCache
}

var _ out.ClassificationCache = (*ClassificationCacheAdapter)(nil)

func NewClassificationCacheAdapter(redisCache *cache.RedisCache) *ClassificationCacheAdapter {
	return &ClassificationCacheAdapter{cache: redisCache}
}

func classificationCacheKey(key string) string {
	return "classify:" + key
}

// GetClassification returns nil when nothing is cached.
func (a *ClassificationCacheAdapter) GetClassification(ctx context.Context, key string) (*domain.ClassificationResult, error) {
	var result domain.ClassificationResult
	found, err := a.cache.GetJSON(ctx, classificationCacheKey(key), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to read classification cache: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &result, nil
}

func (a *ClassificationCacheAdapter) SetClassification(ctx context.Context, key string, result domain.ClassificationResult, ttl time.Duration) error {
	if err := a.cache.SetJSON(ctx, classificationCacheKey(key), result, ttl); err != nil {
		return fmt.Errorf("failed to write classification cache: %w", err)
	}
	return nil
}
