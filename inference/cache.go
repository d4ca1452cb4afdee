package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/internal/cache"
	"github.com/BaSui01/interiorlens/internal/metrics"
)

const resultKeyPrefix = "interiorlens:result:"

// cachedPrediction is the stored form of a successful prediction.
type cachedPrediction struct {
	Label       string             `json:"label"`
	Confidence  float64            `json:"confidence"`
	Confidences map[string]float64 `json:"confidences"`
}

// ResultCache stores predictions keyed by model version and payload digest.
// Cache failures degrade to misses and are never surfaced to callers.
type ResultCache struct {
	store   *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewResultCache creates a cache on top of a Redis manager. ttl <= 0 uses the
// manager default.
func NewResultCache(store *cache.Manager, ttl time.Duration, logger *zap.Logger, m *metrics.Collector) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &ResultCache{
		store:   store,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "result_cache")),
		metrics: m,
	}
}

// Key returns the cache key for payload under a model version.
func (c *ResultCache) Key(version string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return resultKeyPrefix + version + ":" + hex.EncodeToString(sum[:])
}

// Lookup returns one entry per key; nil marks a miss.
func (c *ResultCache) Lookup(ctx context.Context, keys []string) []*Prediction {
	out := make([]*Prediction, len(keys))
	if len(keys) == 0 {
		return out
	}

	raw, err := c.store.MGet(ctx, keys...)
	if err != nil {
		c.logger.Warn("result cache lookup failed", zap.Error(err))
		for range keys {
			c.metrics.RecordCacheMiss("result")
		}
		return out
	}

	var stale []string
	for i, v := range raw {
		if v == nil {
			c.metrics.RecordCacheMiss("result")
			continue
		}
		var cp cachedPrediction
		if err := json.Unmarshal([]byte(*v), &cp); err != nil || cp.Label == "" {
			c.logger.Warn("dropping unreadable cache entry", zap.String("key", keys[i]), zap.Error(err))
			c.metrics.RecordCacheMiss("result")
			stale = append(stale, keys[i])
			continue
		}
		c.metrics.RecordCacheHit("result")
		out[i] = &Prediction{Label: cp.Label, Confidence: cp.Confidence, Confidences: cp.Confidences}
	}

	if len(stale) > 0 {
		if err := c.store.Delete(ctx, stale...); err != nil {
			c.logger.Warn("result cache eviction failed", zap.Int("keys", len(stale)), zap.Error(err))
		}
	}
	return out
}

// Store saves a prediction.
func (c *ResultCache) Store(ctx context.Context, key string, p Prediction) {
	cp := cachedPrediction{Label: p.Label, Confidence: p.Confidence, Confidences: p.Confidences}
	if err := c.store.SetJSON(ctx, key, cp, c.ttl); err != nil {
		c.logger.Warn("result cache store failed", zap.String("key", key), zap.Error(err))
	}
}
