package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultCacheTTL = 24 * time.Hour

// CachedEmbedder memoizes single-text embeddings in Redis. Retrieval embeds
// the same short sentences repeatedly, so Embed goes through the cache while
// EmbedBatch, used once per configuration run, always reaches the inner
// embedder. Redis failures are logged and never fail the call.
type CachedEmbedder struct {
	inner  Embedder
	redis  *redis.Client
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner Embedder, rdb *redis.Client, model string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:  inner,
		redis:  rdb,
		model:  model,
		ttl:    ttl,
		logger: logger.Named("embedding-cache"),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil {
			return vector, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return vector, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "cuecode:embedding:" + c.model + ":" + hex.EncodeToString(sum[:])
}
