package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/soundprediction/graphmem/pkg/cache"
)

// DefaultCacheTTL bounds how long structured responses are reused.
const DefaultCacheTTL = 24 * time.Hour

// CachedClient memoizes structured output responses in a cache, keyed by
// a digest of messages and schema. Only structured requests are cached;
// free-form chat stays live.
type CachedClient struct {
	inner Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient wraps inner with response caching.
func NewCachedClient(inner Client, c cache.Cache) *CachedClient {
	return &CachedClient{inner: inner, cache: c, ttl: DefaultCacheTTL}
}

// Chat passes through to the wrapped client.
func (c *CachedClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return c.inner.Chat(ctx, messages)
}

// ChatWithStructuredOutput returns a cached response when the same
// messages and schema were seen within the TTL.
func (c *CachedClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema map[string]interface{}, size ModelSize) (json.RawMessage, error) {
	key := cacheKey(messages, schema, size)
	if cached, err := c.cache.Get(key); err == nil {
		return json.RawMessage(cached), nil
	}

	raw, err := c.inner.ChatWithStructuredOutput(ctx, messages, schema, size)
	if err != nil {
		return nil, err
	}

	// Cache write failures are non-fatal; the response is still good.
	_ = c.cache.Set(key, []byte(raw), c.ttl)
	return raw, nil
}

// Close closes the wrapped client. The cache is owned by the caller.
func (c *CachedClient) Close() error {
	return c.inner.Close()
}

func cacheKey(messages []Message, schema map[string]interface{}, size ModelSize) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(messages)
	_ = enc.Encode(schema)
	h.Write([]byte(size))
	return "llm:" + hex.EncodeToString(h.Sum(nil))
}
