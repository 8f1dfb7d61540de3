package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResolver is a read-through cache in front of another Resolver.
// Resolutions are cached in Redis with a short TTL so that hot chains do
// not hit the durable registry on every append. The cache sits inside the
// same trust boundary as the registry itself; entries are keyed per org and
// invalidated by TTL rather than explicit rotation signals, so the TTL must
// stay well below any key rotation interval.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type cachedResolution struct {
	SigningSecret []byte    `json:"signing_secret"`
	SigningKeyID  string    `json:"signing_key_id"`
	KeyExpiresAt  time.Time `json:"key_expires_at"`
	Scopes        []string  `json:"scopes"`
}

// NewCachedResolver wraps inner with a Redis-backed cache.
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "registry-cache"),
	}
}

func cacheKey(orgID string) string {
	return "orbit:registry:resolution:" + orgID
}

// Resolve returns the cached resolution when present, falling back to the
// inner resolver. Cache failures degrade to the inner resolver; they never
// fail the resolution.
func (c *CachedResolver) Resolve(ctx context.Context, orgID string) (Resolution, error) {
	raw, err := c.client.Get(ctx, cacheKey(orgID)).Bytes()
	if err == nil {
		var cached cachedResolution
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return Resolution{
				SigningSecret: cached.SigningSecret,
				SigningKeyID:  cached.SigningKeyID,
				KeyExpiresAt:  cached.KeyExpiresAt,
				Scopes:        cached.Scopes,
			}, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = c.client.Del(ctx, cacheKey(orgID)).Err()
	} else if err != redis.Nil {
		c.logger.WarnContext(ctx, "registry cache read failed", "org_id", orgID, "error", err)
	}

	res, err := c.inner.Resolve(ctx, orgID)
	if err != nil {
		return Resolution{}, err
	}

	payload, jerr := json.Marshal(cachedResolution{
		SigningSecret: res.SigningSecret,
		SigningKeyID:  res.SigningKeyID,
		KeyExpiresAt:  res.KeyExpiresAt,
		Scopes:        res.Scopes,
	})
	if jerr != nil {
		return res, nil
	}
	if serr := c.client.Set(ctx, cacheKey(orgID), payload, c.ttl).Err(); serr != nil {
		c.logger.WarnContext(ctx, "registry cache write failed", "org_id", orgID, "error", serr)
	}

	return res, nil
}

// Invalidate removes a cached resolution, e.g. after a key reissue.
func (c *CachedResolver) Invalidate(ctx context.Context, orgID string) error {
	if err := c.client.Del(ctx, cacheKey(orgID)).Err(); err != nil {
		return fmt.Errorf("registry: cache invalidation failed: %w", err)
	}
	return nil
}
