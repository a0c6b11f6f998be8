// ABOUTME: Process-wide JWKS key cache, one keyfunc per JWKS endpoint
// ABOUTME: Keys are fetched on first use and refreshed in the background; unknown kids are rate limited

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// keyCache lazily creates a keyfunc per JWKS URI. The keyfunc owns the kid-indexed key
// storage, its periodic refresh and the limiter on re-fetching for unknown kids.
type keyCache struct {
	ctx    context.Context
	logger *slog.Logger

	mu    sync.Mutex
	byURI map[string]keyfunc.Keyfunc
}

func newKeyCache(ctx context.Context, logger *slog.Logger) *keyCache {
	return &keyCache{
		ctx:    ctx,
		logger: logger,
		byURI:  make(map[string]keyfunc.Keyfunc),
	}
}

// keyfunc returns the jwt.Keyfunc for uri, creating and caching it on first use.
func (c *keyCache) keyfunc(uri string) (jwt.Keyfunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kf, ok := c.byURI[uri]; ok {
		return kf.Keyfunc, nil
	}
	kf, err := keyfunc.NewDefaultCtx(c.ctx, []string{uri})
	if err != nil {
		return nil, fmt.Errorf("loading JWKS from %s: %w", uri, err)
	}
	c.byURI[uri] = kf
	c.logger.Info("JWKS key set registered", "jwks_uri", uri)
	return kf.Keyfunc, nil
}

func (c *keyCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byURI)
}
