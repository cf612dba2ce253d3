package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/failwatch/failwatch/internal/cache"
	"github.com/failwatch/failwatch/internal/fingerprint"
	"github.com/failwatch/failwatch/pkg/models"
)

// CachedProvider memoizes analysis text by record fingerprint so a forced
// resend inside the throttle window does not pay for inference twice.
// Cache failures fall through to the underlying provider.
type CachedProvider struct {
	inner Provider
	cache cache.Cache
	ttl   time.Duration
}

func Cached(inner Provider, c cache.Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c, ttl: ttl}
}

func (p *CachedProvider) Name() string { return p.inner.Name() }

func (p *CachedProvider) Analyze(ctx context.Context, rec models.FailureRecord) (string, error) {
	key := cache.AnalysisKey(p.inner.Name(), fingerprint.Compute(rec))

	if data, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		return string(data), nil
	}

	text, err := p.inner.Analyze(ctx, rec)
	if err != nil {
		return "", err
	}

	if err := p.cache.Set(ctx, key, []byte(text), p.ttl); err != nil {
		slog.Warn("analysis cache write failed", "key", key, "error", err)
	}
	return text, nil
}

var _ Provider = (*CachedProvider)(nil)
