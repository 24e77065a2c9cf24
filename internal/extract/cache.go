package extract

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hbomb79/Tikfetch/pkg/logger"
)

// CachingExtractor remembers successful metadata resolutions for a
// short period, so that repeated requests for the same URL do not
// each pay for an engine round-trip. Failures are never cached and
// media downloads are always delegated.
type CachingExtractor struct {
	Extractor
	cache *expirable.LRU[string, Metadata]
}

// NewCachingExtractor wraps the extractor with a metadata cache of the
// size and TTL given. If size is not positive, the extractor is
// returned unwrapped.
func NewCachingExtractor(inner Extractor, size int, ttl time.Duration) Extractor {
	if size <= 0 {
		return inner
	}

	return &CachingExtractor{
		Extractor: inner,
		cache:     expirable.NewLRU[string, Metadata](size, nil, ttl),
	}
}

func (c *CachingExtractor) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	if cached, ok := c.cache.Get(url); ok {
		log.Emit(logger.VERBOSE, "Metadata cache hit for %s\n", url)
		return &cached, nil
	}

	meta, err := c.Extractor.FetchMetadata(ctx, url)
	if err != nil {
		return nil, err
	}

	c.cache.Add(url, *meta)
	return meta, nil
}
