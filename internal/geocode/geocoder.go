package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/metrics"
)

// Resolver is the external-service half of the geocoder, split out so
// tests can count calls.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*Result, error)
}

// Geocoder answers address queries cache-first. Both positive and
// definitive negative answers are written through to the cache;
// transient failures return an error and cache nothing.
type Geocoder struct {
	cache    *Cache
	resolver Resolver
	logger   *zap.Logger

	hits   int
	misses int
}

// NewGeocoder wires a cache in front of a resolver.
func NewGeocoder(cache *Cache, resolver Resolver, logger *zap.Logger) *Geocoder {
	return &Geocoder{cache: cache, resolver: resolver, logger: logger}
}

// Geocode resolves one query. A nil Result with a nil error is a
// definitive "no such place". useCache=false forces an external call
// but still writes the answer back to the cache.
func (g *Geocoder) Geocode(ctx context.Context, query string, useCache bool) (*Result, error) {
	if useCache {
		if res, ok := g.cache.Lookup(query); ok {
			g.hits++
			metrics.GeocodeCacheLookups.WithLabelValues("hit").Inc()
			return res, nil
		}
	}
	g.misses++
	metrics.GeocodeCacheLookups.WithLabelValues("miss").Inc()

	res, err := g.resolver.Resolve(ctx, query)
	if err != nil {
		// Transient. Leave uncached so a later run can retry.
		return nil, err
	}
	if storeErr := g.cache.Store(query, res); storeErr != nil {
		g.logger.Error("geocode cache write failed", zap.Error(storeErr))
	}
	return res, nil
}

// HitRate reports the cache hit fraction for this process, 0 when no
// lookups happened yet.
func (g *Geocoder) HitRate() float64 {
	total := g.hits + g.misses
	if total == 0 {
		return 0
	}
	return float64(g.hits) / float64(total)
}
