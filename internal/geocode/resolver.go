package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

var (
	// ErrNotFound means the geocoder ran but produced no usable coordinate.
	// It is terminal for the attempt and must not be retried automatically.
	ErrNotFound = errors.New("geocode: no result")

	// ErrNotConfigured means no API key is available, so resolution was skipped.
	ErrNotConfigured = errors.New("geocode: geocoder not configured")
)

// Cache is the durable address → coordinate store consulted before the geocoder.
type Cache interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) (*model.GeocodeEntry, error)
	// Put upserts entry, merging into any existing record for the same key.
	Put(ctx context.Context, entry model.GeocodeEntry) error
}

// Geocoder resolves a free-text query through an external service.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (model.Location, error)
}

// Result is a resolved coordinate.
type Result struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	FromCache bool    `json:"from_cache"`
}

// Location returns the result as a model.Location.
func (r Result) Location() model.Location {
	return model.Location{Lat: r.Lat, Lng: r.Lng}
}

// Resolver is the cache-aside orchestrator in front of the external geocoder.
type Resolver struct {
	logger   *zap.Logger
	cache    Cache
	geocoder Geocoder
	now      func() time.Time
}

// NewResolver builds a Resolver.
func NewResolver(logger *zap.Logger, cache Cache, geocoder Geocoder) *Resolver {
	return &Resolver{
		logger:   logger,
		cache:    cache,
		geocoder: geocoder,
		now:      time.Now,
	}
}

// Resolve returns the coordinate for address, consulting the cache first.
// It returns ErrNotFound or ErrNotConfigured for terminal outcomes; any other
// error is an I/O failure the caller may choose to retry.
func (r *Resolver) Resolve(ctx context.Context, address string) (Result, error) {
	key := CacheKey(address)

	entry, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.IncCacheLookup("error")
		r.logger.Warn("geocode.cache_read_failed", zap.String("key", key), zap.Error(err))
	case entry != nil && model.ValidCoordinate(entry.Lat, entry.Lng):
		metrics.IncCacheLookup("hit")
		return Result{Lat: entry.Lat, Lng: entry.Lng, FromCache: true}, nil
	default:
		metrics.IncCacheLookup("miss")
	}

	loc, err := r.geocoder.Geocode(ctx, Query(address))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotConfigured) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if !loc.Valid() {
		return Result{}, ErrNotFound
	}

	put := model.GeocodeEntry{
		Key:       key,
		Address:   address,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		UpdatedAt: r.now().UTC(),
	}
	if err := r.cache.Put(ctx, put); err != nil {
		r.logger.Warn("geocode.cache_write_failed", zap.String("key", key), zap.Error(err))
	}

	r.logger.Debug("geocode.resolved",
		zap.String("key", key),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lng", loc.Lng))

	return Result{Lat: loc.Lat, Lng: loc.Lng}, nil
}
