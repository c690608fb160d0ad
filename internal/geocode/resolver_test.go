package geocode

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salemap/saled/pkg/model"
)

// memCache mirrors the merge semantics of the durable backends.
type memCache struct {
	mu      sync.Mutex
	entries map[string]model.GeocodeEntry
	getErr  error
	putErr  error
	puts    atomic.Int32
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]model.GeocodeEntry{}}
}

func (c *memCache) Get(_ context.Context, key string) (*model.GeocodeEntry, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *memCache) Put(_ context.Context, entry model.GeocodeEntry) error {
	c.puts.Add(1)
	if c.putErr != nil {
		return c.putErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[entry.Key]; ok && existing.Address != "" {
		entry.Address = existing.Address
	}
	c.entries[entry.Key] = entry
	return nil
}

type fakeGeocoder struct {
	loc   model.Location
	err   error
	calls atomic.Int32

	mu    sync.Mutex
	query string
}

func (g *fakeGeocoder) Geocode(_ context.Context, query string) (model.Location, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.query = query
	g.mu.Unlock()
	return g.loc, g.err
}

func newResolver(c Cache, g Geocoder) *Resolver {
	return NewResolver(zap.NewNop(), c, g)
}

func TestResolve_CacheHitSkipsGeocoder(t *testing.T) {
	cache := newMemCache()
	cache.entries[CacheKey("500 Test Ave")] = model.GeocodeEntry{
		Key: CacheKey("500 Test Ave"), Address: "500 Test Ave", Lat: 40.1, Lng: -75.2,
	}
	geo := &fakeGeocoder{}

	res, err := newResolver(cache, geo).Resolve(context.Background(), "500 TEST AVE")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 40.1, res.Lat)
	assert.Equal(t, -75.2, res.Lng)
	assert.EqualValues(t, 0, geo.calls.Load(), "cache hit must not reach the network")
}

func TestResolve_MissWritesThrough(t *testing.T) {
	cache := newMemCache()
	geo := &fakeGeocoder{loc: model.Location{Lat: 39.95, Lng: -75.16}}
	r := newResolver(cache, geo)

	res, err := r.Resolve(context.Background(), "500 Test Ave")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "500 Test Ave", geo.query, "query is sent verbatim")

	entry := cache.entries[CacheKey("500 Test Ave")]
	assert.Equal(t, "500 Test Ave", entry.Address)
	assert.Equal(t, 39.95, entry.Lat)
	assert.False(t, entry.UpdatedAt.IsZero())

	res, err = r.Resolve(context.Background(), "500 test ave")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, geo.calls.Load())
}

func TestResolve_MalformedCacheEntryIsAMiss(t *testing.T) {
	cache := newMemCache()
	key := CacheKey("1 Main St")
	cache.entries[key] = model.GeocodeEntry{Key: key, Address: "1 Main St", Lat: math.NaN(), Lng: 10}
	geo := &fakeGeocoder{loc: model.Location{Lat: 1, Lng: 2}}

	res, err := newResolver(cache, geo).Resolve(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, geo.calls.Load())
	assert.Equal(t, 1.0, cache.entries[key].Lat)
}

func TestResolve_NotFound(t *testing.T) {
	cache := newMemCache()
	geo := &fakeGeocoder{err: ErrNotFound}

	_, err := newResolver(cache, geo).Resolve(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 0, cache.puts.Load())
}

func TestResolve_NotConfigured(t *testing.T) {
	geo := &fakeGeocoder{err: ErrNotConfigured}

	_, err := newResolver(newMemCache(), geo).Resolve(context.Background(), "500 Test Ave")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolve_TransientErrorIsDistinct(t *testing.T) {
	geo := &fakeGeocoder{err: errors.New("connection reset")}

	_, err := newResolver(newMemCache(), geo).Resolve(context.Background(), "500 Test Ave")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestResolve_InvalidCoordinateFromGeocoder(t *testing.T) {
	cache := newMemCache()
	geo := &fakeGeocoder{loc: model.Location{Lat: 123, Lng: 0}}

	_, err := newResolver(cache, geo).Resolve(context.Background(), "500 Test Ave")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 0, cache.puts.Load())
}

func TestResolve_CacheReadErrorFallsThrough(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("redis down")
	geo := &fakeGeocoder{loc: model.Location{Lat: 1, Lng: 2}}

	res, err := newResolver(cache, geo).Resolve(context.Background(), "500 Test Ave")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Lat)
}

func TestResolve_CacheWriteErrorStillReturnsResult(t *testing.T) {
	cache := newMemCache()
	cache.putErr = errors.New("read-only replica")
	geo := &fakeGeocoder{loc: model.Location{Lat: 1, Lng: 2}}

	res, err := newResolver(cache, geo).Resolve(context.Background(), "500 Test Ave")
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Lng)
}

func TestResolve_ConcurrentSameKeyConverges(t *testing.T) {
	cache := newMemCache()
	geo := &fakeGeocoder{loc: model.Location{Lat: 39.95, Lng: -75.16}}
	r := newResolver(cache, geo)

	var wg sync.WaitGroup
	for _, addr := range []string{"500 Test Ave", "500 TEST AVE"} {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), addr)
			assert.NoError(t, err)
		}(addr)
	}
	wg.Wait()

	require.Len(t, cache.entries, 1)
	entry := cache.entries[CacheKey("500 Test Ave")]
	assert.True(t, model.ValidCoordinate(entry.Lat, entry.Lng))
	assert.GreaterOrEqual(t, geo.calls.Load(), int32(1))
	assert.LessOrEqual(t, geo.calls.Load(), int32(2))
}
