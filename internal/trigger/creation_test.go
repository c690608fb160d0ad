package trigger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/geocache"
	"github.com/salemap/saled/internal/geocode"
	"github.com/salemap/saled/internal/maptiler"
	"github.com/salemap/saled/internal/rate"
	"github.com/salemap/saled/pkg/model"
	"github.com/salemap/saled/pkg/secrets"
)

type stubResolver struct {
	res   geocode.Result
	err   error
	calls atomic.Int32
}

func (r *stubResolver) Resolve(context.Context, string) (geocode.Result, error) {
	r.calls.Add(1)
	return r.res, r.err
}

// memLocations behaves like the conditional store write.
type memLocations struct {
	mu     sync.Mutex
	locs   map[string]model.Location
	hashes map[string]string
	writes int
	err    error
}

func newMemLocations() *memLocations {
	return &memLocations{locs: map[string]model.Location{}, hashes: map[string]string{}}
}

func (m *memLocations) SetLocation(_ context.Context, id string, loc model.Location, hash string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.locs[id]; ok {
		return false, nil
	}
	m.locs[id] = loc
	m.hashes[id] = hash
	m.writes++
	return true, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (p *recordingPublisher) PublishEvent(_ context.Context, subject, _ string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}

func created(s model.Sale) model.SaleCreated {
	return model.SaleCreated{SaleID: s.ID, Sale: s, Timestamp: time.Now()}
}

func TestHandle_GeocodesAndPersists(t *testing.T) {
	res := &stubResolver{res: geocode.Result{Lat: 40.7128, Lng: -74.0060}}
	store := newMemLocations()
	pub := &recordingPublisher{}
	tr := NewCreationTrigger(zap.NewNop(), res, store, pub)

	out, err := tr.Handle(context.Background(), created(model.Sale{ID: "s1", Address: "1 Main St"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGeocoded, out)

	assert.Equal(t, model.Location{Lat: 40.7128, Lng: -74.0060}, store.locs["s1"])
	assert.Len(t, store.hashes["s1"], GeohashPrecision)
	assert.True(t, strings.HasPrefix(store.hashes["s1"], "dr5re"), store.hashes["s1"])

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, SubjectSaleGeocoded, pub.subjects[0])
	evt, ok := pub.payloads[0].(model.SaleGeocoded)
	require.True(t, ok)
	assert.Equal(t, "s1", evt.SaleID)
}

func TestHandle_AlreadyLocatedIsNoop(t *testing.T) {
	res := &stubResolver{res: geocode.Result{Lat: 1, Lng: 1}}
	store := newMemLocations()
	tr := NewCreationTrigger(zap.NewNop(), res, store, nil)

	s := model.Sale{ID: "s1", Address: "1 Main St", Location: &model.Location{Lat: 51.5, Lng: -0.12}}
	for i := 0; i < 2; i++ {
		out, err := tr.Handle(context.Background(), created(s))
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyLocated, out)
	}
	assert.Zero(t, res.calls.Load())
	assert.Zero(t, store.writes)
}

func TestHandle_RedeliveryAfterGeocodeWritesOnce(t *testing.T) {
	res := &stubResolver{res: geocode.Result{Lat: 10, Lng: 20}}
	store := newMemLocations()
	tr := NewCreationTrigger(zap.NewNop(), res, store, nil)

	s := model.Sale{ID: "s1", Address: "1 Main St"}
	out, err := tr.Handle(context.Background(), created(s))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGeocoded, out)

	// stale snapshot redelivered: the conditional write loses
	out, err = tr.Handle(context.Background(), created(s))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRaced, out)
	assert.Equal(t, 1, store.writes)
}

func TestHandle_NoAddress(t *testing.T) {
	res := &stubResolver{}
	tr := NewCreationTrigger(zap.NewNop(), res, newMemLocations(), nil)

	out, err := tr.Handle(context.Background(), created(model.Sale{ID: "s1", Address: "   "}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAddress, out)
	assert.Zero(t, res.calls.Load())
}

func TestHandle_ResolverFailuresLeaveSaleUnresolved(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not configured", geocode.ErrNotConfigured},
		{"not found", fmt.Errorf("%w: status 404", geocode.ErrNotFound)},
		{"transient", errors.New("dial tcp: i/o timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemLocations()
			tr := NewCreationTrigger(zap.NewNop(), &stubResolver{err: tt.err}, store, nil)

			out, err := tr.Handle(context.Background(), created(model.Sale{ID: "s1", Address: "1 Main St"}))
			require.NoError(t, err)
			assert.Equal(t, OutcomeUnresolved, out)
			assert.Empty(t, store.locs)
		})
	}
}

func TestHandle_StoreErrorIsReturned(t *testing.T) {
	store := newMemLocations()
	store.err = errors.New("conn reset")
	tr := NewCreationTrigger(zap.NewNop(), &stubResolver{res: geocode.Result{Lat: 1, Lng: 2}}, store, nil)

	_, err := tr.Handle(context.Background(), created(model.Sale{ID: "s1", Address: "1 Main St"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestHandle_UsesEventSaleIDWhenSnapshotHasNone(t *testing.T) {
	store := newMemLocations()
	tr := NewCreationTrigger(zap.NewNop(), &stubResolver{res: geocode.Result{Lat: 1, Lng: 2}}, store, nil)

	evt := model.SaleCreated{SaleID: "from-envelope", Sale: model.Sale{Address: "1 Main St"}}
	_, err := tr.Handle(context.Background(), evt)
	require.NoError(t, err)
	assert.Contains(t, store.locs, "from-envelope")
}

func TestHandle_NoAPIKeyEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := maptiler.NewClient(zap.NewNop(), maptiler.Config{BaseURL: srv.URL, Timeout: time.Second},
		secrets.StaticKey(""), rate.NewManager(rate.Config{}))
	resolver := geocode.NewResolver(zap.NewNop(), geocache.NewRedisCache(rdb), client)
	store := newMemLocations()
	tr := NewCreationTrigger(zap.NewNop(), resolver, store, nil)

	out, err := tr.Handle(context.Background(), created(model.Sale{ID: "s-500", Address: "500 Test Ave"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, out)
	assert.NotContains(t, store.locs, "s-500")
	assert.Zero(t, hits.Load())
	assert.Empty(t, mr.Keys())
}

func TestPublishSaleCreated_SwallowsStoreError(t *testing.T) {
	store := newMemLocations()
	store.err = errors.New("conn reset")
	tr := NewCreationTrigger(zap.NewNop(), &stubResolver{res: geocode.Result{Lat: 1, Lng: 2}}, store, nil)

	err := tr.PublishSaleCreated(context.Background(), created(model.Sale{ID: "s1", Address: "1 Main St"}))
	assert.NoError(t, err)
}
