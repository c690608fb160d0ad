package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salemap/saled/pkg/model"
)

// --- fakes ---

type execCall struct {
	sql  string
	args []any
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case **time.Time:
			*p, _ = r.values[i].(*time.Time)
		case **float64:
			*p, _ = r.values[i].(*float64)
		case **string:
			*p, _ = r.values[i].(*string)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeBatchResults struct {
	pgx.BatchResults
	n      int
	failAt int // 1-based, 0 = never
	seen   int
	closed bool
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.seen++
	if b.seen == b.failAt {
		return pgconn.CommandTag{}, errors.New("deadlock detected")
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (b *fakeBatchResults) Close() error {
	b.closed = true
	return nil
}

type fakeTx struct {
	pgx.Tx
	batch      *pgx.Batch
	results    *fakeBatchResults
	committed  bool
	rolledBack bool
	commitErr  error
}

func (tx *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.batch = b
	tx.results.n = b.Len()
	return tx.results
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	execs   []execCall
	execTag pgconn.CommandTag
	execErr error
	row     fakeRow
	tx      *fakeTx
	pingErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql, args})
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return f.row }

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) { return f.tx, nil }

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func newFakeStore(db *fakeDB) *PGStore {
	return &PGStore{db: db, logger: zap.NewNop()}
}

// --- nil pool ---

func TestPG_NilPool(t *testing.T) {
	s := &PGStore{}
	ctx := context.Background()

	_, err := s.ListSales(ctx)
	assert.ErrorIs(t, err, errPGUnavailable)
	_, err = s.GetSale(ctx, "x")
	assert.ErrorIs(t, err, errPGUnavailable)
	_, err = s.SetLocation(ctx, "x", model.Location{}, "", time.Now())
	assert.ErrorIs(t, err, errPGUnavailable)
	assert.ErrorIs(t, s.ApplyStatusChunk(ctx, []model.StatusUpdate{{SaleID: "x"}}, time.Now()), errPGUnavailable)
	assert.ErrorIs(t, s.HealthCheck(ctx), errPGUnavailable)
	assert.NoError(t, s.Close())
}

func TestSchema_Embedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS sales")
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS geocache")
	assert.Contains(t, schemaSQL, "ends_at > starts_at")
}

func TestMigrate_ExecsSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, newFakeStore(db).Migrate(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Equal(t, schemaSQL, db.execs[0].sql)
}

// --- SetLocation ---

func TestSetLocation_Conditional(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	s := newFakeStore(db)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ok, err := s.SetLocation(context.Background(), "s1", model.Location{Lat: 1.5, Lng: 2.5}, "s00twy01mt", at)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "lat IS NULL")
	assert.Equal(t, []any{"s1", 1.5, 2.5, "s00twy01mt", at}, db.execs[0].args)
}

func TestSetLocation_AlreadySet(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
	ok, err := newFakeStore(db).SetLocation(context.Background(), "s1", model.Location{}, "", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetLocation_Error(t *testing.T) {
	db := &fakeDB{execErr: errors.New("conn closed")}
	_, err := newFakeStore(db).SetLocation(context.Background(), "s1", model.Location{}, "", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set location s1")
}

// --- CreateSale ---

func TestCreateSale_DuplicateKey(t *testing.T) {
	db := &fakeDB{execErr: &pgconn.PgError{Code: "23505"}}
	err := newFakeStore(db).CreateSale(context.Background(), model.Sale{ID: "dup"})
	assert.ErrorIs(t, err, ErrSaleExists)
}

func TestCreateSale_NullableLocation(t *testing.T) {
	db := &fakeDB{}
	s := newFakeStore(db)

	require.NoError(t, s.CreateSale(context.Background(), model.Sale{ID: "a", Status: model.StatusUpcoming}))
	args := db.execs[0].args
	assert.Nil(t, args[9])
	assert.Nil(t, args[10])
	assert.Nil(t, args[11])
	assert.Equal(t, "upcoming", args[7])
}

// --- GetSale ---

func TestGetSale_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := newFakeStore(db).GetSale(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestGetSale_Scans(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	lat, lng := 45.5, -122.6
	hash := "c20fbmr5ty"

	db := &fakeDB{row: fakeRow{values: []any{
		"s1", "owner", "Moving sale", "", "1 Pine St",
		&start, &end, "live", (*time.Time)(nil),
		&lat, &lng, &hash, (*time.Time)(nil), true, start,
	}}}

	got, err := newFakeStore(db).GetSale(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusLive, got.Status)
	require.NotNil(t, got.Location)
	assert.Equal(t, model.Location{Lat: lat, Lng: lng}, *got.Location)
	assert.Equal(t, hash, got.Geohash)
	assert.True(t, got.ApproxUntilLive)
}

func TestGetSale_NoLocation(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{
		"s1", "", "t", "", "",
		(*time.Time)(nil), (*time.Time)(nil), "upcoming", (*time.Time)(nil),
		(*float64)(nil), (*float64)(nil), (*string)(nil), (*time.Time)(nil), false, time.Now(),
	}}}

	got, err := newFakeStore(db).GetSale(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, got.Location)
	assert.Empty(t, got.Geohash)
}

// --- ApplyStatusChunk ---

func TestApplyStatusChunk_CommitsOneTransaction(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{}}
	s := newFakeStore(&fakeDB{tx: tx})
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	updates := []model.StatusUpdate{
		{SaleID: "a", Status: model.StatusLive},
		{SaleID: "b", Status: model.StatusEnded},
	}
	require.NoError(t, s.ApplyStatusChunk(context.Background(), updates, at))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.True(t, tx.results.closed)
	require.Equal(t, 2, tx.batch.Len())

	q := tx.batch.QueuedQueries[1]
	assert.True(t, strings.Contains(q.SQL, "status_updated_at"))
	assert.Equal(t, []any{"b", "ended", at}, q.Arguments)
}

func TestApplyStatusChunk_FailureRollsBack(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{failAt: 2}}
	s := newFakeStore(&fakeDB{tx: tx})

	err := s.ApplyStatusChunk(context.Background(), []model.StatusUpdate{
		{SaleID: "a", Status: model.StatusLive},
		{SaleID: "b", Status: model.StatusLive},
		{SaleID: "c", Status: model.StatusLive},
	}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update status of b")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestApplyStatusChunk_CommitError(t *testing.T) {
	tx := &fakeTx{results: &fakeBatchResults{}, commitErr: errors.New("serialization failure")}
	s := newFakeStore(&fakeDB{tx: tx})

	err := s.ApplyStatusChunk(context.Background(), []model.StatusUpdate{{SaleID: "a", Status: model.StatusLive}}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
}

func TestApplyStatusChunk_EmptyIsNoop(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, newFakeStore(db).ApplyStatusChunk(context.Background(), nil, time.Now()))
}

func TestHealthCheck_PingFailure(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("timeout")}
	err := newFakeStore(db).HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres ping failed")
}
