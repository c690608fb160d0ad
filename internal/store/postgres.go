package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/salemap/saled/pkg/model"
)

//go:embed schema.sql
var schemaSQL string

var errPGUnavailable = errors.New("postgres unavailable")

// pgDB is the subset of *pgxpool.Pool the store uses.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PGStore keeps sales in Postgres.
type PGStore struct {
	db     pgDB
	pool   *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewPG connects a pool to pgURL.
func NewPG(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PGStore{db: pool, pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pool for components sharing the connection.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies the embedded schema. It is idempotent.
func (s *PGStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return errPGUnavailable
	}
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const saleColumns = `
	id, owner_id, title, description, address,
	starts_at, ends_at, status, status_updated_at,
	lat, lng, geohash, geocoded_at, approx_until_live, created_at`

func (s *PGStore) ListSales(ctx context.Context) ([]model.Sale, error) {
	if s.db == nil {
		return nil, errPGUnavailable
	}
	rows, err := s.db.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return collectSales(rows)
}

// ListActiveSales returns sales that have not finished by now, soonest-ending first.
func (s *PGStore) ListActiveSales(ctx context.Context, now time.Time) ([]model.Sale, error) {
	if s.db == nil {
		return nil, errPGUnavailable
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ends_at >= $1
		ORDER BY ends_at ASC, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list active sales: %w", err)
	}
	return collectSales(rows)
}

func (s *PGStore) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	if s.db == nil {
		return nil, errPGUnavailable
	}
	row := s.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale %s: %w", id, err)
	}
	return &sale, nil
}

func (s *PGStore) CreateSale(ctx context.Context, sale model.Sale) error {
	if s.db == nil {
		return errPGUnavailable
	}
	var lat, lng *float64
	if sale.Location != nil {
		lat, lng = &sale.Location.Lat, &sale.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sales (
			id, owner_id, title, description, address,
			starts_at, ends_at, status, status_updated_at,
			lat, lng, geohash, geocoded_at, approx_until_live, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, sale.ID, sale.OwnerID, sale.Title, sale.Description, sale.Address,
		sale.StartsAt, sale.EndsAt, string(sale.Status), sale.StatusUpdatedAt,
		lat, lng, nullableString(sale.Geohash), sale.GeocodedAt, sale.ApproxUntilLive, sale.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSaleExists
		}
		s.logger.Error("store.pg.create_sale_failed", zap.String("sale_id", sale.ID), zap.Error(err))
		return fmt.Errorf("create sale %s: %w", sale.ID, err)
	}
	return nil
}

func (s *PGStore) SetLocation(ctx context.Context, id string, loc model.Location, geohash string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errPGUnavailable
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE sales
		SET lat = $2, lng = $3, geohash = $4, geocoded_at = $5
		WHERE id = $1 AND lat IS NULL AND lng IS NULL
	`, id, loc.Lat, loc.Lng, geohash, at)
	if err != nil {
		s.logger.Error("store.pg.set_location_failed", zap.String("sale_id", id), zap.Error(err))
		return false, fmt.Errorf("set location %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyStatusChunk queues one UPDATE per record and commits them together.
func (s *PGStore) ApplyStatusChunk(ctx context.Context, updates []model.StatusUpdate, at time.Time) error {
	if s.db == nil {
		return errPGUnavailable
	}
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, u := range updates {
		b.Queue(`
			UPDATE sales
			SET status = $2, status_updated_at = $3
			WHERE id = $1`, u.SaleID, string(u.Status), at)
	}

	br := tx.SendBatch(ctx, b)
	for i := range updates {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("update status of %s: %w", updates[i].SaleID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return errPGUnavailable
	}
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func collectSales(rows pgx.Rows) ([]model.Sale, error) {
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func scanSale(row pgx.Row) (model.Sale, error) {
	var (
		s        model.Sale
		status   string
		lat, lng *float64
		geohash  *string
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Title, &s.Description, &s.Address,
		&s.StartsAt, &s.EndsAt, &status, &s.StatusUpdatedAt,
		&lat, &lng, &geohash, &s.GeocodedAt, &s.ApproxUntilLive, &s.CreatedAt,
	)
	if err != nil {
		return model.Sale{}, err
	}
	s.Status = model.Status(status)
	if lat != nil && lng != nil {
		s.Location = &model.Location{Lat: *lat, Lng: *lng}
	}
	if geohash != nil {
		s.Geohash = *geohash
	}
	return s, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
