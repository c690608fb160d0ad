package geocache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salemap/saled/pkg/model"
)

// Querier is the subset of pgxpool.Pool used by PGCache.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGCache stores entries in the geocache table.
type PGCache struct {
	db Querier
}

// NewPGCache wraps a pool (or any Querier).
func NewPGCache(db Querier) *PGCache {
	return &PGCache{db: db}
}

const selectEntrySQL = `
	SELECT address, lat, lng, updated_at
	FROM geocache
	WHERE key = $1`

// The address column keeps its first non-empty value.
const upsertEntrySQL = `
	INSERT INTO geocache (key, address, lat, lng, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (key)
	DO UPDATE SET
		address = COALESCE(NULLIF(geocache.address, ''), EXCLUDED.address),
		lat = EXCLUDED.lat,
		lng = EXCLUDED.lng,
		updated_at = EXCLUDED.updated_at`

// Get returns the entry for key, or (nil, nil) when absent.
func (c *PGCache) Get(ctx context.Context, key string) (*model.GeocodeEntry, error) {
	var (
		address   string
		lat, lng  *float64
		updatedAt *time.Time
	)
	err := c.db.QueryRow(ctx, selectEntrySQL, key).Scan(&address, &lat, &lng, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("geocache get %s: %w", key, err)
	}

	entry := &model.GeocodeEntry{Key: key, Address: address, Lat: math.NaN(), Lng: math.NaN()}
	if lat != nil {
		entry.Lat = *lat
	}
	if lng != nil {
		entry.Lng = *lng
	}
	if updatedAt != nil {
		entry.UpdatedAt = *updatedAt
	}
	return entry, nil
}

// Put upserts entry with merge semantics.
func (c *PGCache) Put(ctx context.Context, entry model.GeocodeEntry) error {
	_, err := c.db.Exec(ctx, upsertEntrySQL,
		entry.Key,
		entry.Address,
		entry.Lat,
		entry.Lng,
		entry.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("geocache put %s: %w", entry.Key, err)
	}
	return nil
}
