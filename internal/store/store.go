package store

import (
	"context"
	"errors"
	"time"

	"github.com/salemap/saled/pkg/model"
)

var (
	ErrSaleNotFound = errors.New("sale not found")
	ErrSaleExists   = errors.New("sale already exists")
)

// SaleStore is the document store the service runs on.
type SaleStore interface {
	ListSales(ctx context.Context) ([]model.Sale, error)
	ListActiveSales(ctx context.Context, now time.Time) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	CreateSale(ctx context.Context, sale model.Sale) error
	// SetLocation writes the location only while the sale has none and reports
	// whether it did.
	SetLocation(ctx context.Context, id string, loc model.Location, geohash string, at time.Time) (bool, error)
	// ApplyStatusChunk writes every update in one transaction.
	ApplyStatusChunk(ctx context.Context, updates []model.StatusUpdate, at time.Time) error
	HealthCheck(ctx context.Context) error
	Close() error
}
