package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/salemap/saled/pkg/model"
)

// MemoryStore is a process-local SaleStore used when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	sales map[string]model.Sale
}

func NewMemory() *MemoryStore {
	return &MemoryStore{sales: make(map[string]model.Sale)}
}

func (m *MemoryStore) ListSales(context.Context) ([]model.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Sale, 0, len(m.sales))
	for _, s := range m.sales {
		out = append(out, cloneSale(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ListActiveSales(_ context.Context, now time.Time) ([]model.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Sale
	for _, s := range m.sales {
		if s.EndsAt == nil || s.EndsAt.Before(now) {
			continue
		}
		out = append(out, cloneSale(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndsAt.Equal(*out[j].EndsAt) {
			return out[i].EndsAt.Before(*out[j].EndsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetSale(_ context.Context, id string) (*model.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	c := cloneSale(s)
	return &c, nil
}

func (m *MemoryStore) CreateSale(_ context.Context, sale model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sales[sale.ID]; ok {
		return ErrSaleExists
	}
	m.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (m *MemoryStore) SetLocation(_ context.Context, id string, loc model.Location, geohash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok || s.Location != nil {
		return false, nil
	}
	s.Location = &loc
	s.Geohash = geohash
	s.GeocodedAt = &at
	m.sales[id] = s
	return true, nil
}

func (m *MemoryStore) ApplyStatusChunk(_ context.Context, updates []model.StatusUpdate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		s, ok := m.sales[u.SaleID]
		if !ok {
			continue
		}
		s.Status = u.Status
		ts := at
		s.StatusUpdatedAt = &ts
		m.sales[u.SaleID] = s
	}
	return nil
}

func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func cloneSale(s model.Sale) model.Sale {
	c := s
	c.StartsAt = clonePtr(s.StartsAt)
	c.EndsAt = clonePtr(s.EndsAt)
	c.StatusUpdatedAt = clonePtr(s.StatusUpdatedAt)
	c.GeocodedAt = clonePtr(s.GeocodedAt)
	c.Location = clonePtr(s.Location)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
