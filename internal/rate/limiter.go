package rate

import (
	"context"
	"sync"

	xrate "golang.org/x/time/rate"
)

// Config defines token-bucket parameters for an outbound API.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Manager holds one limiter per key (typically one per upstream API key).
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*xrate.Limiter
	defaults Config
}

// NewManager creates a Manager. A non-positive rate disables limiting.
func NewManager(defaults Config) *Manager {
	if defaults.Burst <= 0 {
		defaults.Burst = 1
	}
	return &Manager{
		limiters: make(map[string]*xrate.Limiter),
		defaults: defaults,
	}
}

// Limiter returns the limiter for key, creating it on first use.
func (m *Manager) Limiter(key string) *xrate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	limit := xrate.Inf
	if m.defaults.RequestsPerSecond > 0 {
		limit = xrate.Limit(m.defaults.RequestsPerSecond)
	}
	lim := xrate.NewLimiter(limit, m.defaults.Burst)
	m.limiters[key] = lim
	return lim
}

// Wait blocks until key may issue a request or ctx is done.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.Limiter(key).Wait(ctx)
}
