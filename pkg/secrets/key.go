package secrets

import (
	"context"
	"fmt"
	"strings"
)

// StaticKey is an API key taken verbatim from configuration.
// An empty StaticKey means "not configured".
type StaticKey string

// APIKey implements the key source used by outbound API clients.
func (k StaticKey) APIKey(context.Context) (string, error) {
	return strings.TrimSpace(string(k)), nil
}

// SecretKey reads an API key from one field of a stored secret and caches it.
type SecretKey struct {
	provider Provider
	cache    *Cache[string]
	name     string
	field    string
}

// NewSecretKey builds a key source reading field from the secret called name.
func NewSecretKey(provider Provider, cache *Cache[string], name, field string) *SecretKey {
	return &SecretKey{
		provider: provider,
		cache:    cache,
		name:     name,
		field:    field,
	}
}

// APIKey returns the cached key or fetches it from the provider.
// A secret that exists but lacks the field yields an empty key, not an error.
func (s *SecretKey) APIKey(ctx context.Context) (string, error) {
	cacheKey := strings.ToLower(s.name + "|" + s.field)
	if key, ok := s.cache.Get(cacheKey); ok {
		return key, nil
	}

	values, err := s.provider.GetSecret(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("resolve api key from %q: %w", s.name, err)
	}

	key := strings.TrimSpace(values[s.field])
	s.cache.Put(cacheKey, key)
	return key, nil
}

// Invalidate drops the cached key so the next call refetches it.
func (s *SecretKey) Invalidate() {
	s.cache.Bust(strings.ToLower(s.name + "|" + s.field))
}
