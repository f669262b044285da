package tokenstore

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pario-ai/l402/pkg/models"
)

// DefaultMemorySize bounds a MemoryStore when no size is given.
const DefaultMemorySize = 4096

// MemoryStore is the default in-process credential cache. The least recently
// used credential is evicted once the store is full.
type MemoryStore struct {
	tokens *lru.Cache[string, models.Credential]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryStore creates a MemoryStore holding up to size credentials.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	c, err := lru.New[string, models.Credential](size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &MemoryStore{tokens: c}, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, resource string) (*models.Credential, error) {
	cred, ok := m.tokens.Get(NormalizeURL(resource))
	if !ok {
		m.misses.Add(1)
		return nil, nil
	}
	m.hits.Add(1)
	return &cred, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, resource string, cred models.Credential) error {
	m.tokens.Add(NormalizeURL(resource), cred)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, resource string) error {
	m.tokens.Remove(NormalizeURL(resource))
	return nil
}

// Stats returns entry count and lookup counters.
func (m *MemoryStore) Stats() (models.TokenStats, error) {
	return models.TokenStats{
		Entries: int64(m.tokens.Len()),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

// Clear drops every credential.
func (m *MemoryStore) Clear() {
	m.tokens.Purge()
}
