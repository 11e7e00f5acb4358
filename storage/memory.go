package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"imobot/models"
)

// MemoryStore keeps listings in process memory. Used for dry runs
// (STORE_BACKEND=memory) and tests.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]*models.Listing
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]*models.Listing), now: time.Now}
}

func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.listings[id]
	return ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listings[l.ID]; ok {
		return ErrConflict
	}
	stored := *l
	stored.FoundAt = m.now()
	m.listings[l.ID] = &stored
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (*models.SiteStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &models.SiteStats{Total: len(m.listings), BySite: make(map[string]int)}
	for _, l := range m.listings {
		stats.BySite[l.Site]++
	}
	return stats, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*models.Listing, error) {
	m.mu.Lock()
	out := make([]*models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		cp := *l
		out = append(out, &cp)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FoundAt.Equal(out[j].FoundAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FoundAt.After(out[j].FoundAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored listings.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listings)
}

func (m *MemoryStore) Close() error { return nil }
