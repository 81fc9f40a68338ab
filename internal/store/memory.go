package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gearhound/price-engine/internal/models"
)

var (
	ErrItemNotFound    = errors.New("tracked item not found")
	ErrScraperNotFound = errors.New("scraper config not found")
)

// MemoryStore is an in-memory ItemStore + ConfigSource, used by tests
// and single-process deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]*models.TrackedItem
	configs map[string]*models.ScraperConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]*models.TrackedItem),
		configs: make(map[string]*models.ScraperConfig),
	}
}

func (s *MemoryStore) PutItem(item *models.TrackedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

func (s *MemoryStore) PutConfig(cfg *models.ScraperConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
}

func (s *MemoryStore) Item(_ context.Context, id string) (*models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (s *MemoryStore) Items(_ context.Context) ([]*models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrackedItem, 0, len(s.items))
	for _, item := range s.items {
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) ScraperConfig(_ context.Context, id string) (*models.ScraperConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrScraperNotFound
	}
	return cfg, nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.LastAttemptAt = at
	return nil
}

func (s *MemoryStore) Update(_ context.Context, item *models.TrackedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}
