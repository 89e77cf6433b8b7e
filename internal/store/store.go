// Package store persists a source's item set as a whole-collection snapshot.
package store

import (
	"context"
	"sync"

	"github.com/Adda-Baaj/feedsmith/internal/domain"
)

// Store loads and saves the complete item set of one source.
type Store interface {
	Load(ctx context.Context) ([]domain.Item, error)
	Save(ctx context.Context, items []domain.Item) error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	items []domain.Item
	saves int
}

// NewMemory returns a Memory store seeded with items.
func NewMemory(items ...domain.Item) *Memory {
	m := &Memory{}
	m.items = append(m.items, items...)
	return m
}

func (m *Memory) Load(context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Item, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *Memory) Save(_ context.Context, items []domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make([]domain.Item, len(items))
	copy(m.items, items)
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
