package store

import (
	"context"
	"sync"
	"time"

	"jstagram/pkg/domain"
)

// MemoryCatalog keeps pictures in-process, in insertion order.
type MemoryCatalog struct {
	mu       sync.RWMutex
	pictures []domain.Picture
	nextID   int64
}

// MemoryOption configures a MemoryCatalog.
type MemoryOption func(*MemoryCatalog)

// WithSeed preloads records. The next issued id follows the highest seeded id.
func WithSeed(pictures []domain.Picture) MemoryOption {
	return func(m *MemoryCatalog) {
		for _, p := range pictures {
			m.pictures = append(m.pictures, p)
			if p.ID >= m.nextID {
				m.nextID = p.ID + 1
			}
		}
	}
}

// NewMemoryCatalog initializes an empty in-memory catalog.
func NewMemoryCatalog(options ...MemoryOption) *MemoryCatalog {
	m := &MemoryCatalog{nextID: 1}
	for _, option := range options {
		if option != nil {
			option(m)
		}
	}
	return m
}

// SamplePictures returns the demo records shipped with the gallery.
func SamplePictures() []domain.Picture {
	return []domain.Picture{
		{ID: 1, Title: "I caught a little fish...", Filename: "1.png"},
		{ID: 2, Title: "The fish I caught was this big.", Filename: "2.png"},
		{ID: 3, Title: "The fish I caught was quite big.", Filename: "3.png"},
		{ID: 4, Title: "I caught the biggest fish you've ever seen.", Filename: "4.png"},
	}
}

// Query resolves q against a snapshot taken under the read lock.
func (m *MemoryCatalog) Query(_ context.Context, q Query) ([]domain.Picture, error) {
	m.mu.RLock()
	snapshot := make([]domain.Picture, len(m.pictures))
	copy(snapshot, m.pictures)
	m.mu.RUnlock()
	return Resolve(snapshot, q), nil
}

// Insert appends a record with the next id.
func (m *MemoryCatalog) Insert(_ context.Context, title, filename string) (domain.Picture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Picture{
		ID:        m.nextID,
		Title:     title,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	}
	m.nextID++
	m.pictures = append(m.pictures, p)
	return p, nil
}

// Remove deletes the record with id and returns it.
func (m *MemoryCatalog) Remove(_ context.Context, id int64) (domain.Picture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pictures {
		if p.ID == id {
			m.pictures = append(m.pictures[:i:i], m.pictures[i+1:]...)
			return p, nil
		}
	}
	return domain.Picture{}, ErrNotFound
}
