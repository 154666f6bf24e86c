package cachestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-shell/internal/fetch"
)

// MemoryStorage is a concurrency-safe in-memory Storage.
type MemoryStorage struct {
	mu sync.RWMutex

	// key: generation name
	generations map[string]*memoryGeneration
	order       []string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		generations: make(map[string]*memoryGeneration),
	}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, ok := s.generations[name]
	if !ok {
		gen = &memoryGeneration{name: name, entries: make(map[string]Entry)}
		s.generations[name] = gen
		s.order = append(s.order, name)
	}
	return gen, nil
}

func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.generations[name]
	return ok, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, ok := s.generations[name]
	if !ok {
		return false, nil
	}
	gen.markDeleted()
	delete(s.generations, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStorage) Match(ctx context.Context, key string) (*fetch.Response, error) {
	s.mu.RLock()
	gens := make([]*memoryGeneration, 0, len(s.order))
	for _, name := range s.order {
		gens = append(gens, s.generations[name])
	}
	s.mu.RUnlock()

	for _, gen := range gens {
		if resp, err := gen.Match(ctx, key); err == nil {
			return resp, nil
		}
	}
	return nil, ErrNotFound
}

type memoryGeneration struct {
	mu      sync.RWMutex
	name    string
	entries map[string]Entry
	deleted bool
}

func (g *memoryGeneration) Name() string { return g.name }

func (g *memoryGeneration) Match(_ context.Context, key string) (*fetch.Response, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[key]
	if !ok || g.deleted {
		return nil, ErrNotFound
	}
	return e.Response.Clone(), nil
}

func (g *memoryGeneration) Put(_ context.Context, key string, resp *fetch.Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deleted {
		return ErrGenerationDeleted
	}
	g.entries[key] = Entry{
		Key:      key,
		Response: resp.Clone(),
		StoredAt: time.Now().UTC(),
	}
	return nil
}

func (g *memoryGeneration) Keys(_ context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.entries))
	for k := range g.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (g *memoryGeneration) markDeleted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = true
	g.entries = make(map[string]Entry)
}
