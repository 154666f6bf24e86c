// Package cachestore holds named cache generations of request/response pairs.
package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/weather-shell/internal/fetch"
)

var (
	// ErrNotFound is returned when no entry matches a key.
	ErrNotFound = errors.New("no cache entry for key")
	// ErrGenerationDeleted is returned by writes into a generation that was
	// deleted after it was opened.
	ErrGenerationDeleted = errors.New("cache generation was deleted")
)

// Entry is a stored response snapshot.
type Entry struct {
	Key      string
	Response *fetch.Response
	StoredAt time.Time
}

// Generation is one named, versioned cache.
type Generation interface {
	Name() string
	// Match returns a copy of the stored response for key.
	Match(ctx context.Context, key string) (*fetch.Response, error)
	// Put stores resp under key, replacing any previous entry.
	Put(ctx context.Context, key string, resp *fetch.Response) error
	Keys(ctx context.Context) ([]string, error)
}

// Storage is the set of generations, keyed by name.
type Storage interface {
	// Open returns the named generation, creating it if needed.
	Open(ctx context.Context, name string) (Generation, error)
	Has(ctx context.Context, name string) (bool, error)
	// Names lists generations in creation order.
	Names(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
	// Match searches every generation in creation order.
	Match(ctx context.Context, key string) (*fetch.Response, error)
}
