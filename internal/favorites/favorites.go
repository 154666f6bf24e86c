// Package favorites manages the persisted list of favorite locations.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/i474232898/weather-shell/internal/kv"
)

const (
	// StorageKey is the kv key holding the JSON list.
	StorageKey = "neuron-weather-favorites"
	// MaxFavorites caps the list; the oldest record is evicted first.
	MaxFavorites = 8
)

var (
	ErrDuplicate   = errors.New("location is already a favorite")
	ErrNotFound    = errors.New("favorite not found")
	ErrCorrupt     = errors.New("stored favorites are not valid JSON")
	ErrInvalidName = errors.New("invalid location name")
)

var validate = validator.New()

// Location is one favorite record.
type Location struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Region   string    `json:"region"`
	Country  string    `json:"country"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	AddedAt  time.Time `json:"addedAt"`
	IsCustom bool      `json:"isCustom,omitempty"`
}

// Input is a location as returned by the weather API.
type Input struct {
	Name    string  `json:"name" validate:"required"`
	Region  string  `json:"region"`
	Country string  `json:"country" validate:"required"`
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Store reads and writes the favorites list in a kv.Store.
type Store struct {
	mu    sync.Mutex
	kv    kv.Store
	now   func() time.Time
	newID func() string
}

// New creates a Store over kv.
func New(store kv.Store) *Store {
	return &Store{
		kv:    store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// List returns favorites newest first. A missing key is an empty list.
func (s *Store) List(ctx context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add prepends a favorite. Duplicates by (name, country), compared
// case-insensitively, are rejected.
func (s *Store) Add(ctx context.Context, in Input) (Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Country = strings.TrimSpace(in.Country)
	if err := validate.Struct(in); err != nil {
		return Location{}, err
	}

	return s.insert(ctx, Location{
		Name:    in.Name,
		Region:  in.Region,
		Country: in.Country,
		Lat:     in.Lat,
		Lon:     in.Lon,
	})
}

// AddCustom prepends a free-text location with no coordinates.
func (s *Store) AddCustom(ctx context.Context, name string) (Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, fmt.Errorf("%w: custom location name is required", ErrInvalidName)
	}
	return s.insert(ctx, Location{
		Name:     name,
		Region:   "Custom",
		Country:  "Location",
		IsCustom: true,
	})
}

// Remove deletes the favorite with id and returns the removed record.
func (s *Store) Remove(ctx context.Context, id string) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Location{}, err
	}
	var removed *Location
	out := make([]Location, 0, len(list))
	for i := range list {
		if removed == nil && list[i].ID == id {
			removed = &list[i]
			continue
		}
		out = append(out, list[i])
	}
	if removed == nil {
		return Location{}, ErrNotFound
	}
	if err := s.save(ctx, out); err != nil {
		return Location{}, err
	}
	return *removed, nil
}

func (s *Store) insert(ctx context.Context, loc Location) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Location{}, err
	}
	if indexOf(list, loc.Name, loc.Country) >= 0 {
		return Location{}, ErrDuplicate
	}

	loc.ID = s.newID()
	loc.AddedAt = s.now()

	list = append([]Location{loc}, list...)
	if len(list) > MaxFavorites {
		list = list[:MaxFavorites]
	}
	if err := s.save(ctx, list); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Store) load(ctx context.Context) ([]Location, error) {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []Location{}, nil
	}
	if err != nil {
		return nil, err
	}

	var list []Location
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(list) > MaxFavorites {
		list = list[:MaxFavorites]
	}
	return list, nil
}

func (s *Store) save(ctx context.Context, list []Location) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, StorageKey, string(b))
}

func indexOf(list []Location, name, country string) int {
	for i, l := range list {
		if strings.EqualFold(l.Name, name) && strings.EqualFold(l.Country, country) {
			return i
		}
	}
	return -1
}
