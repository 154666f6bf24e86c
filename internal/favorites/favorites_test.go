package favorites

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/i474232898/weather-shell/internal/kv"
)

func TestAddKeepsEightMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore())

	for i := 1; i <= 9; i++ {
		if _, err := s.Add(ctx, Input{Name: fmt.Sprintf("City%d", i), Country: "FR"}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != MaxFavorites {
		t.Fatalf("expected %d favorites, got %d", MaxFavorites, len(list))
	}
	if list[0].Name != "City9" {
		t.Fatalf("newest favorite should be first, got %s", list[0].Name)
	}
	if list[len(list)-1].Name != "City2" {
		t.Fatalf("oldest favorite should be evicted, last is %s", list[len(list)-1].Name)
	}
}

func TestAddRejectsCaseInsensitiveDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore())

	if _, err := s.Add(ctx, Input{Name: "London", Region: "City of London", Country: "United Kingdom"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := s.Add(ctx, Input{Name: "LONDON", Country: "united kingdom"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same name in another country is a different place.
	if _, err := s.Add(ctx, Input{Name: "London", Country: "Canada"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 favorites, got %d", len(list))
	}
}

func TestAddValidatesInput(t *testing.T) {
	s := New(kv.NewMemoryStore())
	if _, err := s.Add(context.Background(), Input{Name: "Nowhere", Country: "XX", Lat: 123}); err == nil {
		t.Fatal("expected validation error for latitude out of range")
	}
	if _, err := s.Add(context.Background(), Input{Country: "FR"}); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestAddCustomAndRemove(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore())

	loc, err := s.AddCustom(ctx, "  Base camp ")
	if err != nil {
		t.Fatalf("add custom: %v", err)
	}
	if !loc.IsCustom || loc.Name != "Base camp" || loc.Region != "Custom" || loc.ID == "" {
		t.Fatalf("unexpected custom record %+v", loc)
	}

	removed, err := s.Remove(ctx, loc.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.ID != loc.ID || removed.Name != "Base camp" {
		t.Fatalf("unexpected removed record %+v", removed)
	}
	if _, err := s.Remove(ctx, loc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddCustomRejectsBlankName(t *testing.T) {
	s := New(kv.NewMemoryStore())
	for _, name := range []string{"", "  ", "\t\n"} {
		if _, err := s.AddCustom(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("name %q: expected ErrInvalidName, got %v", name, err)
		}
	}
	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("blank names must not be stored, got %v", list)
	}
}

func TestCorruptListIsReported(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	_ = store.Set(ctx, StorageKey, "{not json")

	if _, err := New(store).List(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
