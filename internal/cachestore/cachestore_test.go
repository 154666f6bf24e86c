package cachestore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/i474232898/weather-shell/internal/fetch"
	"github.com/i474232898/weather-shell/internal/sqlitedb"
)

func newSQLite(t *testing.T) Storage {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStorage(db)
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	return s
}

func storages(t *testing.T) map[string]Storage {
	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": newSQLite(t),
	}
}

func response(body string) *fetch.Response {
	return &fetch.Response{
		URL:    "https://weather.local/",
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(body),
		Type:   fetch.TypeBasic,
	}
}

func TestPutMatchReplace(t *testing.T) {
	ctx := context.Background()
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			gen, err := s.Open(ctx, "v1")
			if err != nil {
				t.Fatalf("open: %v", err)
			}

			if _, err := gen.Match(ctx, "GET https://weather.local/"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := gen.Put(ctx, "GET https://weather.local/", response("first")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := gen.Put(ctx, "GET https://weather.local/", response("second")); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := gen.Match(ctx, "GET https://weather.local/")
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if string(got.Body) != "second" {
				t.Fatalf("expected last write to win, got %q", got.Body)
			}
			if got.Header.Get("Content-Type") != "text/html" || got.Type != fetch.TypeBasic {
				t.Fatalf("metadata not preserved: %+v", got)
			}

			keys, err := gen.Keys(ctx)
			if err != nil || len(keys) != 1 {
				t.Fatalf("expected one key, got %v (%v)", keys, err)
			}
		})
	}
}

func TestLargeBodiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	body := bytes.Repeat([]byte("bundle.js;"), 4096)

	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			gen, _ := s.Open(ctx, "v1")
			resp := response("")
			resp.Body = body
			if err := gen.Put(ctx, "GET https://weather.local/static/js/bundle.js", resp); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := gen.Match(ctx, "GET https://weather.local/static/js/bundle.js")
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if !bytes.Equal(got.Body, body) {
				t.Fatalf("body mismatch: got %d bytes", len(got.Body))
			}
		})
	}
}

func TestDeleteGeneration(t *testing.T) {
	ctx := context.Background()
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			old, _ := s.Open(ctx, "v1")
			_ = old.Put(ctx, "GET https://weather.local/", response("old"))
			if _, err := s.Open(ctx, "v2"); err != nil {
				t.Fatalf("open: %v", err)
			}

			names, _ := s.Names(ctx)
			if len(names) != 2 || names[0] != "v1" || names[1] != "v2" {
				t.Fatalf("unexpected names %v", names)
			}

			deleted, err := s.Delete(ctx, "v1")
			if err != nil || !deleted {
				t.Fatalf("delete: %v %v", deleted, err)
			}
			if ok, _ := s.Has(ctx, "v1"); ok {
				t.Fatalf("v1 should be gone")
			}
			if _, err := s.Match(ctx, "GET https://weather.local/"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("entries of a deleted generation must not match, got %v", err)
			}

			// A handle opened before deletion must not resurrect entries.
			if err := old.Put(ctx, "GET https://weather.local/", response("late")); !errors.Is(err, ErrGenerationDeleted) {
				t.Fatalf("expected ErrGenerationDeleted, got %v", err)
			}

			deleted, err = s.Delete(ctx, "v1")
			if err != nil || deleted {
				t.Fatalf("second delete should report false, got %v %v", deleted, err)
			}
		})
	}
}

func TestStorageMatchSearchesAllGenerations(t *testing.T) {
	ctx := context.Background()
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := s.Open(ctx, "a")
			b, _ := s.Open(ctx, "b")
			_ = b.Put(ctx, "GET https://weather.local/manifest.json", response("b"))
			_ = a.Put(ctx, "GET https://weather.local/", response("a-root"))
			_ = b.Put(ctx, "GET https://weather.local/", response("b-root"))

			got, err := s.Match(ctx, "GET https://weather.local/manifest.json")
			if err != nil || string(got.Body) != "b" {
				t.Fatalf("expected match from b, got %v %v", got, err)
			}
			got, err = s.Match(ctx, "GET https://weather.local/")
			if err != nil || string(got.Body) != "a-root" {
				t.Fatalf("oldest generation should win, got %v %v", got, err)
			}
		})
	}
}

func TestMatchReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	gen, _ := s.Open(ctx, "v1")
	_ = gen.Put(ctx, "k", response("abc"))

	got, _ := gen.Match(ctx, "k")
	got.Body[0] = 'z'

	again, _ := gen.Match(ctx, "k")
	if string(again.Body) != "abc" {
		t.Fatalf("stored entry was mutated through a match result")
	}
}
