package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/i474232898/weather-shell/internal/fetch"
)

const (
	bodyRaw  byte = 0
	bodyZstd byte = 2

	// bodies smaller than this are stored uncompressed
	compressThreshold = 512
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_generations (
    name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
    generation TEXT NOT NULL REFERENCES cache_generations(name) ON DELETE CASCADE,
    key TEXT NOT NULL,
    url TEXT NOT NULL,
    status INTEGER NOT NULL,
    type TEXT NOT NULL,
    header TEXT NOT NULL,
    body BLOB NOT NULL,
    stored_at INTEGER NOT NULL,
    PRIMARY KEY (generation, key)
);`

// SQLiteStorage persists generations in SQLite. Bodies are zstd-compressed.
type SQLiteStorage struct {
	db *sql.DB

	allocEnc sync.Once
	allocDec sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewSQLiteStorage applies the schema on db and returns the storage.
func NewSQLiteStorage(db *sql.DB) (*SQLiteStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(ctx context.Context, name string) (Generation, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_generations(name, created_at) VALUES(?, ?)`,
		name, time.Now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("open generation %s: %w", name, err)
	}
	return &sqliteGeneration{s: s, name: name}, nil
}

func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cache_generations WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_generations ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE generation = ?`, name); err != nil {
		_ = tx.Rollback()
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = ?`, name)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Match(ctx context.Context, key string) (*fetch.Response, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT e.url, e.status, e.type, e.header, e.body
FROM cache_entries e JOIN cache_generations g ON g.name = e.generation
WHERE e.key = ?
ORDER BY g.created_at, g.name
LIMIT 1`, key)
	return s.scanResponse(row)
}

func (s *SQLiteStorage) scanResponse(row *sql.Row) (*fetch.Response, error) {
	var (
		resp   fetch.Response
		typ    string
		header string
		body   []byte
	)
	if err := row.Scan(&resp.URL, &resp.Status, &typ, &header, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	resp.Type = fetch.ResponseType(typ)
	resp.Header = make(http.Header)
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, fmt.Errorf("decode cached header: %w", err)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	decoded, err := s.decodeBody(body)
	if err != nil {
		return nil, err
	}
	resp.Body = decoded
	return &resp, nil
}

func (s *SQLiteStorage) encodeBody(p []byte) []byte {
	if len(p) < compressThreshold {
		return append([]byte{bodyRaw}, p...)
	}
	return s.getZstdEncoder().EncodeAll(p, []byte{bodyZstd})
}

func (s *SQLiteStorage) decodeBody(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("cached body is missing its encoding byte")
	}
	switch p[0] {
	case bodyRaw:
		return p[1:], nil
	case bodyZstd:
		return s.getZstdDecoder().DecodeAll(p[1:], nil)
	default:
		return nil, fmt.Errorf("unsupported cached body encoding %d", p[0])
	}
}

func (s *SQLiteStorage) getZstdEncoder() *zstd.Encoder {
	s.allocEnc.Do(func() {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(err)
		}
		s.enc = enc
	})
	return s.enc
}

func (s *SQLiteStorage) getZstdDecoder() *zstd.Decoder {
	s.allocDec.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(err)
		}
		s.dec = dec
	})
	return s.dec
}

type sqliteGeneration struct {
	s    *SQLiteStorage
	name string
}

func (g *sqliteGeneration) Name() string { return g.name }

func (g *sqliteGeneration) Match(ctx context.Context, key string) (*fetch.Response, error) {
	row := g.s.db.QueryRowContext(ctx,
		`SELECT url, status, type, header, body FROM cache_entries WHERE generation = ? AND key = ?`,
		g.name, key)
	return g.s.scanResponse(row)
}

func (g *sqliteGeneration) Put(ctx context.Context, key string, resp *fetch.Response) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	tx, err := g.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM cache_generations WHERE name = ?`, g.name).Scan(&n); err != nil {
		_ = tx.Rollback()
		return err
	}
	if n == 0 {
		_ = tx.Rollback()
		return ErrGenerationDeleted
	}
	_, err = tx.ExecContext(ctx, `
INSERT OR REPLACE INTO cache_entries(generation, key, url, status, type, header, body, stored_at)
VALUES(?,?,?,?,?,?,?,?)`,
		g.name, key, resp.URL, resp.Status, string(resp.Type), string(header),
		g.s.encodeBody(resp.Body), time.Now().UTC().UnixNano())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (g *sqliteGeneration) Keys(ctx context.Context) ([]string, error) {
	rows, err := g.s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE generation = ? ORDER BY key`, g.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
