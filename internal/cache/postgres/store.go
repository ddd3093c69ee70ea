// Package postgres provides the PostgreSQL-backed durable tier of the
// translation cache.
//
// The store persists one row per cache key in the translation_cache table:
// the aggregate as a JSONB payload plus the confidence summary and access
// bookkeeping as plain columns so operators can query them directly. The
// memory tier decides *what* gets persisted (only aggregates above the
// confidence threshold reach [Store.Put]); this package only persists.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	c, _ := cache.New(1024, cache.WithDurable(store))
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lingocast/internal/cache"
	"github.com/MrWong99/lingocast/internal/translate"
)

var _ cache.DurableStore = (*Store)(nil)

const ddlTranslationCache = `
CREATE TABLE IF NOT EXISTS translation_cache (
    key_hash         TEXT              PRIMARY KEY,
    payload          JSONB             NOT NULL,
    mean_confidence  DOUBLE PRECISION  NOT NULL,
    entry_count      INT               NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now(),
    accessed_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    access_count     BIGINT            NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_translation_cache_mean_confidence
    ON translation_cache (mean_confidence);

CREATE INDEX IF NOT EXISTS idx_translation_cache_accessed_at
    ON translation_cache (accessed_at);
`

// InitSchema creates or ensures the translation_cache table and its indexes.
// It is idempotent and safe to run on every application start.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranslationCache); err != nil {
		return fmt.Errorf("translation store: init schema: %w", err)
	}
	return nil
}

// Store is the durable cache tier backed by a single [pgxpool.Pool].
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// verifies it with a ping and runs [InitSchema].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("translation store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("translation store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("translation store: ping: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Get implements [cache.DurableStore]. It returns (nil, nil) when key has no
// row. The entry's summary is recomputed from the payload; raw scores are
// never persisted, so promoted entries report zero floored entries.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	const q = `
		SELECT payload, created_at, access_count
		FROM   translation_cache
		WHERE  key_hash = $1`

	e := &cache.Entry{KeyHash: key}
	var payload []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&payload, &e.CreatedAt, &e.AccessCount)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("translation store: get: %w", err)
	}

	var tr translate.Translation
	if err := json.Unmarshal(payload, &tr); err != nil {
		return nil, fmt.Errorf("translation store: decode payload: %w", err)
	}
	e.Translation = &tr
	e.Summary = tr.Summary()
	return e, nil
}

// Put implements [cache.DurableStore]. Re-putting an existing key replaces
// the payload and counts as one more access.
func (s *Store) Put(ctx context.Context, e *cache.Entry) error {
	const q = `
		INSERT INTO translation_cache
		    (key_hash, payload, mean_confidence, entry_count, created_at, accessed_at, access_count)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (key_hash) DO UPDATE SET
		    payload         = EXCLUDED.payload,
		    mean_confidence = EXCLUDED.mean_confidence,
		    entry_count     = EXCLUDED.entry_count,
		    accessed_at     = now(),
		    access_count    = translation_cache.access_count + 1`

	payload, err := json.Marshal(e.Translation)
	if err != nil {
		return fmt.Errorf("translation store: encode payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, q,
		e.KeyHash,
		payload,
		e.Summary.Mean,
		e.Summary.Entries,
		e.CreatedAt,
		e.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("translation store: put: %w", err)
	}
	return nil
}

// Touch implements [cache.DurableStore]. It bumps the access bookkeeping for
// key; a missing key is not an error.
func (s *Store) Touch(ctx context.Context, key string) error {
	const q = `
		UPDATE translation_cache
		SET    accessed_at  = now(),
		       access_count = access_count + 1
		WHERE  key_hash = $1`

	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("translation store: touch: %w", err)
	}
	return nil
}

// Ping verifies the database connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("translation store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// isNoRows reports whether err is the pgx "no rows" sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
