package mapper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trialworks/criteria-engine/pkg/apperrors"
	"github.com/trialworks/criteria-engine/pkg/models"
)

// SQLiteCache persists mappings across process restarts using
// modernc.org/sqlite (pure Go, no cgo).
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at path and applies
// WAL mode and the schema.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}

	const migration = `
	CREATE TABLE IF NOT EXISTS criterion_mappings (
		criterion_text TEXT PRIMARY KEY,
		mapping        TEXT NOT NULL,
		confidence     REAL NOT NULL,
		reasoning      TEXT NOT NULL DEFAULT '',
		validated      INTEGER NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
		updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
	);
	`
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*CachedMapping, error) {
	var (
		mappingJSON string
		entry       CachedMapping
		validated   int
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT mapping, confidence, reasoning, validated FROM criterion_mappings WHERE criterion_text = ?`,
		key,
	).Scan(&mappingJSON, &entry.Confidence, &entry.Reasoning, &validated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get mapping: %w", err)
	}

	var mapping models.MimicMapping
	if err := json.Unmarshal([]byte(mappingJSON), &mapping); err != nil {
		return nil, fmt.Errorf("sqlite: decode cached mapping: %w", err)
	}
	entry.Mapping = &mapping
	entry.Validated = validated != 0
	return &entry, nil
}

// Set implements Cache, upserting on the criterion text.
func (c *SQLiteCache) Set(ctx context.Context, key string, entry *CachedMapping) error {
	mappingJSON, err := json.Marshal(entry.Mapping)
	if err != nil {
		return fmt.Errorf("sqlite: encode mapping: %w", err)
	}

	validated := 0
	if entry.Validated {
		validated = 1
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO criterion_mappings (criterion_text, mapping, confidence, reasoning, validated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(criterion_text) DO UPDATE SET
			mapping = excluded.mapping,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			validated = excluded.validated,
			updated_at = excluded.updated_at`,
		key, string(mappingJSON), entry.Confidence, entry.Reasoning, validated, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set mapping: %w", err)
	}
	return nil
}

// MarkValidated implements Cache. Unknown keys are a no-op.
func (c *SQLiteCache) MarkValidated(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE criterion_mappings SET validated = 1, updated_at = ? WHERE criterion_text = ?`,
		time.Now().UTC(), key,
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark validated: %w", err)
	}
	return nil
}

// Close implements Cache.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

var _ Cache = (*SQLiteCache)(nil)
