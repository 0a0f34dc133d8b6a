// Package sqlite is the production catalogue.Store: a single embedded
// SQLite file opened in WAL mode, with writes serialized through one
// mutex so the single-writer/multi-reader discipline holds even though
// database/sql pools connections under the hood.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/originpress/inkwell/internal/catalogue"
	"github.com/originpress/inkwell/internal/catalogue/sqlite/migrations"
	"github.com/originpress/inkwell/internal/domain"
)

// Store is the SQLite-backed catalogue.Store.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writes; reads proceed without it
}

// Open creates or opens the catalogue database at path, applying any
// pending migrations before returning.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withWriteLock(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func marshalJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalInt64s(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var out []int64
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalFloatMap(raw string) map[string]float64 {
	out := make(map[string]float64)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalIntMap(raw string) map[string]int {
	out := make(map[string]int)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// marshalWeekdays encodes the three-valued weekday gate: nil stays SQL
// NULL, a non-nil slice (including empty) becomes its JSON array.
func marshalWeekdays(days *[]int) interface{} {
	if days == nil {
		return nil
	}
	return marshalJSON(*days)
}

func unmarshalWeekdays(raw sql.NullString) *[]int {
	if !raw.Valid {
		return nil
	}
	days := unmarshalIntsOrEmpty(raw.String)
	return &days
}

func unmarshalIntsOrEmpty(raw string) []int {
	days := make([]int, 0)
	if raw == "" {
		return days
	}
	_ = json.Unmarshal([]byte(raw), &days)
	return days
}

func marshalLimitPerCategory(l domain.LimitPerCategory) string {
	return marshalJSON(struct {
		Uniform      *int           `json:"uniform,omitempty"`
		PerCategory  map[string]int `json:"per_category,omitempty"`
		DefaultLimit int            `json:"default_limit,omitempty"`
	}{Uniform: l.Uniform, PerCategory: l.PerCategory, DefaultLimit: l.DefaultLimit})
}

func unmarshalLimitPerCategory(raw string) domain.LimitPerCategory {
	var decoded struct {
		Uniform      *int           `json:"uniform,omitempty"`
		PerCategory  map[string]int `json:"per_category,omitempty"`
		DefaultLimit int            `json:"default_limit,omitempty"`
	}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &decoded)
	}
	return domain.LimitPerCategory{Uniform: decoded.Uniform, PerCategory: decoded.PerCategory, DefaultLimit: decoded.DefaultLimit}
}

var _ catalogue.Store = (*Store)(nil)
