/*-------------------------------------------------------------------------
 *
 * pgEdge Assistant Retrieval Engine
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package history persists shell query history in a local SQLite file.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Record is one executed search
type Record struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Query       string    `json:"query"`
	Mode        string    `json:"mode"` // "search", "graph", "conversation", "expand"
	ResultCount int       `json:"result_count"`
	TopScore    float64   `json:"top_score"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store manages search history persistence using SQLite
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewStore opens (or creates) the history database at the given file path
func NewStore(path string) (*Store, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{
		db:   db,
		path: path,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// DefaultPath returns the history file path in the user's home directory.
// Falls back to the working directory if the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pgedge-retrieval-history.db"
	}
	return filepath.Join(home, ".pgedge", "retrieval-history.db")
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS search_history (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        query TEXT NOT NULL,
        mode TEXT NOT NULL,
        result_count INTEGER NOT NULL,
        top_score REAL NOT NULL,
        elapsed_ms INTEGER NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_search_history_created_at
        ON search_history(created_at DESC);

    CREATE INDEX IF NOT EXISTS idx_search_history_tenant
        ON search_history(tenant_id);
    `

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the history file path
func (s *Store) Path() string {
	return s.path
}

// Append records an executed search. A missing ID or timestamp is filled in.
func (s *Store) Append(rec Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO search_history (id, tenant_id, query, mode, result_count, top_score, elapsed_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.Query, rec.Mode, rec.ResultCount, rec.TopScore, rec.ElapsedMS, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert history record: %w", err)
	}

	return &rec, nil
}

// Recent returns the most recent records, newest first
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.Query(
		`SELECT id, tenant_id, query, mode, result_count, top_score, elapsed_ms, created_at
         FROM search_history
         ORDER BY created_at DESC, id
         LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Query, &rec.Mode,
			&rec.ResultCount, &rec.TopScore, &rec.ElapsedMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Clear deletes all history records, returning the number removed
func (s *Store) Clear() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM search_history")
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}

	return result.RowsAffected()
}
