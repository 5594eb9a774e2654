// Package history persists normalized invocation results in SQLite so they
// can be retrieved after the originating MCP request has completed.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("invocation not found")

// Record is one completed agent invocation as stored.
type Record struct {
	ID               string         `json:"id"`
	Agent            string         `json:"agent"`
	Prompt           string         `json:"prompt"`
	WorkingDir       string         `json:"working_dir,omitempty"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ParserName       string         `json:"parser_name"`
	ReturnCode       int            `json:"return_code"`
	DurationSeconds  float64        `json:"duration_seconds"`
	SanitizedCommand []string       `json:"sanitized_command"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Agent string
	Limit int
}

// Store handles invocation persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new invocation store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "invocations.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		prompt TEXT NOT NULL,
		working_dir TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		parser_name TEXT NOT NULL,
		return_code INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		sanitized_command TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_invocations_agent ON invocations(agent);
	CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts one invocation record, assigning an ID when missing.
func (s *Store) Save(rec *Record) error {
	if rec.ID == "" {
		rec.ID = "inv_" + uuid.New().String()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	command, err := json.Marshal(rec.SanitizedCommand)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO invocations (id, agent, prompt, working_dir, content, metadata,
		                         parser_name, return_code, duration_seconds, sanitized_command, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Agent, rec.Prompt, rec.WorkingDir, rec.Content, string(metadata),
		rec.ParserName, rec.ReturnCode, rec.DurationSeconds, string(command), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// Get retrieves an invocation by ID
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, agent, prompt, working_dir, content, metadata,
		       parser_name, return_code, duration_seconds, sanitized_command, created_at
		FROM invocations WHERE id = ?`, id,
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query invocation: %w", err)
	}
	return rec, nil
}

// List returns invocations matching the filter, newest first.
func (s *Store) List(filter *ListFilter) ([]*Record, error) {
	query := `
		SELECT id, agent, prompt, working_dir, content, metadata,
		       parser_name, return_code, duration_seconds, sanitized_command, created_at
		FROM invocations`
	var args []interface{}

	if filter != nil && filter.Agent != "" {
		query += " WHERE agent = ?"
		args = append(args, filter.Agent)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeBefore deletes invocations created before the cutoff and reports how
// many rows were removed.
func (s *Store) PurgeBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM invocations WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invocations: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var workingDir sql.NullString
	var metadata, command string

	if err := row.Scan(
		&rec.ID, &rec.Agent, &rec.Prompt, &workingDir, &rec.Content, &metadata,
		&rec.ParserName, &rec.ReturnCode, &rec.DurationSeconds, &command, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	if workingDir.Valid {
		rec.WorkingDir = workingDir.String
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if command != "" && command != "null" {
		if err := json.Unmarshal([]byte(command), &rec.SanitizedCommand); err != nil {
			return nil, fmt.Errorf("failed to decode command: %w", err)
		}
	}
	return &rec, nil
}
