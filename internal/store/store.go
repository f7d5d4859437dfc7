// Package store persists the poller cursor and an append-only log of
// processing results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shiftbot/backend/internal/models"
	"github.com/shiftbot/backend/internal/service"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS poll_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id   TEXT NOT NULL,
    sender       TEXT NOT NULL,
    body         TEXT NOT NULL,
    processed    INTEGER NOT NULL,
    command_sent INTEGER NOT NULL,
    reason       TEXT NOT NULL,
    result       TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_processing_log_message_id ON processing_log(message_id);
`

const lastMessageKey = "last_message_id"

// Record is one row of the processing log, with the full result preserved
// as JSON.
type Record struct {
	ID          int64          `json:"id"`
	MessageID   string         `json:"message_id"`
	Sender      string         `json:"sender"`
	Body        string         `json:"body"`
	Processed   bool           `json:"processed"`
	CommandSent bool           `json:"command_sent"`
	Reason      string         `json:"reason"`
	Result      service.Result `json:"result"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store wraps the SQLite handle. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at path and applies the
// schema. Parent directories are created as needed.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastMessageID returns the saved poll cursor, or "" when no poll has
// completed yet.
func (s *Store) LastMessageID(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM poll_state WHERE key = ?", lastMessageKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read poll cursor: %w", err)
	}
	return value, nil
}

// SaveLastMessageID advances the poll cursor.
func (s *Store) SaveLastMessageID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO poll_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		lastMessageKey, id,
	)
	if err != nil {
		return fmt.Errorf("failed to save poll cursor: %w", err)
	}
	return nil
}

// RecordProcessing appends one processing result to the log. It implements
// service.Recorder.
func (s *Store) RecordProcessing(ctx context.Context, msg models.Message, result service.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO processing_log (message_id, sender, body, processed, command_sent, reason, result) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.MessageID, msg.SenderName, msg.Text, boolToInt(result.Processed), boolToInt(result.CommandSent), result.Reason, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to record processing result: %w", err)
	}
	return nil
}

// RecentRecords returns the newest entries of the processing log, newest
// first.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, message_id, sender, body, processed, command_sent, reason, result, created_at FROM processing_log ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec            Record
			processedInt   int
			commandSentInt int
			payload        string
		)
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.Sender, &rec.Body, &processedInt, &commandSentInt, &rec.Reason, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		rec.Processed = processedInt == 1
		rec.CommandSent = commandSentInt == 1
		if err := json.Unmarshal([]byte(payload), &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to parse stored result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
