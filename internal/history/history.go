// Package history stores delivered transcriptions in SQLite for the
// history and statistics views. It is fed read-only from the coordinator's
// event stream and is never on the hotkey path.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one saved transcription
type Record struct {
	ID          int64
	Text        string
	RawText     string
	WordCount   int
	DurationSec float64
	CleanupUsed bool
	CreatedAt   time.Time
}

// Stats summarizes usage for the statistics view
type Stats struct {
	TotalTranscriptions int
	TotalWords          int
	TotalMinutes        float64
	AvgWPM              float64
	TodayCount          int
	TodayWords          int
}

// Store wraps the SQLite history database
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database location
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "VoxKey", "history.db")
}

// Open opens (and if needed creates) the history database
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate creates the schema when it does not exist yet
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			raw_text TEXT,
			word_count INTEGER DEFAULT 0,
			duration_seconds REAL DEFAULT 0,
			cleanup_used INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a delivered transcription and returns its id
func (s *Store) Save(rec Record) (int64, error) {
	if rec.WordCount == 0 {
		rec.WordCount = countWords(rec.Text)
	}

	res, err := s.db.Exec(`
		INSERT INTO transcriptions (text, raw_text, word_count, duration_seconds, cleanup_used)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Text, rec.RawText, rec.WordCount, rec.DurationSec, rec.CleanupUsed)
	if err != nil {
		return 0, fmt.Errorf("insert transcription: %w", err)
	}

	return res.LastInsertId()
}

// Recent returns saved transcriptions, newest first
func (s *Store) Recent(limit, offset int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, text, raw_text, word_count, duration_seconds, cleanup_used, created_at
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var raw sql.NullString
		var cleanup int
		if err := rows.Scan(&rec.ID, &rec.Text, &raw, &rec.WordCount,
			&rec.DurationSec, &cleanup, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		rec.RawText = raw.String
		rec.CleanupUsed = cleanup != 0
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Delete removes one transcription by id
func (s *Store) Delete(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM transcriptions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete transcription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Clear removes all history and returns the number of deleted records
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM transcriptions`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// Statistics computes overall and per-day usage numbers
func (s *Store) Statistics() (Stats, error) {
	var stats Stats

	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(word_count), 0),
			COALESCE(SUM(duration_seconds), 0) / 60.0,
			CASE
				WHEN SUM(duration_seconds) > 0
				THEN SUM(word_count) * 60.0 / SUM(duration_seconds)
				ELSE 0
			END
		FROM transcriptions
	`)
	if err := row.Scan(&stats.TotalTranscriptions, &stats.TotalWords,
		&stats.TotalMinutes, &stats.AvgWPM); err != nil {
		return stats, fmt.Errorf("scan statistics: %w", err)
	}

	// created_at is CURRENT_TIMESTAMP, which SQLite stores in UTC
	today := time.Now().UTC().Format("2006-01-02")
	row = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(word_count), 0)
		FROM transcriptions
		WHERE DATE(created_at) = ?
	`, today)
	if err := row.Scan(&stats.TodayCount, &stats.TodayWords); err != nil {
		return stats, fmt.Errorf("scan today statistics: %w", err)
	}

	return stats, nil
}

// countWords counts whitespace-separated words
func countWords(text string) int {
	return len(strings.Fields(text))
}
