package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// MissedWord is one entry in the missed-word bank
type MissedWord struct {
	Word        string    `json:"word"`
	MissedCount int       `json:"missed_count"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// MissedWordStorage persists the cross-session missed-word bank
type MissedWordStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewMissedWordStorage creates the missed-word storage and its schema
func NewMissedWordStorage(db *sql.DB, log *logger.Logger) (*MissedWordStorage, error) {
	storage := &MissedWordStorage{
		db:     db,
		logger: log.Named("sqlite-missed"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *MissedWordStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS missed_words (
			word TEXT PRIMARY KEY,
			missed_count INTEGER NOT NULL DEFAULT 0,
			last_seen_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create missed_words table: %w", err)
	}
	return nil
}

// RecordMissed bumps the miss count for each word, inserting new rows
// as needed
func (s *MissedWordStorage) RecordMissed(words []string, now time.Time) error {
	if len(words) == 0 {
		return nil
	}
	ts := now.UTC().Format(time.RFC3339)
	for _, word := range words {
		_, err := s.db.Exec(
			`INSERT INTO missed_words (word, missed_count, last_seen_at) VALUES (?, 1, ?)
			ON CONFLICT(word) DO UPDATE SET
				missed_count = missed_count + 1,
				last_seen_at = excluded.last_seen_at`,
			word, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert missed word %q: %w", word, err)
		}
	}
	return nil
}

// Top returns the most frequently missed words, most recent first among
// ties
func (s *MissedWordStorage) Top(limit int) ([]*MissedWord, error) {
	rows, err := s.db.Query(
		`SELECT word, missed_count, last_seen_at FROM missed_words
		ORDER BY missed_count DESC, last_seen_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query missed words: %w", err)
	}
	defer rows.Close()

	var out []*MissedWord
	for rows.Next() {
		var w MissedWord
		var lastSeen string
		if err := rows.Scan(&w.Word, &w.MissedCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan missed word: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, lastSeen); err == nil {
			w.LastSeenAt = t
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// Clear empties the missed-word bank
func (s *MissedWordStorage) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM missed_words`); err != nil {
		return fmt.Errorf("failed to clear missed words: %w", err)
	}
	return nil
}
