package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// AttemptRecord represents one scored attempt at a practice phrase
type AttemptRecord struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	PositionIndex int       `json:"position_index"`
	ChunkSequence int       `json:"chunk_sequence"`
	Phrase        string    `json:"phrase"`
	Transcript    string    `json:"transcript"`
	ProviderID    string    `json:"provider_id"`
	Accuracy      float64   `json:"accuracy"`
	Outcome       string    `json:"outcome"`
	CorrectWords  int       `json:"correct_words"`
	TotalWords    int       `json:"total_words"`
	Confidence    float64   `json:"confidence"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// AttemptStorage persists the scored-attempt log
type AttemptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAttemptStorage creates the attempt storage and its schema
func NewAttemptStorage(db *sql.DB, log *logger.Logger) (*AttemptStorage, error) {
	storage := &AttemptStorage{
		db:     db,
		logger: log.Named("sqlite-attempts"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *AttemptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			position_index INTEGER NOT NULL,
			chunk_sequence INTEGER,
			phrase TEXT NOT NULL,
			transcript TEXT NOT NULL,
			provider_id TEXT,
			accuracy REAL NOT NULL,
			outcome TEXT NOT NULL,
			correct_words INTEGER NOT NULL,
			total_words INTEGER NOT NULL,
			confidence REAL,
			elapsed_ms INTEGER,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attempts table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id)`)
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// StoreAttempt inserts an attempt record and returns its ID
func (s *AttemptStorage) StoreAttempt(record *AttemptRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO attempts
		(session_id, position_index, chunk_sequence, phrase, transcript, provider_id, accuracy, outcome, correct_words, total_words, confidence, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.PositionIndex,
		record.ChunkSequence,
		record.Phrase,
		record.Transcript,
		record.ProviderID,
		record.Accuracy,
		record.Outcome,
		record.CorrectWords,
		record.TotalWords,
		record.Confidence,
		record.ElapsedMs,
		record.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	record.ID = id
	return id, nil
}

// GetAttemptsBySession returns all attempts for a session, oldest first
func (s *AttemptStorage) GetAttemptsBySession(sessionID string) ([]*AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, position_index, chunk_sequence, phrase, transcript, provider_id, accuracy, outcome, correct_words, total_words, confidence, elapsed_ms, created_at
		FROM attempts WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// GetRecentAttempts returns the most recent attempts across sessions
func (s *AttemptStorage) GetRecentAttempts(limit int) ([]*AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, position_index, chunk_sequence, phrase, transcript, provider_id, accuracy, outcome, correct_words, total_words, confidence, elapsed_ms, created_at
		FROM attempts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]*AttemptRecord, error) {
	var records []*AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		var createdAt string
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.PositionIndex, &r.ChunkSequence, &r.Phrase, &r.Transcript,
			&r.ProviderID, &r.Accuracy, &r.Outcome, &r.CorrectWords, &r.TotalWords,
			&r.Confidence, &r.ElapsedMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
