package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// DBPath returns the database file path for the given day under basePath
func DBPath(basePath string, day time.Time) string {
	return filepath.Join(basePath, fmt.Sprintf("practice-%s.db", day.Format("2006-01-02")))
}

// NewDB opens (creating if needed) the practice database for today
func NewDB(basePath string, log *logger.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbPath := DBPath(basePath, time.Now())
	log.Named("sqlite").Info("Opening SQLite database", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}
