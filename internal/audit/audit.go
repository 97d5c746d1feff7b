// Package audit records every executed statement in a SQLite database for
// after-the-fact operator diagnosis: who ran what, from which session,
// when.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// Store is the command audit log. A nil *Store is valid and records
// nothing, so callers never need to branch on whether auditing is
// configured.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open creates or opens the audit database at dbPath.
func Open(dbPath string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		source TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id);
	CREATE INDEX IF NOT EXISTS idx_commands_username ON commands(username);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Store{db: db, log: log.WithPrefix("audit")}, nil
}

// Record stores one executed statement. Failures are logged, not returned:
// a broken audit disk must not take down user sessions.
func (s *Store) Record(sessionID int64, username, source string) {
	if s == nil {
		return
	}
	_, err := s.db.Exec(
		"INSERT INTO commands (session_id, username, source, executed_at) VALUES (?, ?, ?, ?)",
		sessionID, username, source, time.Now().UTC(),
	)
	if err != nil {
		s.log.Error("failed to record command for session %d: %v", sessionID, err)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
