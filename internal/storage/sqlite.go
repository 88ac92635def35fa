// File: internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// SQLiteJournal implements Journal using SQLite
type SQLiteJournal struct {
	sqlJournal
	config *JournalConfig
}

// NewSQLiteJournal creates a new SQLite journal instance
func NewSQLiteJournal(config *JournalConfig) *SQLiteJournal {
	return &SQLiteJournal{
		sqlJournal: sqlJournal{
			logger:      utils.ComponentLogger("journal").WithField("driver", "sqlite"),
			migrations:  GetSQLiteMigrations(),
			placeholder: func(int) string { return "?" },
		},
		config: config,
	}
}

// Connect establishes database connection
func (s *SQLiteJournal) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	// WAL lets `tx list` read while a write command is journaling
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}
