package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// PostgreSQLJournal implements Journal using PostgreSQL
type PostgreSQLJournal struct {
	sqlJournal
	config *JournalConfig
}

// NewPostgreSQLJournal creates a new PostgreSQL journal instance
func NewPostgreSQLJournal(config *JournalConfig) *PostgreSQLJournal {
	return &PostgreSQLJournal{
		sqlJournal: sqlJournal{
			logger:      utils.ComponentLogger("journal").WithField("driver", "postgres"),
			migrations:  GetPostgresMigrations(),
			placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		},
		config: config,
	}
}

// Connect establishes database connection
func (p *PostgreSQLJournal) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}
