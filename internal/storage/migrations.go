package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					hash TEXT PRIMARY KEY,
					method TEXT NOT NULL,
					from_address TEXT NOT NULL,
					contract_address TEXT NOT NULL,
					chain_id INTEGER NOT NULL,
					value_wei TEXT NOT NULL DEFAULT '0',
					argument TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					block_number INTEGER,
					gas_used INTEGER,
					error TEXT,
					submitted_at DATETIME NOT NULL,
					resolved_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_method ON transactions(method);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_address);
				CREATE INDEX IF NOT EXISTS idx_transactions_submitted_at ON transactions(submitted_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					hash TEXT PRIMARY KEY,
					method TEXT NOT NULL,
					from_address TEXT NOT NULL,
					contract_address TEXT NOT NULL,
					chain_id BIGINT NOT NULL,
					value_wei NUMERIC(78, 0) NOT NULL DEFAULT 0,
					argument TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					block_number BIGINT,
					gas_used BIGINT,
					error TEXT,
					submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
					resolved_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_method ON transactions(method);
				CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
				CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_address);
				CREATE INDEX IF NOT EXISTS idx_transactions_submitted_at ON transactions(submitted_at);
			`,
		},
	}
}
