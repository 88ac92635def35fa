// File: internal/storage/factory.go
package storage

import (
	"context"
	"strings"

	"github.com/smartdevs17/contract-gateway/internal/config"
	"github.com/smartdevs17/contract-gateway/internal/models"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// NewJournal creates a journal based on configuration
func NewJournal(cfg *config.StorageConfig) (Journal, error) {
	journalConfig := &JournalConfig{
		Type:             cfg.Type,
		ConnectionString: cfg.ConnectionString,
		MaxConnections:   cfg.MaxConnections,
		MaxIdleTime:      cfg.MaxIdleTime,
	}
	if journalConfig.MaxConnections <= 0 {
		journalConfig.MaxConnections = 1
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteJournal(journalConfig), nil
	case "postgres", "postgresql":
		return NewPostgreSQLJournal(journalConfig), nil
	case "none", "":
		return noopJournal{}, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}

// noopJournal discards records; lookups find nothing
type noopJournal struct{}

func (noopJournal) Connect() error { return nil }
func (noopJournal) Close() error   { return nil }
func (noopJournal) Ping() error    { return nil }
func (noopJournal) Migrate() error { return nil }

func (noopJournal) RecordSubmitted(context.Context, *models.TransactionRecord) error { return nil }

func (noopJournal) RecordOutcome(context.Context, string, models.TransactionOutcome) error {
	return nil
}

func (noopJournal) GetTransaction(_ context.Context, hash string) (*models.TransactionRecord, error) {
	return nil, utils.NewAppError(utils.ErrCodeNotFound, "Transaction journal is disabled", hash)
}

func (noopJournal) ListTransactions(context.Context, models.TransactionFilter) ([]*models.TransactionRecord, error) {
	return nil, nil
}
