// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/contract-gateway/internal/models"
)

// Journal records transactions submitted through the gateway
type Journal interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Transaction operations
	RecordSubmitted(ctx context.Context, record *models.TransactionRecord) error
	RecordOutcome(ctx context.Context, hash string, outcome models.TransactionOutcome) error
	GetTransaction(ctx context.Context, hash string) (*models.TransactionRecord, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.TransactionRecord, error)
}

// JournalConfig holds journal configuration
type JournalConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// defaultListLimit caps ListTransactions when the filter sets no limit
const defaultListLimit = 50
