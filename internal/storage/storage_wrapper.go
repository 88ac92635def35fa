package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/contract-gateway/internal/metrics"
	"github.com/smartdevs17/contract-gateway/internal/models"
)

const transactionsTable = "transactions"

// JournalWithMetrics wraps a journal implementation with metrics
type JournalWithMetrics struct {
	Journal
	metricsManager *metrics.Manager
}

// NewJournalWithMetrics creates a journal wrapper with metrics
func NewJournalWithMetrics(journal Journal, metricsManager *metrics.Manager) *JournalWithMetrics {
	return &JournalWithMetrics{
		Journal:        journal,
		metricsManager: metricsManager,
	}
}

// RecordSubmitted inserts a record and records metrics
func (j *JournalWithMetrics) RecordSubmitted(ctx context.Context, record *models.TransactionRecord) error {
	start := time.Now()
	err := j.Journal.RecordSubmitted(ctx, record)
	j.observe("insert", start, err)
	return err
}

// RecordOutcome updates a record and records metrics
func (j *JournalWithMetrics) RecordOutcome(ctx context.Context, hash string, outcome models.TransactionOutcome) error {
	start := time.Now()
	err := j.Journal.RecordOutcome(ctx, hash, outcome)
	j.observe("update", start, err)
	return err
}

func (j *JournalWithMetrics) observe(operation string, start time.Time, err error) {
	if j.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	j.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		transactionsTable,
		status,
		time.Since(start),
	)
}
