package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/internal/models"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// sqlJournal holds the queries shared by the SQL journal backends. The
// backends differ only in how they open the database and in placeholders.
type sqlJournal struct {
	db          *sql.DB
	logger      *logrus.Entry
	migrations  []*Migration
	placeholder func(n int) string
}

const transactionColumns = `hash, method, from_address, contract_address, chain_id, value_wei,
	argument, status, block_number, gas_used, error, submitted_at, resolved_at`

// Close closes the database connection
func (j *sqlJournal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	j.logger.Info("Journal database connection closed")
	return err
}

// Ping checks database connectivity
func (j *sqlJournal) Ping() error {
	if j.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return j.db.Ping()
}

// Migrate applies the migrations that are not recorded in schema_migrations
func (j *sqlJournal) Migrate() error {
	if j.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	applied := make(map[string]bool)
	rows, err := j.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read applied migrations", err.Error())
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan migration", err.Error())
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range j.migrations {
		if applied[migration.Version] {
			continue
		}

		j.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if err := j.applyMigration(migration); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	return nil
}

func (j *sqlJournal) applyMigration(migration *Migration) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO schema_migrations (version, description) VALUES (%s, %s)",
		j.placeholder(1), j.placeholder(2))
	if _, err := tx.Exec(insert, migration.Version, migration.Description); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordSubmitted stores a freshly submitted transaction. Recording the same
// hash twice keeps the first record.
func (j *sqlJournal) RecordSubmitted(ctx context.Context, record *models.TransactionRecord) error {
	if record == nil || record.Hash == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Transaction hash is required", "")
	}

	status := record.Status
	if status == "" {
		status = models.TxStatusPending
	}
	value := record.ValueWei
	if value == "" {
		value = "0"
	}

	query := fmt.Sprintf(`
		INSERT INTO transactions (%s)
		VALUES (%s)
		ON CONFLICT (hash) DO NOTHING
	`, transactionColumns, j.placeholders(13))

	_, err := j.db.ExecContext(ctx, query,
		strings.ToLower(record.Hash), record.Method, strings.ToLower(record.From),
		strings.ToLower(record.Contract), record.ChainID, value, record.Argument,
		string(status), nullUint(record.BlockNumber), nullUint(record.GasUsed), nullString(record.Error),
		record.SubmittedAt.UTC(), nullTime(record.ResolvedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record transaction", err.Error())
	}
	return nil
}

// RecordOutcome writes the final status of a transaction
func (j *sqlJournal) RecordOutcome(ctx context.Context, hash string, outcome models.TransactionOutcome) error {
	query := fmt.Sprintf(`
		UPDATE transactions
		SET status = %s, block_number = %s, gas_used = %s, error = %s, resolved_at = %s
		WHERE hash = %s
	`, j.placeholder(1), j.placeholder(2), j.placeholder(3), j.placeholder(4), j.placeholder(5), j.placeholder(6))

	result, err := j.db.ExecContext(ctx, query,
		string(outcome.Status), nullUint(outcome.BlockNumber), nullUint(outcome.GasUsed), nullString(outcome.Error),
		outcome.ResolvedAt.UTC(), strings.ToLower(hash))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record transaction outcome", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record transaction outcome", err.Error())
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", hash)
	}
	return nil
}

// GetTransaction returns one journal record by hash
func (j *sqlJournal) GetTransaction(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM transactions WHERE hash = %s", transactionColumns, j.placeholder(1))

	record, err := scanTransaction(j.db.QueryRowContext(ctx, query, strings.ToLower(hash)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Transaction not found", hash)
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get transaction", err.Error())
	}
	return record, nil
}

// ListTransactions returns journal records, newest first
func (j *sqlJournal) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]*models.TransactionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM transactions WHERE 1=1", transactionColumns)
	args := []interface{}{}

	if filter.Method != nil {
		args = append(args, *filter.Method)
		query += " AND method = " + j.placeholder(len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += " AND status = " + j.placeholder(len(args))
	}
	if filter.From != nil {
		args = append(args, strings.ToLower(*filter.From))
		query += " AND from_address = " + j.placeholder(len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += " ORDER BY submitted_at DESC, hash LIMIT " + j.placeholder(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET " + j.placeholder(len(args))
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list transactions", err.Error())
	}
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan transaction", err.Error())
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list transactions", err.Error())
	}
	return records, nil
}

func (j *sqlJournal) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = j.placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.TransactionRecord, error) {
	var (
		record      models.TransactionRecord
		status      string
		blockNumber sql.NullInt64
		gasUsed     sql.NullInt64
		errText     sql.NullString
		resolvedAt  sql.NullTime
	)

	err := row.Scan(&record.Hash, &record.Method, &record.From, &record.Contract,
		&record.ChainID, &record.ValueWei, &record.Argument, &status,
		&blockNumber, &gasUsed, &errText, &record.SubmittedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	record.Status = models.TransactionStatus(status)
	if blockNumber.Valid {
		n := uint64(blockNumber.Int64)
		record.BlockNumber = &n
	}
	if gasUsed.Valid {
		n := uint64(gasUsed.Int64)
		record.GasUsed = &n
	}
	if errText.Valid {
		record.Error = &errText.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		record.ResolvedAt = &t
	}
	return &record, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullUint(n *uint64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
