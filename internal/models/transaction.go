package models

import (
	"time"
)

// TransactionStatus is the journal state of a submitted transaction
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusConfirmed TransactionStatus = "confirmed"
	TxStatusFailed    TransactionStatus = "failed"
)

// TransactionRecord represents a transaction submitted through the gateway
type TransactionRecord struct {
	Hash        string            `json:"hash" db:"hash"`
	Method      string            `json:"method" db:"method"`
	From        string            `json:"from" db:"from_address"`
	Contract    string            `json:"contract" db:"contract_address"`
	ChainID     int64             `json:"chain_id" db:"chain_id"`
	ValueWei    string            `json:"value_wei" db:"value_wei"`
	Argument    string            `json:"argument,omitempty" db:"argument"`
	Status      TransactionStatus `json:"status" db:"status"`
	BlockNumber *uint64           `json:"block_number,omitempty" db:"block_number"`
	GasUsed     *uint64           `json:"gas_used,omitempty" db:"gas_used"`
	Error       *string           `json:"error,omitempty" db:"error"`
	SubmittedAt time.Time         `json:"submitted_at" db:"submitted_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
}

// TransactionOutcome is what a resolved transaction writes back to the journal
type TransactionOutcome struct {
	Status      TransactionStatus
	BlockNumber *uint64
	GasUsed     *uint64
	Error       *string
	ResolvedAt  time.Time
}

// TransactionFilter for querying the journal
type TransactionFilter struct {
	Method *string            `json:"method,omitempty"`
	Status *TransactionStatus `json:"status,omitempty"`
	From   *string            `json:"from,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}
