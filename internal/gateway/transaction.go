package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptReader looks up transaction receipts. ethereum.NotFound means the
// transaction has not been included yet.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Outcome is the state of a submitted transaction.
type Outcome int

const (
	Pending Outcome = iota
	Confirmed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// TxHandle tracks one submitted transaction. It moves from Pending to
// Confirmed or Failed exactly once; after that Await returns the stored
// outcome without touching the node.
type TxHandle struct {
	hash        common.Hash
	method      string
	argument    string
	from        common.Address
	value       *big.Int
	submittedAt time.Time

	receipts     ReceiptReader
	pollInterval time.Duration
	onResolve    func(*TxHandle)

	waitMu  sync.Mutex
	mu      sync.Mutex
	outcome Outcome
	receipt *types.Receipt
	err     error
}

func newTxHandle(hash common.Hash, method, argument string, from common.Address, value *big.Int,
	receipts ReceiptReader, pollInterval time.Duration, onResolve func(*TxHandle)) *TxHandle {
	if value == nil {
		value = new(big.Int)
	}
	return &TxHandle{
		hash:         hash,
		method:       method,
		argument:     argument,
		from:         from,
		value:        new(big.Int).Set(value),
		submittedAt:  time.Now(),
		receipts:     receipts,
		pollInterval: pollInterval,
		onResolve:    onResolve,
	}
}

// Hash returns the transaction hash
func (h *TxHandle) Hash() common.Hash { return h.hash }

// Method returns the contract method that was called
func (h *TxHandle) Method() string { return h.method }

// Argument returns the call argument as entered (name or ether amount)
func (h *TxHandle) Argument() string { return h.argument }

// From returns the sending account
func (h *TxHandle) From() common.Address { return h.from }

// Value returns the attached value in wei
func (h *TxHandle) Value() *big.Int { return new(big.Int).Set(h.value) }

// SubmittedAt returns the submission time
func (h *TxHandle) SubmittedAt() time.Time { return h.submittedAt }

// Outcome returns the current state
func (h *TxHandle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Receipt returns the receipt once resolved, nil while pending
func (h *TxHandle) Receipt() *types.Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receipt
}

// Err returns the failure of a resolved transaction
func (h *TxHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Await blocks until the transaction is included. A reverted transaction
// resolves with a TransactionFailed error. Cancelling ctx or a failed receipt
// lookup returns early and leaves the handle pending.
func (h *TxHandle) Await(ctx context.Context) (*types.Receipt, error) {
	// one poller at a time; later callers see the stored outcome
	h.waitMu.Lock()
	defer h.waitMu.Unlock()

	if outcome, receipt, err := h.state(); outcome != Pending {
		return receipt, err
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.receipts.TransactionReceipt(ctx, h.hash)
		switch {
		case err == nil && receipt != nil:
			h.resolve(receipt)
			if h.onResolve != nil {
				h.onResolve(h)
			}
			_, receipt, err = h.state()
			return receipt, err
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, Classify(ctx.Err())
			}
			return nil, Classify(err)
		}

		select {
		case <-ctx.Done():
			return nil, Classify(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (h *TxHandle) state() (Outcome, *types.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.receipt, h.err
}

func (h *TxHandle) resolve(receipt *types.Receipt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.receipt = receipt
	if receipt.Status == types.ReceiptStatusFailed {
		h.outcome = Failed
		h.err = &Error{
			Kind:    TransactionFailed,
			Message: fmt.Sprintf("transaction %s reverted in block %s", h.hash.Hex(), receipt.BlockNumber),
		}
		return
	}
	h.outcome = Confirmed
}
