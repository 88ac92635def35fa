package gateway

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Wallet is the signing capability the gateway consumes. It mirrors the
// EIP-1193 provider surface: account access, chain switching, transaction
// submission and change notifications.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	SubscribeEvents(ch chan<- WalletEvent) event.Subscription
}

// TxRequest is a state-changing call for the wallet to sign and submit.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// WalletEventType distinguishes wallet notifications.
type WalletEventType int

const (
	AccountsChanged WalletEventType = iota
	ChainChanged
)

func (t WalletEventType) String() string {
	if t == ChainChanged {
		return "chainChanged"
	}
	return "accountsChanged"
}

// WalletEvent is emitted when the wallet's accounts or active chain change.
// Accounts is empty when the wallet disconnected.
type WalletEvent struct {
	Type     WalletEventType
	Accounts []common.Address
	ChainID  *big.Int
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
