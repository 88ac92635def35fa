package gateway

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// RPCWallet talks to an external EIP-1193 provider over JSON-RPC, such as a
// desktop wallet exposing a local endpoint or a node with unlocked accounts.
// Account and chain changes are detected by polling.
type RPCWallet struct {
	client        *rpc.Client
	watchInterval time.Duration
	feed          event.FeedOf[WalletEvent]
	logger        *logrus.Entry

	mu       sync.Mutex
	watching bool
	quit     chan struct{}
	done     chan struct{}
}

// DialRPCWallet connects to the provider at url
func DialRPCWallet(ctx context.Context, url string, watchInterval time.Duration) (*RPCWallet, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to wallet provider", err.Error())
	}
	return NewRPCWallet(client, watchInterval), nil
}

// NewRPCWallet wraps an existing RPC client
func NewRPCWallet(client *rpc.Client, watchInterval time.Duration) *RPCWallet {
	if watchInterval <= 0 {
		watchInterval = 2 * time.Second
	}
	return &RPCWallet{
		client:        client,
		watchInterval: watchInterval,
		logger:        utils.ComponentLogger("rpc_wallet"),
	}
}

// RequestAccounts asks the provider for account access
func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChainID returns the provider's active chain
func (w *RPCWallet) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

// SwitchChain requests wallet_switchEthereumChain
func (w *RPCWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	params := map[string]string{"chainId": hexutil.EncodeBig(chainID)}
	return w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
}

// SendTransaction hands the request to the provider for signing and broadcast
func (w *RPCWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	args := map[string]interface{}{
		"from": req.From,
		"to":   req.To,
		"data": hexutil.Bytes(req.Data),
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		args["value"] = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// SubscribeEvents registers ch for change notifications and starts the
// watcher on first use.
func (w *RPCWallet) SubscribeEvents(ch chan<- WalletEvent) event.Subscription {
	sub := w.feed.Subscribe(ch)

	w.mu.Lock()
	if !w.watching {
		w.watching = true
		w.quit = make(chan struct{})
		w.done = make(chan struct{})
		go w.watch(w.quit, w.done)
	}
	w.mu.Unlock()

	return sub
}

// Close stops the watcher and closes the RPC client
func (w *RPCWallet) Close() {
	w.mu.Lock()
	if w.watching {
		close(w.quit)
		done := w.done
		w.watching = false
		w.mu.Unlock()
		<-done
	} else {
		w.mu.Unlock()
	}
	w.client.Close()
}

func (w *RPCWallet) watch(quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.watchInterval)
	defer ticker.Stop()

	accounts, chainID, err := w.snapshot()
	ready := err == nil
	if err != nil {
		w.logger.WithError(err).Warn("Failed to read initial wallet state")
	}

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		nextAccounts, nextChain, err := w.snapshot()
		if err != nil {
			w.logger.WithError(err).Debug("Wallet poll failed")
			continue
		}
		if !ready {
			accounts, chainID, ready = nextAccounts, nextChain, true
			continue
		}

		if !sameAccounts(accounts, nextAccounts) {
			w.logger.WithField("accounts", len(nextAccounts)).Info("Wallet accounts changed")
			w.feed.Send(WalletEvent{Type: AccountsChanged, Accounts: nextAccounts})
		}
		if nextChain.Cmp(chainID) != 0 {
			w.logger.WithField("chain_id", nextChain).Info("Wallet chain changed")
			w.feed.Send(WalletEvent{Type: ChainChanged, ChainID: new(big.Int).Set(nextChain)})
		}
		accounts, chainID = nextAccounts, nextChain
	}
}

func (w *RPCWallet) snapshot() ([]common.Address, *big.Int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.watchInterval+5*time.Second)
	defer cancel()

	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, nil, err
	}
	chainID, err := w.ChainID(ctx)
	if err != nil {
		return nil, nil, err
	}
	return accounts, chainID, nil
}
