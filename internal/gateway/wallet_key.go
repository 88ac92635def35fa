package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// TransactionSender is the node surface a local-key wallet needs to build
// and broadcast transactions.
type TransactionSender interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyWallet signs with private keys held in process. It behaves like a
// provider that has already granted access to all of its accounts.
type KeyWallet struct {
	backend TransactionSender
	feed    event.FeedOf[WalletEvent]
	logger  *logrus.Entry

	mu       sync.RWMutex
	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address // selected account first
	chainID  *big.Int
	known    map[string]bool
}

// NewKeyWallet creates a wallet over keys, active on chainID. knownChains are
// the chains SwitchChain accepts; chainID is always known.
func NewKeyWallet(backend TransactionSender, chainID *big.Int, knownChains []*big.Int, keys ...*ecdsa.PrivateKey) (*KeyWallet, error) {
	if len(keys) == 0 {
		return nil, newError(NoWallet, "no signing keys configured")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, newError(Validation, "chain id must be positive")
	}

	w := &KeyWallet{
		backend: backend,
		logger:  utils.ComponentLogger("key_wallet"),
		keys:    make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		chainID: new(big.Int).Set(chainID),
		known:   map[string]bool{chainID.String(): true},
	}
	for _, id := range knownChains {
		if id != nil {
			w.known[id.String()] = true
		}
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, dup := w.keys[addr]; dup {
			continue
		}
		w.keys[addr] = key
		w.accounts = append(w.accounts, addr)
	}
	return w, nil
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid private key", err.Error())
	}
	return key, nil
}

// LoadKeystore decrypts a keystore JSON file
func LoadKeystore(path, passphrase string) (*ecdsa.PrivateKey, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to read keystore file", err.Error())
	}
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to decrypt keystore", err.Error())
	}
	return key.PrivateKey, nil
}

// RequestAccounts returns the accounts, selected first
func (w *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]common.Address(nil), w.accounts...), nil
}

// ChainID returns the active chain
func (w *KeyWallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return new(big.Int).Set(w.chainID), nil
}

// SwitchChain changes the active chain. Chains outside the known set fail
// with code 4902 like a provider that has not registered the network.
func (w *KeyWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	w.mu.Lock()
	if !w.known[chainID.String()] {
		w.mu.Unlock()
		return NewWalletError(CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %s", chainID))
	}
	if w.chainID.Cmp(chainID) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.chainID = new(big.Int).Set(chainID)
	w.mu.Unlock()

	w.logger.WithField("chain_id", chainID).Info("Switched chain")
	w.feed.Send(WalletEvent{Type: ChainChanged, ChainID: new(big.Int).Set(chainID)})
	return nil
}

// SelectAccount makes addr the primary account
func (w *KeyWallet) SelectAccount(addr common.Address) error {
	w.mu.Lock()
	if _, ok := w.keys[addr]; !ok {
		w.mu.Unlock()
		return NewWalletError(CodeUnauthorizedOperation, fmt.Sprintf("account %s is not managed by this wallet", addr.Hex()))
	}
	ordered := []common.Address{addr}
	for _, a := range w.accounts {
		if a != addr {
			ordered = append(ordered, a)
		}
	}
	w.accounts = ordered
	accounts := append([]common.Address(nil), ordered...)
	w.mu.Unlock()

	w.feed.Send(WalletEvent{Type: AccountsChanged, Accounts: accounts})
	return nil
}

// SendTransaction fills nonce, gas and fees from the node, signs and broadcasts.
func (w *KeyWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	w.mu.RLock()
	key, ok := w.keys[req.From]
	chainID := new(big.Int).Set(w.chainID)
	w.mu.RUnlock()
	if !ok {
		return common.Hash{}, NewWalletError(CodeUnauthorizedOperation, fmt.Sprintf("account %s is not managed by this wallet", req.From.Hex()))
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To

	nonce, err := w.backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: req.From, To: &to, Value: value, Data: req.Data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest header: %w", err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := w.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		})
	} else {
		price, err := w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		})
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := opts.Signer(req.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	w.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"from":    utils.ShortAddress(req.From),
		"nonce":   nonce,
		"gas":     gas,
	}).Debug("Signed and sent transaction")

	return signed.Hash(), nil
}

// SubscribeEvents registers ch for change notifications
func (w *KeyWallet) SubscribeEvents(ch chan<- WalletEvent) event.Subscription {
	return w.feed.Subscribe(ch)
}
