package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/smartdevs17/contract-gateway/internal/contract"
)

// fakeChain is an in-memory node running the contract. Transactions are
// applied when their receipt has been polled minePolls times.
type fakeChain struct {
	descriptor *contract.Descriptor

	calls        atomic.Int64
	receiptCalls atomic.Int64
	sent         atomic.Int64

	mu        sync.Mutex
	name      string
	balance   *big.Int
	block     uint64
	minePolls int
	revert    bool
	callErr   error
	sendErr   error
	baseFee   *big.Int
	nonces    map[common.Address]uint64
	pending   map[common.Hash]pendingTx
	polls     map[common.Hash]int
	receipts  map[common.Hash]*types.Receipt
	lastTx    *types.Transaction
}

type pendingTx struct {
	data   []byte
	value  *big.Int
	revert bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		descriptor: contract.Default(),
		balance:    new(big.Int),
		block:      100,
		minePolls:  2,
		baseFee:    big.NewInt(1_000_000_000),
		nonces:     make(map[common.Address]uint64),
		pending:    make(map[common.Hash]pendingTx),
		polls:      make(map[common.Hash]int),
		receipts:   make(map[common.Hash]*types.Receipt),
	}
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.calls.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callErr != nil {
		return nil, c.callErr
	}
	method, err := c.descriptor.MethodByCallData(msg.Data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case contract.MethodGetName:
		return method.Outputs.Pack(c.name)
	case contract.MethodGetBalance:
		return method.Outputs.Pack(new(big.Int).Set(c.balance))
	}
	return nil, errors.New("execution reverted")
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.receiptCalls.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if receipt, ok := c.receipts[txHash]; ok {
		return receipt, nil
	}
	tx, ok := c.pending[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	c.polls[txHash]++
	if c.polls[txHash] < c.minePolls {
		return nil, ethereum.NotFound
	}

	c.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     42_000,
	}
	if tx.revert {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		c.apply(tx)
	}
	delete(c.pending, txHash)
	c.receipts[txHash] = receipt
	return receipt, nil
}

// accept queues a transaction; must be called with c.mu held.
func (c *fakeChain) accept(hash common.Hash, data []byte, value *big.Int) {
	if value == nil {
		value = new(big.Int)
	}
	c.sent.Add(1)
	c.pending[hash] = pendingTx{data: data, value: new(big.Int).Set(value), revert: c.revert}
}

func (c *fakeChain) apply(tx pendingTx) {
	method, err := c.descriptor.MethodByCallData(tx.data)
	if err != nil {
		return
	}
	switch method.Name {
	case contract.MethodUpdateName:
		args, err := method.Inputs.Unpack(tx.data[4:])
		if err == nil {
			c.name = args[0].(string)
		}
	case contract.MethodStake:
		c.balance.Add(c.balance, tx.value)
	case contract.MethodWithdraw:
		c.balance.SetInt64(0)
	}
}

func (c *fakeChain) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *fakeChain) setBalance(wei *big.Int) {
	c.mu.Lock()
	c.balance = new(big.Int).Set(wei)
	c.mu.Unlock()
}

func (c *fakeChain) setMinePolls(n int) {
	c.mu.Lock()
	c.minePolls = n
	c.mu.Unlock()
}

func (c *fakeChain) setRevert(revert bool) {
	c.mu.Lock()
	c.revert = revert
	c.mu.Unlock()
}

// TransactionSender surface for KeyWallet.

func (c *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	header := &types.Header{Number: new(big.Int).SetUint64(c.block)}
	if c.baseFee != nil {
		header.BaseFee = new(big.Int).Set(c.baseFee)
	}
	return header, nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (c *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_500_000_000), nil
}

func (c *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	c.nonces[from] = tx.Nonce() + 1
	c.lastTx = tx
	c.accept(tx.Hash(), tx.Data(), tx.Value())
	return nil
}

// fakeWallet is a scriptable provider.
type fakeWallet struct {
	chain *fakeChain
	feed  event.FeedOf[WalletEvent]

	mu             sync.Mutex
	accounts       []common.Address
	chainID        *big.Int
	known          map[string]bool
	rejectAccounts bool
	rejectSend     bool
	sends          int
	nonce          uint64
}

func newFakeWallet(chain *fakeChain, chainID int64, accounts ...common.Address) *fakeWallet {
	w := &fakeWallet{
		chain:    chain,
		accounts: accounts,
		chainID:  big.NewInt(chainID),
		known:    make(map[string]bool),
	}
	w.known[w.chainID.String()] = true
	w.known[big.NewInt(contract.DefaultChainID).String()] = true
	return w
}

func (w *fakeWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rejectAccounts {
		return nil, NewWalletError(CodeUserRejected, "User rejected the request.")
	}
	return append([]common.Address(nil), w.accounts...), nil
}

func (w *fakeWallet) ChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.chainID), nil
}

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	w.mu.Lock()
	if !w.known[chainID.String()] {
		w.mu.Unlock()
		return NewWalletError(CodeUnrecognizedChain, "Unrecognized chain ID")
	}
	w.chainID = new(big.Int).Set(chainID)
	w.mu.Unlock()

	w.feed.Send(WalletEvent{Type: ChainChanged, ChainID: new(big.Int).Set(chainID)})
	return nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sends++
	if w.rejectSend {
		return common.Hash{}, NewWalletError(CodeUserRejected, "MetaMask Tx Signature: User denied transaction signature.")
	}

	w.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], w.nonce)
	hash := crypto.Keccak256Hash(req.From.Bytes(), req.Data, buf[:])

	w.chain.mu.Lock()
	defer w.chain.mu.Unlock()
	if w.chain.sendErr != nil {
		return common.Hash{}, w.chain.sendErr
	}
	w.chain.accept(hash, req.Data, req.Value)
	return hash, nil
}

func (w *fakeWallet) SubscribeEvents(ch chan<- WalletEvent) event.Subscription {
	return w.feed.Subscribe(ch)
}

func (w *fakeWallet) emit(ev WalletEvent) {
	w.feed.Send(ev)
}

func (w *fakeWallet) sendCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sends
}
