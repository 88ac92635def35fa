// Package gateway turns typed contract intents into wallet and node calls.
package gateway

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// ChainBackend is the read side of the node the gateway needs.
type ChainBackend interface {
	ethereum.ContractCaller
	ReceiptReader
}

// NetworkChangePolicy decides what a chainChanged event does to the session.
type NetworkChangePolicy int

const (
	// InvalidateOnNetworkChange ends the session; the caller must reconnect.
	InvalidateOnNetworkChange NetworkChangePolicy = iota
	// RebindOnNetworkChange keeps the session and records the new chain.
	RebindOnNetworkChange
)

// Options tune a Gateway.
type Options struct {
	PollInterval  time.Duration
	NetworkPolicy NetworkChangePolicy
	Metrics       *metrics.PrometheusMetrics
}

// Gateway is the signing surface over one contract.
type Gateway struct {
	descriptor *contract.Descriptor
	wallet     Wallet
	backend    ChainBackend
	reader     *Reader
	opts       Options
	logger     *logrus.Entry

	mu      sync.Mutex
	session *Session
	sub     event.Subscription
	quit    chan struct{}

	handlersMu      sync.RWMutex
	nextHandlerID   int
	accountHandlers map[int]func(common.Address)
	networkHandlers map[int]func(*big.Int)
}

// New creates a gateway. wallet may be nil, in which case every operation
// that needs a signer fails with NoWallet.
func New(descriptor *contract.Descriptor, wallet Wallet, backend ChainBackend, opts Options) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Gateway{
		descriptor:      descriptor,
		wallet:          wallet,
		backend:         backend,
		reader:          NewReader(descriptor, backend, opts.Metrics),
		opts:            opts,
		logger:          utils.ComponentLogger("gateway"),
		accountHandlers: make(map[int]func(common.Address)),
		networkHandlers: make(map[int]func(*big.Int)),
	}
}

// Descriptor returns the contract the gateway is bound to
func (g *Gateway) Descriptor() *contract.Descriptor {
	return g.descriptor
}

// Connect requests account access, makes sure the wallet is on the
// contract's network and binds a Session to the first account. Wallet events
// are dispatched to the registered handlers until Close or the next Connect.
// Handlers may call back into the gateway, including Connect itself.
func (g *Gateway) Connect(ctx context.Context) (*Session, error) {
	if g.wallet == nil {
		return nil, newError(NoWallet, "no wallet available: configure a wallet to sign transactions")
	}

	accounts, err := g.wallet.RequestAccounts(ctx)
	if err != nil {
		g.logger.WithError(err).Error("Wallet account request failed")
		return nil, Classify(err)
	}
	if len(accounts) == 0 {
		return nil, newError(NoWallet, "wallet returned no accounts")
	}

	if err := g.EnsureNetwork(ctx, g.descriptor.ChainID()); err != nil {
		return nil, err
	}

	chainID, err := g.wallet.ChainID(ctx)
	if err != nil {
		g.logger.WithError(err).Error("Failed to read wallet chain")
		return nil, Classify(err)
	}

	session := newSession(accounts[0], chainID)

	g.mu.Lock()
	g.stopLocked()
	g.session = session
	events := make(chan WalletEvent, 16)
	g.sub = g.wallet.SubscribeEvents(events)
	g.quit = make(chan struct{})
	go g.dispatch(session, events, g.sub, g.quit)
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"account":  utils.ShortAddress(session.Account()),
		"chain_id": chainID,
	}).Info("Wallet connected")

	return session, nil
}

// EnsureNetwork asks the wallet to switch to expected if it is on another
// chain. A chain the wallet does not know fails with UnknownNetwork.
func (g *Gateway) EnsureNetwork(ctx context.Context, expected *big.Int) error {
	if g.wallet == nil {
		return newError(NoWallet, "no wallet available: configure a wallet to sign transactions")
	}

	current, err := g.wallet.ChainID(ctx)
	if err != nil {
		g.logger.WithError(err).Error("Failed to read wallet chain")
		return Classify(err)
	}
	if current.Cmp(expected) == 0 {
		return nil
	}

	g.logger.WithFields(logrus.Fields{"from": current, "to": expected}).Info("Requesting network switch")
	if err := g.wallet.SwitchChain(ctx, expected); err != nil {
		g.logger.WithError(err).Error("Network switch failed")
		return Classify(err)
	}
	return nil
}

// ReadName returns the contract's stored name
func (g *Gateway) ReadName(ctx context.Context) (string, error) {
	return g.reader.ReadName(ctx)
}

// ReadBalance returns the contract's balance
func (g *Gateway) ReadBalance(ctx context.Context) (contract.Balance, error) {
	return g.reader.ReadBalance(ctx)
}

// WriteName submits updateName(name). It returns once the wallet accepted the
// transaction; use AwaitConfirmation to wait for inclusion.
func (g *Gateway) WriteName(ctx context.Context, s *Session, name string) (*TxHandle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return g.submit(ctx, s, contract.MethodUpdateName, name, nil, name)
}

// Stake submits stake() with amountEther converted to wei as the value.
func (g *Gateway) Stake(ctx context.Context, s *Session, amountEther string) (*TxHandle, error) {
	wei, err := ParseStakeAmount(amountEther)
	if err != nil {
		return nil, err
	}
	return g.submit(ctx, s, contract.MethodStake, amountEther, wei)
}

// ValidateName checks an updateName argument without touching the wallet.
func ValidateName(name string) error {
	if name == "" {
		return newError(Validation, "name must not be empty")
	}
	return nil
}

// ParseStakeAmount converts an ether amount to wei. Zero and negative
// amounts fail with Validation.
func ParseStakeAmount(amountEther string) (*big.Int, error) {
	wei, err := contract.ParseEther(amountEther)
	if err != nil {
		return nil, &Error{Kind: Validation, Message: "invalid stake amount: " + err.Error(), Err: err}
	}
	if wei.Sign() <= 0 {
		return nil, newError(Validation, "stake amount must be greater than zero")
	}
	return wei, nil
}

// Withdraw submits withdraw()
func (g *Gateway) Withdraw(ctx context.Context, s *Session) (*TxHandle, error) {
	return g.submit(ctx, s, contract.MethodWithdraw, "", nil)
}

// AwaitConfirmation waits for h to be included
func (g *Gateway) AwaitConfirmation(ctx context.Context, h *TxHandle) error {
	_, err := h.Await(ctx)
	return err
}

func (g *Gateway) submit(ctx context.Context, s *Session, method, argument string, value *big.Int, args ...interface{}) (*TxHandle, error) {
	if g.wallet == nil {
		return nil, newError(NoWallet, "no wallet available: configure a wallet to sign transactions")
	}
	from, err := s.signer()
	if err != nil {
		return nil, err
	}
	if chainID := s.ChainID(); chainID.Cmp(g.descriptor.ChainID()) != 0 {
		return nil, newError(SessionInvalid, "session is on chain %s but the contract is on chain %s", chainID, g.descriptor.ChainID())
	}

	data, err := g.descriptor.Pack(method, args...)
	if err != nil {
		return nil, &Error{Kind: Validation, Message: err.Error(), Err: err}
	}

	hash, err := g.wallet.SendTransaction(ctx, TxRequest{
		From:  from,
		To:    g.descriptor.Address(),
		Data:  data,
		Value: value,
	})
	if err != nil {
		classified := Classify(err)
		status := "error"
		if KindOf(classified) == UserRejected {
			status = "rejected"
		}
		g.logger.WithFields(logrus.Fields{
			"method": method,
			"from":   utils.ShortAddress(from),
			"error":  err,
		}).Error("Transaction submission failed")
		g.recordSubmitted(method, status)
		return nil, classified
	}

	g.recordSubmitted(method, "submitted")
	g.logger.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": hash.Hex(),
		"from":    utils.ShortAddress(from),
	}).Info("Transaction submitted")

	return newTxHandle(hash, method, argument, from, value, g.backend, g.opts.PollInterval, g.resolved), nil
}

func (g *Gateway) resolved(h *TxHandle) {
	outcome := h.Outcome()
	fields := logrus.Fields{"method": h.Method(), "tx_hash": h.Hash().Hex(), "outcome": outcome.String()}
	if receipt := h.Receipt(); receipt != nil {
		fields["block"] = receipt.BlockNumber
		fields["gas_used"] = receipt.GasUsed
	}
	if outcome == Failed {
		g.logger.WithFields(fields).Error("Transaction failed")
	} else {
		g.logger.WithFields(fields).Info("Transaction confirmed")
	}

	if g.opts.Metrics != nil {
		g.opts.Metrics.RecordTransactionResolved(h.Method(), outcome.String(), time.Since(h.SubmittedAt()))
	}
}

func (g *Gateway) recordSubmitted(method, status string) {
	if g.opts.Metrics != nil {
		g.opts.Metrics.RecordTransactionSubmitted(method, status)
	}
}

// OnAccountChange registers handler for account changes. The zero address
// signals that the wallet disconnected. The returned func unregisters it.
func (g *Gateway) OnAccountChange(handler func(common.Address)) func() {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()

	id := g.nextHandlerID
	g.nextHandlerID++
	g.accountHandlers[id] = handler

	return func() {
		g.handlersMu.Lock()
		delete(g.accountHandlers, id)
		g.handlersMu.Unlock()
	}
}

// OnNetworkChange registers handler for chain changes. The returned func
// unregisters it.
func (g *Gateway) OnNetworkChange(handler func(*big.Int)) func() {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()

	id := g.nextHandlerID
	g.nextHandlerID++
	g.networkHandlers[id] = handler

	return func() {
		g.handlersMu.Lock()
		delete(g.networkHandlers, id)
		g.handlersMu.Unlock()
	}
}

// Session returns the current session, nil before Connect
func (g *Gateway) Session() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Close stops event dispatch and invalidates the session. It does not wait
// for a handler that is already running; no further events are delivered.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.stopLocked()
	g.mu.Unlock()
}

// stopLocked must not block on the dispatch goroutine: it is reached from
// handlers running on that goroutine.
func (g *Gateway) stopLocked() {
	if g.sub != nil {
		g.sub.Unsubscribe()
		close(g.quit)
		g.sub = nil
		g.quit = nil
	}
	if g.session != nil {
		g.session.invalidate()
		g.session = nil
	}
}

func (g *Gateway) dispatch(session *Session, events <-chan WalletEvent, sub event.Subscription, quit <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			select {
			case <-quit:
				return
			default:
			}
			g.handleEvent(session, ev)
		case err := <-sub.Err():
			if err != nil {
				g.logger.WithError(err).Warn("Wallet event subscription ended")
			}
			return
		case <-quit:
			return
		}
	}
}

func (g *Gateway) handleEvent(session *Session, ev WalletEvent) {
	switch ev.Type {
	case AccountsChanged:
		var account common.Address
		if len(ev.Accounts) == 0 {
			session.invalidate()
			g.logger.Warn("Wallet disconnected, session invalidated")
		} else {
			account = ev.Accounts[0]
			session.rebind(account)
			g.logger.WithField("account", utils.ShortAddress(account)).Info("Account changed")
		}

		g.handlersMu.RLock()
		handlers := make([]func(common.Address), 0, len(g.accountHandlers))
		for _, h := range g.accountHandlers {
			handlers = append(handlers, h)
		}
		g.handlersMu.RUnlock()

		for _, h := range handlers {
			h(account)
		}

	case ChainChanged:
		if ev.ChainID == nil || ev.ChainID.Cmp(session.ChainID()) == 0 {
			return
		}
		if g.opts.NetworkPolicy == RebindOnNetworkChange {
			session.setChain(ev.ChainID)
			g.logger.WithField("chain_id", ev.ChainID).Info("Network changed, session rebound")
		} else {
			session.invalidate()
			g.logger.WithField("chain_id", ev.ChainID).Warn("Network changed, session invalidated")
		}

		g.handlersMu.RLock()
		handlers := make([]func(*big.Int), 0, len(g.networkHandlers))
		for _, h := range g.networkHandlers {
			handlers = append(handlers, h)
		}
		g.handlersMu.RUnlock()

		for _, h := range handlers {
			h(new(big.Int).Set(ev.ChainID))
		}
	}
}
