package gateway

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
)

var sepolia = big.NewInt(contract.DefaultChainID)

func newTestGateway(t *testing.T, wallet Wallet, chain *fakeChain, opts Options) *Gateway {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	g := New(contract.Default(), wallet, chain, opts)
	t.Cleanup(g.Close)
	return g
}

func newKeyWalletGateway(t *testing.T, opts Options) (*Gateway, *fakeChain, *KeyWallet) {
	t.Helper()
	chain := newFakeChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewKeyWallet(chain, sepolia, nil, key)
	require.NoError(t, err)
	return newTestGateway(t, wallet, chain, opts), chain, wallet
}

func testAccount(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestConnectWithoutWallet(t *testing.T) {
	g := newTestGateway(t, nil, newFakeChain(), Options{})

	_, err := g.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoWallet))

	_, err = g.Withdraw(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoWallet))
}

func TestConnectUserRejected(t *testing.T) {
	chain := newFakeChain()
	wallet := newFakeWallet(chain, contract.DefaultChainID, testAccount(t))
	wallet.rejectAccounts = true
	g := newTestGateway(t, wallet, chain, Options{})

	_, err := g.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserRejected))
	assert.False(t, errors.Is(err, ErrRemoteCall))

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, CodeUserRejected, gwErr.Code)
}

func TestConnectNoAccounts(t *testing.T) {
	chain := newFakeChain()
	g := newTestGateway(t, newFakeWallet(chain, contract.DefaultChainID), chain, Options{})

	_, err := g.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrNoWallet))
}

func TestConnectSwitchesNetwork(t *testing.T) {
	chain := newFakeChain()
	account := testAccount(t)
	wallet := newFakeWallet(chain, 1, account)
	g := newTestGateway(t, wallet, chain, Options{})

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, account, session.Account())
	assert.Equal(t, sepolia, session.ChainID())
	assert.True(t, session.Valid())
}

func TestConnectUnknownNetwork(t *testing.T) {
	chain := newFakeChain()
	wallet := newFakeWallet(chain, 1, testAccount(t))
	delete(wallet.known, sepolia.String())
	g := newTestGateway(t, wallet, chain, Options{})

	_, err := g.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownNetwork))
	assert.False(t, errors.Is(err, ErrUserRejected))
}

func TestWriteNameRoundTrip(t *testing.T) {
	g, _, _ := newKeyWalletGateway(t, Options{})
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	for _, name := range []string{"Alice", "Bob the staker", "名前"} {
		handle, err := g.WriteName(ctx, session, name)
		require.NoError(t, err)
		assert.Equal(t, Pending, handle.Outcome())

		require.NoError(t, g.AwaitConfirmation(ctx, handle))
		assert.Equal(t, Confirmed, handle.Outcome())

		got, err := g.ReadName(ctx)
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}
}

func TestStakeIncreasesBalanceByAmount(t *testing.T) {
	g, chain, _ := newKeyWalletGateway(t, Options{})
	ctx := context.Background()
	chain.setBalance(big.NewInt(123))

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	for _, amount := range []string{"0.5", "1", "0.000000000000000001"} {
		before, err := g.ReadBalance(ctx)
		require.NoError(t, err)

		handle, err := g.Stake(ctx, session, amount)
		require.NoError(t, err)
		require.NoError(t, g.AwaitConfirmation(ctx, handle))

		after, err := g.ReadBalance(ctx)
		require.NoError(t, err)

		want, err := contract.ParseEther(amount)
		require.NoError(t, err)
		assert.Equal(t, want, new(big.Int).Sub(after.Wei, before.Wei), "amount %s", amount)
		assert.Equal(t, want, handle.Value())
	}
}

func TestWithdrawEmptiesBalance(t *testing.T) {
	g, chain, _ := newKeyWalletGateway(t, Options{})
	ctx := context.Background()
	chain.setBalance(big.NewInt(5_000))

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	handle, err := g.Withdraw(ctx, session)
	require.NoError(t, err)
	require.NoError(t, g.AwaitConfirmation(ctx, handle))

	balance, err := g.ReadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", balance.WeiString())
	assert.Equal(t, "0.0", balance.Ether)
}

func TestInvalidInputRejectedWithoutRemoteCall(t *testing.T) {
	chain := newFakeChain()
	wallet := newFakeWallet(chain, contract.DefaultChainID, testAccount(t))
	g := newTestGateway(t, wallet, chain, Options{})

	session, err := g.Connect(context.Background())
	require.NoError(t, err)
	callsBefore := chain.calls.Load()

	_, err = g.WriteName(context.Background(), session, "")
	assert.True(t, errors.Is(err, ErrValidation))

	for _, amount := range []string{"0", "0.0", "-1", "", "abc", "1.0000000000000000001"} {
		_, err = g.Stake(context.Background(), session, amount)
		assert.True(t, errors.Is(err, ErrValidation), "amount %q", amount)
	}

	// no session needed to reject bad input
	_, err = g.WriteName(context.Background(), nil, "")
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, 0, wallet.sendCount())
	assert.Equal(t, int64(0), chain.sent.Load())
	assert.Equal(t, callsBefore, chain.calls.Load())
}

func TestSignatureRejectionIsUserRejected(t *testing.T) {
	chain := newFakeChain()
	wallet := newFakeWallet(chain, contract.DefaultChainID, testAccount(t))
	mm := metrics.NewManager()
	g := newTestGateway(t, wallet, chain, Options{Metrics: mm.GetPrometheusMetrics()})

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	wallet.mu.Lock()
	wallet.rejectSend = true
	wallet.mu.Unlock()

	_, err = g.Stake(context.Background(), session, "0.1")
	require.Error(t, err)
	assert.Equal(t, UserRejected, KindOf(err))
	assert.False(t, errors.Is(err, ErrRemoteCall))
	assert.Contains(t, err.Error(), "User denied transaction signature")

	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().TransactionsSubmittedTotal.WithLabelValues(contract.MethodStake, "rejected")))
}

func TestRemoteFailureIsSurfacedVerbatim(t *testing.T) {
	g, chain, _ := newKeyWalletGateway(t, Options{})
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	chain.mu.Lock()
	chain.sendErr = errors.New("insufficient funds for gas * price + value")
	chain.mu.Unlock()

	_, err = g.WriteName(ctx, session, "Carol")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteCall))
	assert.False(t, errors.Is(err, ErrUserRejected))
	assert.Contains(t, err.Error(), "insufficient funds for gas * price + value")
}

func TestHandleResolvesExactlyOnce(t *testing.T) {
	mm := metrics.NewManager()
	g, chain, _ := newKeyWalletGateway(t, Options{Metrics: mm.GetPrometheusMetrics()})
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	handle, err := g.WriteName(ctx, session, "Dave")
	require.NoError(t, err)

	first, err := handle.Await(ctx)
	require.NoError(t, err)
	polls := chain.receiptCalls.Load()

	second, err := handle.Await(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, polls, chain.receiptCalls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().TransactionsResolvedTotal.WithLabelValues(contract.MethodUpdateName, "confirmed")))
}

func TestConcurrentAwaitResolvesOnce(t *testing.T) {
	mm := metrics.NewManager()
	g, chain, _ := newKeyWalletGateway(t, Options{Metrics: mm.GetPrometheusMetrics()})
	chain.setMinePolls(4)
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)
	handle, err := g.Stake(ctx, session, "2")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := handle.Await(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().TransactionsResolvedTotal.WithLabelValues(contract.MethodStake, "confirmed")))
	balance, err := g.ReadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0", balance.Ether)
}

func TestRevertedTransactionFails(t *testing.T) {
	g, chain, _ := newKeyWalletGateway(t, Options{})
	chain.setRevert(true)
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	handle, err := g.Withdraw(ctx, session)
	require.NoError(t, err)

	err = g.AwaitConfirmation(ctx, handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.Equal(t, Failed, handle.Outcome())

	// memoised
	err = g.AwaitConfirmation(ctx, handle)
	assert.True(t, errors.Is(err, ErrTransactionFailed))
}

func TestAwaitCancelledLeavesHandlePending(t *testing.T) {
	g, chain, _ := newKeyWalletGateway(t, Options{})
	chain.setMinePolls(1_000_000)

	session, err := g.Connect(context.Background())
	require.NoError(t, err)
	handle, err := g.WriteName(context.Background(), session, "Eve")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = handle.Await(ctx)
	require.Error(t, err)
	assert.Equal(t, Pending, handle.Outcome())

	chain.setMinePolls(0)
	require.NoError(t, g.AwaitConfirmation(context.Background(), handle))
	assert.Equal(t, Confirmed, handle.Outcome())
}

func TestAccountChangeRebindsSession(t *testing.T) {
	chain := newFakeChain()
	first, err := crypto.GenerateKey()
	require.NoError(t, err)
	second, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewKeyWallet(chain, sepolia, nil, first, second)
	require.NoError(t, err)
	g := newTestGateway(t, wallet, chain, Options{})

	changed := make(chan common.Address, 1)
	g.OnAccountChange(func(addr common.Address) { changed <- addr })

	session, err := g.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(first.PublicKey), session.Account())

	secondAddr := crypto.PubkeyToAddress(second.PublicKey)
	require.NoError(t, wallet.SelectAccount(secondAddr))

	select {
	case addr := <-changed:
		assert.Equal(t, secondAddr, addr)
	case <-time.After(time.Second):
		t.Fatal("account change not delivered")
	}
	assert.Equal(t, secondAddr, session.Account())
	assert.True(t, session.Valid())

	handle, err := g.WriteName(context.Background(), session, "Frank")
	require.NoError(t, err)
	assert.Equal(t, secondAddr, handle.From())
}

func TestNetworkChangeInvalidatesSession(t *testing.T) {
	chain := newFakeChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewKeyWallet(chain, sepolia, []*big.Int{big.NewInt(1)}, key)
	require.NoError(t, err)
	g := newTestGateway(t, wallet, chain, Options{})

	changed := make(chan *big.Int, 1)
	g.OnNetworkChange(func(id *big.Int) { changed <- id })

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, wallet.SwitchChain(context.Background(), big.NewInt(1)))

	select {
	case id := <-changed:
		assert.Equal(t, int64(1), id.Int64())
	case <-time.After(time.Second):
		t.Fatal("network change not delivered")
	}
	assert.False(t, session.Valid())

	_, err = g.WriteName(context.Background(), session, "Grace")
	assert.True(t, errors.Is(err, ErrSessionInvalid))

	// reconnecting switches back and yields a fresh session
	fresh, err := g.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, fresh.Valid())
	assert.Equal(t, sepolia, fresh.ChainID())
}

func TestNetworkChangeRebindPolicy(t *testing.T) {
	chain := newFakeChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewKeyWallet(chain, sepolia, []*big.Int{big.NewInt(1)}, key)
	require.NoError(t, err)
	g := newTestGateway(t, wallet, chain, Options{NetworkPolicy: RebindOnNetworkChange})
	ctx := context.Background()

	session, err := g.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, wallet.SwitchChain(ctx, big.NewInt(1)))
	require.Eventually(t, func() bool { return session.ChainID().Int64() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, session.Valid())

	_, err = g.WriteName(ctx, session, "Heidi")
	assert.True(t, errors.Is(err, ErrSessionInvalid))

	require.NoError(t, g.EnsureNetwork(ctx, sepolia))
	require.Eventually(t, func() bool { return session.ChainID().Cmp(sepolia) == 0 }, time.Second, 5*time.Millisecond)

	handle, err := g.WriteName(ctx, session, "Heidi")
	require.NoError(t, err)
	require.NoError(t, g.AwaitConfirmation(ctx, handle))
}

func TestWalletDisconnectInvalidatesSession(t *testing.T) {
	chain := newFakeChain()
	wallet := newFakeWallet(chain, contract.DefaultChainID, testAccount(t))
	g := newTestGateway(t, wallet, chain, Options{})

	changed := make(chan common.Address, 1)
	unsubscribe := g.OnAccountChange(func(addr common.Address) { changed <- addr })
	defer unsubscribe()

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	wallet.emit(WalletEvent{Type: AccountsChanged})

	select {
	case addr := <-changed:
		assert.Equal(t, common.Address{}, addr)
	case <-time.After(time.Second):
		t.Fatal("disconnect not delivered")
	}
	assert.False(t, session.Valid())
}

func TestUnsubscribedHandlerIsNotCalled(t *testing.T) {
	chain := newFakeChain()
	account := testAccount(t)
	wallet := newFakeWallet(chain, contract.DefaultChainID, account)
	g := newTestGateway(t, wallet, chain, Options{})

	var mu sync.Mutex
	calls := 0
	unsubscribe := g.OnAccountChange(func(common.Address) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	done := make(chan struct{}, 1)
	g.OnAccountChange(func(common.Address) { done <- struct{}{} })

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	unsubscribe()
	wallet.emit(WalletEvent{Type: AccountsChanged, Accounts: []common.Address{account}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()
	assert.True(t, session.Valid())
}

func TestCloseInvalidatesSession(t *testing.T) {
	g, _, _ := newKeyWalletGateway(t, Options{})

	session, err := g.Connect(context.Background())
	require.NoError(t, err)

	g.Close()
	assert.False(t, session.Valid())
	assert.Nil(t, g.Session())

	_, err = g.Withdraw(context.Background(), session)
	assert.True(t, errors.Is(err, ErrSessionInvalid))
}

func TestWriteWithoutSession(t *testing.T) {
	g, _, _ := newKeyWalletGateway(t, Options{})

	_, err := g.WriteName(context.Background(), nil, "Ivan")
	assert.True(t, errors.Is(err, ErrSessionInvalid))
}

func TestReconnectFromNetworkChangeHandler(t *testing.T) {
	chain := newFakeChain()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet, err := NewKeyWallet(chain, sepolia, []*big.Int{big.NewInt(1)}, key)
	require.NoError(t, err)
	g := newTestGateway(t, wallet, chain, Options{})
	ctx := context.Background()

	type reconnect struct {
		session *Session
		err     error
	}
	reconnected := make(chan reconnect, 1)
	var once sync.Once
	g.OnNetworkChange(func(*big.Int) {
		once.Do(func() {
			s, err := g.Connect(ctx)
			reconnected <- reconnect{session: s, err: err}
		})
	})

	stale, err := g.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, wallet.SwitchChain(ctx, big.NewInt(1)))

	select {
	case r := <-reconnected:
		require.NoError(t, r.err)
		assert.True(t, r.session.Valid())
		assert.Equal(t, sepolia, r.session.ChainID())
		assert.Same(t, r.session, g.Session())
	case <-time.After(2 * time.Second):
		t.Fatal("Connect from a network change handler did not return")
	}
	assert.False(t, stale.Valid())
}

func TestCloseDoesNotWaitForRunningHandler(t *testing.T) {
	chain := newFakeChain()
	account := testAccount(t)
	wallet := newFakeWallet(chain, contract.DefaultChainID, account)
	g := newTestGateway(t, wallet, chain, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan *Session, 1)
	g.OnAccountChange(func(common.Address) {
		close(entered)
		<-release
		seen <- g.Session()
	})

	_, err := g.Connect(context.Background())
	require.NoError(t, err)
	wallet.emit(WalletEvent{Type: AccountsChanged, Accounts: []common.Address{account}})
	<-entered

	closed := make(chan struct{})
	go func() {
		g.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a running handler")
	}
	close(release)

	select {
	case s := <-seen:
		assert.Nil(t, s)
	case <-time.After(2 * time.Second):
		t.Fatal("handler could not read the session")
	}
}

func TestInputChecksNeedNoGateway(t *testing.T) {
	assert.True(t, errors.Is(ValidateName(""), ErrValidation))
	assert.NoError(t, ValidateName("Judy"))

	for _, amount := range []string{"0", "0.0", "-1", "abc", ""} {
		_, err := ParseStakeAmount(amount)
		assert.True(t, errors.Is(err, ErrValidation), amount)
	}

	wei, err := ParseStakeAmount("0.05")
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", wei.String())
}
