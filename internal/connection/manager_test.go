package connection

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/contract-gateway/internal/config"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
)

type ethService struct {
	chainID  int64
	block    uint64
	callData hexutil.Bytes
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(s.chainID))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(s.block)
}

func (s *ethService) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	if args["to"] == nil {
		return nil, errors.New("missing to")
	}
	return s.callData, nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	return nil, nil
}

type web3Service struct{}

func (web3Service) ClientVersion() string {
	return "fakenode/v1.0.0"
}

func newFakeNode(t *testing.T, chainID int64) *httptest.Server {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethService{
		chainID:  chainID,
		block:    4242,
		callData: hexutil.Bytes{0x01, 0x02},
	}))
	require.NoError(t, server.RegisterName("web3", web3Service{}))

	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer
}

func testChainConfig(url string, chainID int64) *config.ChainConfig {
	return &config.ChainConfig{
		NodeURL:           url,
		ChainID:           chainID,
		RequestTimeout:    5 * time.Second,
		DialRetryAttempts: 1,
	}
}

func TestHealthCheckPasses(t *testing.T) {
	node := newFakeNode(t, 11155111)
	cm := NewConnectionManager(testChainConfig(node.URL, 11155111), metrics.NewManager())
	defer cm.Close()

	require.NoError(t, cm.HealthCheckWithContext(context.Background()))
	assert.True(t, cm.Stats().IsHealthy)

	stats := cm.Stats()
	assert.Equal(t, uint64(11155111), stats.ChainID)
	assert.Equal(t, uint64(4242), stats.LatestBlock)
	assert.Equal(t, node.URL, stats.CurrentURL)
}

func TestHealthCheckChainMismatch(t *testing.T) {
	node := newFakeNode(t, 1)
	cm := NewConnectionManager(testChainConfig(node.URL, 11155111), nil)
	defer cm.Close()

	err := cm.HealthCheckWithContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Chain ID mismatch")
	assert.False(t, cm.Stats().IsHealthy)
}

func TestFailoverToBackupNode(t *testing.T) {
	node := newFakeNode(t, 31337)
	cfg := testChainConfig("http://127.0.0.1:1", 31337)
	cfg.BackupNodes = []string{node.URL}

	cm := NewConnectionManager(cfg, nil)
	defer cm.Close()

	_, err := cm.GetClientWithContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.URL, cm.Stats().CurrentURL)
}

func TestConnectFailsWhenNoNodeAnswers(t *testing.T) {
	cm := NewConnectionManager(testChainConfig("http://127.0.0.1:1", 1), nil)

	_, err := cm.GetClientWithContext(context.Background())
	require.Error(t, err)
	assert.False(t, cm.Stats().IsHealthy)
}

func TestChainClientCalls(t *testing.T) {
	node := newFakeNode(t, 31337)
	mm := metrics.NewManager()
	cm := NewConnectionManager(testChainConfig(node.URL, 31337), mm)
	defer cm.Close()
	client := NewChainClient(cm)
	ctx := context.Background()

	to := common.HexToAddress("0x1fd3a9d39f946c55da34a87068c085847a6ff810")
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: []byte{0x17, 0xd7, 0xde, 0x7c}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)

	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(31337), chainID.Int64())

	block, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), block)

	version, err := client.ClientVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fakenode/v1.0.0", version)

	_, err = client.TransactionReceipt(ctx, common.HexToHash("0xabc"))
	assert.True(t, errors.Is(err, ethereum.NotFound))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().RPCRequestsTotal.WithLabelValues(node.URL, "eth_call", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().RPCRequestsTotal.WithLabelValues(node.URL, "eth_getTransactionReceipt", "success")))
}

func TestChainClientCallErrorIsNotRetried(t *testing.T) {
	node := newFakeNode(t, 31337)
	mm := metrics.NewManager()
	cm := NewConnectionManager(testChainConfig(node.URL, 31337), mm)
	defer cm.Close()
	client := NewChainClient(cm)

	_, err := client.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		mm.GetPrometheusMetrics().RPCRequestsTotal.WithLabelValues(node.URL, "eth_call", "error")))
	assert.Equal(t, uint64(1), cm.Stats().FailedRequests)
}

func TestStaleClientCheckIgnoresCallerCancellation(t *testing.T) {
	node := newFakeNode(t, 31337)
	cm := NewConnectionManager(testChainConfig(node.URL, 31337), nil)
	defer cm.Close()

	client, err := cm.GetClientWithContext(context.Background())
	require.NoError(t, err)

	cm.mu.Lock()
	cm.lastHealthCheck = time.Now().Add(-2 * time.Minute)
	cm.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	again, err := cm.GetClientWithContext(ctx)
	require.NoError(t, err)
	assert.Same(t, client, again)
	assert.Zero(t, cm.Stats().Reconnects)
}
