package connection

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// ChainClient exposes the subset of the node API the gateway uses, on top of
// the connection manager. Every call is a single attempt.
type ChainClient struct {
	manager *ConnectionManager
	logger  *logrus.Entry
}

// NewChainClient creates a chain client backed by manager
func NewChainClient(manager *ConnectionManager) *ChainClient {
	return &ChainClient{
		manager: manager,
		logger:  utils.ComponentLogger("chain_client"),
	}
}

// CallContract executes a read-only message call
func (cc *ChainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := cc.manager.do(ctx, "eth_call", func(c *ethclient.Client) error {
		var err error
		out, err = c.CallContract(ctx, msg, blockNumber)
		return err
	})
	if err != nil {
		cc.logger.WithFields(logrus.Fields{"to": addressField(msg.To), "error": err}).Debug("Contract call failed")
		return nil, err
	}
	return out, nil
}

// TransactionReceipt returns the receipt of a mined transaction. A transaction
// that is still pending yields ethereum.NotFound.
func (cc *ChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := cc.manager.do(ctx, "eth_getTransactionReceipt", func(c *ethclient.Client) error {
		var err error
		receipt, err = c.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			// not an RPC failure
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// PendingNonceAt returns the next nonce for account
func (cc *ChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := cc.manager.do(ctx, "eth_getTransactionCount", func(c *ethclient.Client) error {
		var err error
		nonce, err = c.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (cc *ChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := cc.manager.do(ctx, "eth_gasPrice", func(c *ethclient.Client) error {
		var err error
		price, err = c.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// SuggestGasTipCap returns the node's priority fee suggestion
func (cc *ChainClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := cc.manager.do(ctx, "eth_maxPriorityFeePerGas", func(c *ethclient.Client) error {
		var err error
		tip, err = c.SuggestGasTipCap(ctx)
		return err
	})
	return tip, err
}

// HeaderByNumber returns a block header; nil means latest
func (cc *ChainClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := cc.manager.do(ctx, "eth_getBlockByNumber", func(c *ethclient.Client) error {
		var err error
		header, err = c.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// EstimateGas estimates the gas needed for msg
func (cc *ChainClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := cc.manager.do(ctx, "eth_estimateGas", func(c *ethclient.Client) error {
		var err error
		gas, err = c.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SendTransaction broadcasts a signed transaction
func (cc *ChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := cc.manager.do(ctx, "eth_sendRawTransaction", func(c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
	if err != nil {
		cc.logger.WithFields(logrus.Fields{"tx_hash": tx.Hash().Hex(), "error": err}).Warn("Failed to broadcast transaction")
		return err
	}
	cc.logger.WithField("tx_hash", tx.Hash().Hex()).Debug("Transaction broadcast")
	return nil
}

// ChainID returns the chain id reported by the node
func (cc *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	return cc.manager.GetChainID(ctx)
}

// BlockNumber returns the latest block number
func (cc *ChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	return cc.manager.GetLatestBlockNumber(ctx)
}

// ClientVersion returns web3_clientVersion of the connected node
func (cc *ChainClient) ClientVersion(ctx context.Context) (string, error) {
	var version string
	if err := cc.manager.Call(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

func addressField(addr *common.Address) string {
	if addr == nil {
		return ""
	}
	return addr.Hex()
}
