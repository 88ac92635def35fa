package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/contract-gateway/internal/config"
	"github.com/smartdevs17/contract-gateway/internal/connection"
	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/gateway"
	"github.com/smartdevs17/contract-gateway/internal/metrics"
	"github.com/smartdevs17/contract-gateway/internal/storage"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// Application holds the components a command needs
type Application struct {
	config     *config.Config
	logger     *logrus.Entry
	metrics    *metrics.Manager
	connection connection.Manager
	chain      *connection.ChainClient
	descriptor *contract.Descriptor
	reader     *gateway.Reader
	gateway    *gateway.Gateway
	journal    storage.Journal
	closers    []func()
}

// NewApplication wires the read side: logger, metrics, node connection,
// contract descriptor and reader. Signing and the journal are opt-in.
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	descriptor, err := newDescriptor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract descriptor: %w", err)
	}
	app.descriptor = descriptor

	app.metrics = metrics.NewManager()
	cm := connection.NewConnectionManager(&cfg.Chain, app.metrics)
	app.connection = cm
	app.chain = connection.NewChainClient(cm)
	app.reader = gateway.NewReader(descriptor, app.chain, app.metrics.GetPrometheusMetrics())

	app.logger.WithFields(logrus.Fields{
		"contract": descriptor.Address().Hex(),
		"network":  descriptor.Network().Name,
		"node":     cfg.Chain.NodeURL,
	}).Debug("Application initialized")

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.ComponentLogger("app")
	return nil
}

// initializeGateway builds the configured wallet and the signing gateway
func (app *Application) initializeGateway(ctx context.Context) error {
	wallet, err := app.buildWallet(ctx)
	if err != nil {
		return err
	}

	policy := gateway.InvalidateOnNetworkChange
	if app.config.Transactions.RebindOnNetworkChange {
		policy = gateway.RebindOnNetworkChange
	}

	app.gateway = gateway.New(app.descriptor, wallet, app.chain, gateway.Options{
		PollInterval:  app.config.Transactions.PollInterval,
		NetworkPolicy: policy,
		Metrics:       app.metrics.GetPrometheusMetrics(),
	})
	app.closers = append(app.closers, app.gateway.Close)
	return nil
}

// buildWallet returns nil when no signer is configured; the gateway then
// fails write operations with NoWallet.
func (app *Application) buildWallet(ctx context.Context) (gateway.Wallet, error) {
	walletCfg := app.config.Wallet

	switch strings.ToLower(walletCfg.Type) {
	case "rpc":
		w, err := gateway.DialRPCWallet(ctx, walletCfg.RPCURL, walletCfg.WatchInterval)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, w.Close)
		return w, nil

	case "key":
		if walletCfg.PrivateKey == "" {
			return nil, nil
		}
		key, err := gateway.ParsePrivateKey(walletCfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return app.newKeyWallet(key)

	case "keystore":
		key, err := gateway.LoadKeystore(walletCfg.KeystorePath, walletCfg.Passphrase)
		if err != nil {
			return nil, err
		}
		return app.newKeyWallet(key)

	case "none", "":
		return nil, nil

	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported wallet type", walletCfg.Type)
	}
}

func (app *Application) newKeyWallet(key *ecdsa.PrivateKey) (gateway.Wallet, error) {
	w, err := gateway.NewKeyWallet(app.chain, app.config.Chain.ChainIDBig(), knownChains(app.config.Wallet.KnownChains), key)
	if err != nil {
		return nil, err
	}

	if account := app.config.Wallet.Account; account != "" {
		if !utils.IsValidAddress(account) {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Wallet account is invalid", account)
		}
		if err := w.SelectAccount(common.HexToAddress(account)); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// initializeJournal opens and migrates the transaction journal
func (app *Application) initializeJournal() error {
	journal, err := storage.NewJournal(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := journal.Connect(); err != nil {
		return err
	}
	if err := journal.Migrate(); err != nil {
		journal.Close()
		return err
	}

	app.journal = storage.NewJournalWithMetrics(journal, app.metrics)
	app.closers = append(app.closers, func() {
		if err := journal.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close journal")
		}
	})
	return nil
}

// Close releases everything the application opened, newest first
func (app *Application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil

	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}
}

// newDescriptor builds the contract descriptor from configuration
func newDescriptor(cfg *config.Config) (*contract.Descriptor, error) {
	var abiJSON io.Reader = bytes.NewReader(contract.DefaultABI())
	if cfg.Contract.ABIPath != "" {
		r, err := contract.LoadABI(cfg.Contract.ABIPath)
		if err != nil {
			return nil, err
		}
		abiJSON = r
	}

	return contract.NewDescriptor(cfg.Contract.Address, abiJSON, contract.Network{
		ChainID: cfg.Chain.ChainIDBig(),
		Name:    cfg.Chain.NetworkName,
		RPCURL:  cfg.Chain.NodeURL,
	})
}

func knownChains(ids []int64) []*big.Int {
	chains := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		chains = append(chains, big.NewInt(id))
	}
	return chains
}
