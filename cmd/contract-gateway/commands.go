package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/contract-gateway/internal/contract"
	"github.com/smartdevs17/contract-gateway/internal/gateway"
	"github.com/smartdevs17/contract-gateway/internal/models"
	"github.com/smartdevs17/contract-gateway/internal/server"
	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// serveCmd runs the read-only HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the contract's read calls over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		srvCfg := app.config.Server
		httpServer := server.NewHTTPServer(&server.ServerConfig{
			Port:          srvCfg.Port,
			Host:          srvCfg.Host,
			ReadTimeout:   srvCfg.ReadTimeout,
			WriteTimeout:  srvCfg.WriteTimeout,
			EnableMetrics: srvCfg.EnableMetrics,
			EnableCORS:    srvCfg.EnableCORS,
		}, app.descriptor, app.reader, app.metrics)

		if err := httpServer.Start(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server running on http://%s\n", httpServer.Addr())

		// main cancels the command context on SIGINT/SIGTERM
		<-cmd.Context().Done()
		fmt.Fprintln(cmd.OutOrStdout(), "\nReceived shutdown signal, stopping server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Stop(ctx)
	},
}

var nameCmd = &cobra.Command{
	Use:   "name",
	Short: "Read the contract's stored name",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		name, err := app.reader.ReadName(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Name: %s\n", displayName(name))
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Read the contract's balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		balance, err := app.reader.ReadBalance(cmd.Context())
		if err != nil {
			return err
		}
		printBalance(cmd.OutOrStdout(), balance)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read name and balance together",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		var (
			name    string
			balance contract.Balance
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() (err error) {
			name, err = app.reader.ReadName(ctx)
			return err
		})
		g.Go(func() (err error) {
			balance, err = app.reader.ReadBalance(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Contract: %s\n", utils.NormalizeAddress(app.descriptor.Address().Hex()))
		fmt.Fprintf(out, "Network: %s (chain %s)\n", app.descriptor.Network().Name, app.descriptor.ChainID())
		fmt.Fprintf(out, "Name: %s\n", displayName(name))
		printBalance(out, balance)
		return nil
	},
}

var updateNameCmd = &cobra.Command{
	Use:   "update-name <name>",
	Short: "Store a new name in the contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		check := func() error { return gateway.ValidateName(args[0]) }
		return runWrite(cmd, check, func(ctx context.Context, g *gateway.Gateway, s *gateway.Session) (*gateway.TxHandle, error) {
			return g.WriteName(ctx, s, args[0])
		})
	},
}

var stakeCmd = &cobra.Command{
	Use:   "stake <amount-eth>",
	Short: "Send ether to the contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		check := func() error {
			_, err := gateway.ParseStakeAmount(args[0])
			return err
		}
		return runWrite(cmd, check, func(ctx context.Context, g *gateway.Gateway, s *gateway.Session) (*gateway.TxHandle, error) {
			return g.Stake(ctx, s, args[0])
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw the contract's balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWrite(cmd, nil, func(ctx context.Context, g *gateway.Gateway, s *gateway.Session) (*gateway.TxHandle, error) {
			return g.Withdraw(ctx, s)
		})
	},
}

type submitFunc func(ctx context.Context, g *gateway.Gateway, s *gateway.Session) (*gateway.TxHandle, error)

// runWrite checks the input locally, then connects the wallet, submits,
// journals and waits for the outcome. check may be nil.
func runWrite(cmd *cobra.Command, check func() error, submit submitFunc) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	noWait, _ := cmd.Flags().GetBool("no-wait")

	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}

	app, err := loadApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.initializeGateway(ctx); err != nil {
		return err
	}
	if err := app.initializeJournal(); err != nil {
		return err
	}

	session, err := app.gateway.Connect(ctx)
	if err != nil {
		return reportWriteError(out, err)
	}
	fmt.Fprintf(out, "Connected account: %s\n", session.Account().Hex())

	handle, err := submit(ctx, app.gateway, session)
	if err != nil {
		return reportWriteError(out, err)
	}
	fmt.Fprintf(out, "Transaction submitted: %s\n", handle.Hash().Hex())

	if err := app.journal.RecordSubmitted(ctx, newRecord(app, handle)); err != nil {
		app.logger.WithError(err).Warn("Failed to journal submitted transaction")
	}

	if noWait {
		return nil
	}

	fmt.Fprintln(out, "Waiting for confirmation...")
	waitCtx, cancel := context.WithTimeout(ctx, app.config.Transactions.ConfirmTimeout)
	defer cancel()

	receipt, err := handle.Await(waitCtx)
	if handle.Outcome() != gateway.Pending {
		// the wait context may be done; journaling still has to happen
		if jerr := app.journal.RecordOutcome(context.Background(), handle.Hash().Hex(), newOutcome(handle)); jerr != nil {
			app.logger.WithError(jerr).Warn("Failed to journal transaction outcome")
		}
	}
	if err != nil {
		if handle.Outcome() == gateway.Pending {
			fmt.Fprintf(out, "Transaction still pending; check later with `tx show %s`\n", handle.Hash().Hex())
		}
		return reportWriteError(out, err)
	}

	fmt.Fprintf(out, "Transaction confirmed in block %s\n", receipt.BlockNumber)
	return nil
}

func reportWriteError(out io.Writer, err error) error {
	switch gateway.KindOf(err) {
	case gateway.UserRejected:
		fmt.Fprintln(out, "Transaction rejected by user")
	case gateway.NoWallet:
		fmt.Fprintln(out, "No wallet available: set wallet.type and its key settings")
	case gateway.UnknownNetwork:
		fmt.Fprintln(out, "The wallet does not know the contract's network")
	}
	return err
}

func newRecord(app *Application, h *gateway.TxHandle) *models.TransactionRecord {
	return &models.TransactionRecord{
		Hash:        h.Hash().Hex(),
		Method:      h.Method(),
		From:        h.From().Hex(),
		Contract:    app.descriptor.Address().Hex(),
		ChainID:     app.descriptor.ChainID().Int64(),
		ValueWei:    h.Value().String(),
		Argument:    h.Argument(),
		Status:      models.TxStatusPending,
		SubmittedAt: h.SubmittedAt(),
	}
}

func newOutcome(h *gateway.TxHandle) models.TransactionOutcome {
	outcome := models.TransactionOutcome{
		Status:     models.TxStatusConfirmed,
		ResolvedAt: time.Now(),
	}
	if h.Outcome() == gateway.Failed {
		outcome.Status = models.TxStatusFailed
	}
	if receipt := h.Receipt(); receipt != nil {
		block, gas := receipt.BlockNumber.Uint64(), receipt.GasUsed
		outcome.BlockNumber = &block
		outcome.GasUsed = &gas
	}
	if err := h.Err(); err != nil {
		msg := err.Error()
		outcome.Error = &msg
	}
	return outcome
}

// txCmd groups the journal commands
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect the transaction journal",
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled transactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.initializeJournal(); err != nil {
			return err
		}

		filter := models.TransactionFilter{}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if method, _ := cmd.Flags().GetString("method"); method != "" {
			filter.Method = &method
		}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			s := models.TransactionStatus(status)
			filter.Status = &s
		}

		records, err := app.journal.ListTransactions(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transactions recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HASH\tMETHOD\tSTATUS\tVALUE (ETH)\tSUBMITTED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Hash, r.Method, r.Status, formatWei(r.ValueWei), r.SubmittedAt.Local().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var txShowCmd = &cobra.Command{
	Use:   "show <hash>",
	Short: "Show one journaled transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.initializeJournal(); err != nil {
			return err
		}

		record, err := app.journal.GetTransaction(ctx, args[0])
		if err != nil {
			return err
		}

		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh && record.Status == models.TxStatusPending {
			if record, err = refreshRecord(ctx, app, record); err != nil {
				return err
			}
		}

		printRecord(cmd.OutOrStdout(), record)
		return nil
	},
}

// refreshRecord looks the receipt up once and journals it if mined
func refreshRecord(ctx context.Context, app *Application, record *models.TransactionRecord) (*models.TransactionRecord, error) {
	receipt, err := app.chain.TransactionReceipt(ctx, common.HexToHash(record.Hash))
	if errors.Is(err, ethereum.NotFound) {
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	block, gas := receipt.BlockNumber.Uint64(), receipt.GasUsed
	outcome := models.TransactionOutcome{
		Status:      models.TxStatusConfirmed,
		BlockNumber: &block,
		GasUsed:     &gas,
		ResolvedAt:  time.Now(),
	}
	if receipt.Status == 0 {
		outcome.Status = models.TxStatusFailed
		msg := "transaction reverted"
		outcome.Error = &msg
	}
	if err := app.journal.RecordOutcome(ctx, record.Hash, outcome); err != nil {
		return nil, err
	}
	return app.journal.GetTransaction(ctx, record.Hash)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Contract Gateway %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if _, err := newDescriptor(cfg); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration is valid!\n")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Node: %s\n", cfg.Chain.NodeURL)
		fmt.Fprintf(out, "Network: %s (chain %d)\n", cfg.Chain.NetworkName, cfg.Chain.ChainID)
		fmt.Fprintf(out, "Contract: %s\n", utils.NormalizeAddress(cfg.Contract.Address))
		fmt.Fprintf(out, "Wallet: %s\n", cfg.Wallet.Type)
		fmt.Fprintf(out, "Journal: %s\n", cfg.Storage.Type)
		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		app, err := loadApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Fprintln(out, "Testing Contract Gateway connectivity...")

		fmt.Fprintf(out, "Testing node connection to %s...\n", app.config.Chain.NodeURL)
		if err := app.connection.HealthCheckWithContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to node: %w", err)
		}
		version, err := app.chain.ClientVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read client version: %w", err)
		}
		block, err := app.chain.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to read block number: %w", err)
		}
		stats := app.connection.Stats()
		fmt.Fprintf(out, "✓ Node connection successful (%s, chain %d, block %d, via %s)\n", version, stats.ChainID, block, stats.CurrentURL)

		fmt.Fprintf(out, "Testing contract at %s...\n", app.descriptor.Address().Hex())
		if _, err := app.reader.ReadName(ctx); err != nil {
			return fmt.Errorf("failed to read contract: %w", err)
		}
		fmt.Fprintln(out, "✓ Contract reachable")

		fmt.Fprintf(out, "Testing journal (%s)...\n", app.config.Storage.Type)
		if err := app.initializeJournal(); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		if err := app.journal.Ping(); err != nil {
			return fmt.Errorf("failed to ping journal: %w", err)
		}
		fmt.Fprintln(out, "✓ Journal connection successful")

		fmt.Fprintln(out, "\nAll connectivity tests passed! ✓")
		return nil
	},
}

func displayName(name string) string {
	if name == "" {
		return "(empty)"
	}
	return name
}

func printBalance(out io.Writer, b contract.Balance) {
	fmt.Fprintf(out, "Balance: %s ETH (%s wei)\n", b.Ether, b.WeiString())
}

func formatWei(wei string) string {
	amount, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	return contract.FormatEther(amount)
}

func printRecord(out io.Writer, r *models.TransactionRecord) {
	fmt.Fprintf(out, "Hash: %s\n", r.Hash)
	fmt.Fprintf(out, "Method: %s\n", r.Method)
	if r.Argument != "" {
		fmt.Fprintf(out, "Argument: %s\n", r.Argument)
	}
	fmt.Fprintf(out, "From: %s\n", r.From)
	fmt.Fprintf(out, "Contract: %s (chain %d)\n", r.Contract, r.ChainID)
	fmt.Fprintf(out, "Value: %s ETH\n", formatWei(r.ValueWei))
	fmt.Fprintf(out, "Status: %s\n", r.Status)
	fmt.Fprintf(out, "Submitted: %s\n", r.SubmittedAt.Local().Format(time.RFC3339))
	if r.BlockNumber != nil {
		fmt.Fprintf(out, "Block: %d\n", *r.BlockNumber)
	}
	if r.GasUsed != nil {
		fmt.Fprintf(out, "Gas used: %d\n", *r.GasUsed)
	}
	if r.ResolvedAt != nil {
		fmt.Fprintf(out, "Resolved: %s\n", r.ResolvedAt.Local().Format(time.RFC3339))
	}
	if r.Error != nil {
		fmt.Fprintf(out, "Error: %s\n", *r.Error)
	}
}
