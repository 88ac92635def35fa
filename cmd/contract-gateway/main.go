// File: cmd/contract-gateway/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/contract-gateway/internal/config"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "contract-gateway",
	Short:         "Gateway to a deployed name/stake contract",
	Long:          `Reads a deployed contract over a read-only HTTP API and submits its write calls through a wallet.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig loads and validates configuration, applying flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if viper.GetBool("debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadApplication() (*Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return NewApplication(cfg)
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	for _, cmd := range []*cobra.Command{updateNameCmd, stakeCmd, withdrawCmd} {
		cmd.Flags().Bool("no-wait", false, "return after submission without waiting for confirmation")
	}

	txListCmd.Flags().Int("limit", 20, "maximum number of transactions to list")
	txListCmd.Flags().String("method", "", "only list this contract method")
	txListCmd.Flags().String("status", "", "only list this status (pending, confirmed, failed)")
	txShowCmd.Flags().Bool("refresh", false, "look up the receipt of a pending transaction")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(nameCmd, balanceCmd, infoCmd)
	rootCmd.AddCommand(updateNameCmd, stakeCmd, withdrawCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	txCmd.AddCommand(txListCmd, txShowCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
