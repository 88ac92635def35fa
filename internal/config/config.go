// File: internal/config/config.go
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Contract     ContractConfig     `mapstructure:"contract"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Transactions TransactionsConfig `mapstructure:"transactions"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains the read connection to the chain node
type ChainConfig struct {
	NodeURL           string        `mapstructure:"node_url"`
	BackupNodes       []string      `mapstructure:"backup_nodes"`
	ChainID           int64         `mapstructure:"chain_id"`
	NetworkName       string        `mapstructure:"network_name"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DialRetryAttempts int           `mapstructure:"dial_retry_attempts"`
	DialRetryDelay    time.Duration `mapstructure:"dial_retry_delay"`
}

// ContractConfig points at the deployed contract
type ContractConfig struct {
	Address string `mapstructure:"address"`
	ABIPath string `mapstructure:"abi_path"` // empty means the embedded ABI
}

// WalletConfig selects the signing capability used by write commands
type WalletConfig struct {
	Type          string        `mapstructure:"type"` // rpc, key, keystore, none
	RPCURL        string        `mapstructure:"rpc_url"`
	PrivateKey    string        `mapstructure:"private_key"`
	KeystorePath  string        `mapstructure:"keystore_path"`
	Passphrase    string        `mapstructure:"passphrase"`
	Account       string        `mapstructure:"account"`
	KnownChains   []int64       `mapstructure:"known_chains"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// TransactionsConfig controls confirmation waiting
type TransactionsConfig struct {
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout        time.Duration `mapstructure:"confirm_timeout"`
	RebindOnNetworkChange bool          `mapstructure:"rebind_on_network_change"`
}

// StorageConfig contains the transaction journal configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres, none
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableCORS    bool          `mapstructure:"enable_cors"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with the conventional variables if present
	if nodeURL := os.Getenv("RPC_URL"); nodeURL != "" {
		config.Chain.NodeURL = nodeURL
	}
	if key := os.Getenv("PRIVATE_KEY"); key != "" && config.Wallet.PrivateKey == "" {
		config.Wallet.PrivateKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "contract-gateway")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Chain defaults (Sepolia)
	v.SetDefault("chain.node_url", "https://ethereum-sepolia.gateway.tatum.io")
	v.SetDefault("chain.chain_id", 11155111)
	v.SetDefault("chain.network_name", "Sepolia Testnet")
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.dial_retry_attempts", 1)
	v.SetDefault("chain.dial_retry_delay", "2s")

	// Contract defaults
	v.SetDefault("contract.address", "0x1fd3a9d39f946c55da34a87068c085847a6ff810")
	v.SetDefault("contract.abi_path", "")

	// Wallet defaults
	v.SetDefault("wallet.type", "key")
	v.SetDefault("wallet.rpc_url", "http://127.0.0.1:1248")
	v.SetDefault("wallet.known_chains", []int64{11155111})
	v.SetDefault("wallet.watch_interval", "2s")

	// Transaction defaults (Sepolia block time is ~12 seconds)
	v.SetDefault("transactions.poll_interval", "2s")
	v.SetDefault("transactions.confirm_timeout", "5m")
	v.SetDefault("transactions.rebind_on_network_change", false)

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/transactions.db")
	v.SetDefault("storage.max_connections", 5)
	v.SetDefault("storage.max_idle_time", "15m")

	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_cors", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// ChainIDBig returns the configured chain id as a big.Int.
func (c *ChainConfig) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.NodeURL == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Chain node URL is required", "")
	}
	if c.Chain.ChainID <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Chain ID must be positive", "")
	}
	if !utils.IsValidAddress(c.Contract.Address) {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Contract address is invalid", c.Contract.Address)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Server port is out of range", fmt.Sprint(c.Server.Port))
	}
	if c.Transactions.PollInterval <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Transaction poll interval must be positive", "")
	}

	switch strings.ToLower(c.Wallet.Type) {
	case "rpc":
		if c.Wallet.RPCURL == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Wallet RPC URL is required for rpc wallets", "")
		}
	case "keystore":
		if c.Wallet.KeystorePath == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Keystore path is required for keystore wallets", "")
		}
	case "key", "none", "":
	default:
		return utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported wallet type", c.Wallet.Type)
	}

	switch strings.ToLower(c.Storage.Type) {
	case "sqlite", "postgres", "postgresql":
		if c.Storage.ConnectionString == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required", "")
		}
	case "none", "":
	default:
		return utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported storage type", c.Storage.Type)
	}

	return nil
}
