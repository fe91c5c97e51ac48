package config

import (
	"log"
	"sync"

	"github.com/spf13/viper"
)

// ScannerConfig holds the pipeline tunables.
type ScannerConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	BlockBatchSize int `mapstructure:"block_batch_size"`
	TxLRUSize      int `mapstructure:"tx_lru_size"`
	EventFetchMax  int `mapstructure:"event_fetch_max"`
}

// LimitsConfig holds the per-chat command limits.
type LimitsConfig struct {
	MaxWalletsPerUser    int `mapstructure:"max_wallets_per_user"`
	BalanceCooldownSec   int `mapstructure:"balance_cooldown_sec"`
	PortfolioCooldownSec int `mapstructure:"portfolio_cooldown_sec"`
}

// PricesConfig holds the best-effort price cache tunables.
type PricesConfig struct {
	CacheTTLSec int `mapstructure:"cache_ttl_sec"`
}

// Config defines the global configuration structure.
type Config struct {
	App struct {
		Port        string `mapstructure:"port"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"app"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Scanner ScannerConfig `mapstructure:"scanner"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Prices  PricesConfig  `mapstructure:"prices"`
}

var (
	globalConfig *Config
	configLock   sync.RWMutex
)

// LoadConfig loads configuration from the specified file path and merges it
// with environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.BindEnv("app.port", "PORT")
	viper.BindEnv("app.environment", "ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("scanner.poll_interval_ms", "POLL_INTERVAL_MS")
	viper.BindEnv("limits.max_wallets_per_user", "MAX_WALLETS_PER_USER")

	viper.SetDefault("scanner.poll_interval_ms", 30000)
	viper.SetDefault("scanner.block_batch_size", 10)
	viper.SetDefault("scanner.tx_lru_size", 1000)
	viper.SetDefault("scanner.event_fetch_max", 500)
	viper.SetDefault("limits.max_wallets_per_user", 20)
	viper.SetDefault("limits.balance_cooldown_sec", 10)
	viper.SetDefault("limits.portfolio_cooldown_sec", 30)
	viper.SetDefault("prices.cache_ttl_sec", 120)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling configuration: %v", err)
		return nil, err
	}
	return &cfg, nil
}

// SetGlobalConfig sets the loaded configuration globally.
func SetGlobalConfig(cfg *Config) {
	configLock.Lock()
	defer configLock.Unlock()
	globalConfig = cfg
}

// GetGlobalConfig retrieves the globally set configuration.
func GetGlobalConfig() *Config {
	configLock.RLock()
	defer configLock.RUnlock()
	if globalConfig == nil {
		log.Println("GetGlobalConfig: Global configuration is nil.")
	}
	return globalConfig
}
