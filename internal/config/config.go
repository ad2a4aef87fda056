package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Chain      ChainConfig      `yaml:"chain" mapstructure:"chain"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Insight    InsightConfig    `yaml:"insight" mapstructure:"insight"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ChainConfig holds the EVM RPC endpoint, signer key and contract addresses.
type ChainConfig struct {
	RPCURL         string `yaml:"rpc_url" mapstructure:"rpc_url"`
	ChainID        int64  `yaml:"chain_id" mapstructure:"chain_id"`
	PrivateKey     string `yaml:"private_key" mapstructure:"private_key"`
	VaultAddress   string `yaml:"vault_address" mapstructure:"vault_address"`
	LedgerAddress  string `yaml:"ledger_address" mapstructure:"ledger_address"`
	ServingAddress string `yaml:"serving_address" mapstructure:"serving_address"`
	TxTimeoutSecs  int    `yaml:"tx_timeout_secs" mapstructure:"tx_timeout_secs"`
}

// StorageConfig configures the storage indexer and retrieval gateway.
type StorageConfig struct {
	IndexerURL        string  `yaml:"indexer_url" mapstructure:"indexer_url"`
	GatewayURL        string  `yaml:"gateway_url" mapstructure:"gateway_url"`
	FetchRetries      int     `yaml:"fetch_retries" mapstructure:"fetch_retries"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UploadConcurrency int     `yaml:"upload_concurrency" mapstructure:"upload_concurrency"`
}

// LedgerConfig controls prepaid balance funding.
type LedgerConfig struct {
	// UnitWei is the fee-unit granularity in wei.
	UnitWei          string  `yaml:"unit_wei" mapstructure:"unit_wei"`
	OpeningDepositOG float64 `yaml:"opening_deposit_og" mapstructure:"opening_deposit_og"`
	TopUpBufferUnits int64   `yaml:"top_up_buffer_units" mapstructure:"top_up_buffer_units"`
	MinTopUpUnits    int64   `yaml:"min_top_up_units" mapstructure:"min_top_up_units"`
	LockBackend      string  `yaml:"lock_backend" mapstructure:"lock_backend"`
	LockTTLSecs      int     `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// RedisConfig holds connection settings for the distributed ledger lock.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// InsightConfig configures the insight pipeline.
type InsightConfig struct {
	RequiredUnits      int64  `yaml:"required_units" mapstructure:"required_units"`
	SelectionStrategy  string `yaml:"selection_strategy" mapstructure:"selection_strategy"`
	ModelSubstring     string `yaml:"model_substring" mapstructure:"model_substring"`
	ProviderID         string `yaml:"provider_id" mapstructure:"provider_id"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background ledger checks.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	Schedule             string  `yaml:"schedule" mapstructure:"schedule"`
	LowBalanceUnits      int64   `yaml:"low_balance_units" mapstructure:"low_balance_units"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. Unlike the default
// ./config.yaml, a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a useful default still need registering, otherwise
	// AutomaticEnv never sees them during Unmarshal.
	for _, key := range []string{
		"chain.rpc_url",
		"chain.private_key",
		"chain.vault_address",
		"chain.ledger_address",
		"chain.serving_address",
		"storage.indexer_url",
		"storage.gateway_url",
		"insight.provider_id",
		"redis.password",
		"monitoring.webhook_url",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("chain.chain_id", 16602)
	v.SetDefault("chain.tx_timeout_secs", 120)
	v.SetDefault("storage.fetch_retries", 2)
	v.SetDefault("storage.rate_per_sec", 5.0)
	v.SetDefault("storage.upload_concurrency", 2)
	v.SetDefault("ledger.unit_wei", "100000000000000")
	v.SetDefault("ledger.opening_deposit_og", 1.0)
	v.SetDefault("ledger.top_up_buffer_units", 2000)
	v.SetDefault("ledger.min_top_up_units", 5000)
	v.SetDefault("ledger.lock_backend", "local")
	v.SetDefault("ledger.lock_ttl_secs", 300)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("insight.required_units", 8000)
	v.SetDefault("insight.selection_strategy", "model_contains")
	v.SetDefault("insight.model_substring", "llama-3.3-70b-instruct")
	v.SetDefault("insight.request_timeout_secs", 120)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "concierge.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.schedule", "@every 5m")
	v.SetDefault("monitoring.low_balance_units", 10000)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_runs", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required to talk to the chain are present.
func (c *Config) Validate() error {
	var missing []string
	if c.Chain.RPCURL == "" {
		missing = append(missing, "chain.rpc_url")
	}
	if c.Chain.PrivateKey == "" {
		missing = append(missing, "chain.private_key")
	}
	if c.Chain.LedgerAddress == "" {
		missing = append(missing, "chain.ledger_address")
	}
	if c.Chain.ServingAddress == "" {
		missing = append(missing, "chain.serving_address")
	}
	if c.Chain.VaultAddress == "" {
		missing = append(missing, "chain.vault_address")
	}
	if c.Storage.IndexerURL == "" {
		missing = append(missing, "storage.indexer_url")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Server.Port <= 0 {
		return eris.New("config: server.port must be > 0")
	}
	switch c.Ledger.LockBackend {
	case "local", "redis":
	default:
		return eris.Errorf("config: unknown ledger.lock_backend %q", c.Ledger.LockBackend)
	}
	return nil
}

// Redacted returns a copy with secrets blanked, for display.
func (c Config) Redacted() Config {
	if c.Chain.PrivateKey != "" {
		c.Chain.PrivateKey = "<redacted>"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "<redacted>"
	}
	if c.Store.DatabaseURL != "" && c.Store.Driver == "postgres" {
		c.Store.DatabaseURL = "<redacted>"
	}
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
