package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LedgerConfig holds the in-process ledger runtime configuration
type LedgerConfig struct {
	// ProgramID is the base58 address the pool program is deployed at.
	ProgramID string `mapstructure:"program_id"`

	// GenesisFile is an optional YAML file describing mints and funded wallets.
	GenesisFile string `mapstructure:"genesis_file"`

	// AirdropLamports is the default amount credited by `ledger airdrop`.
	AirdropLamports uint64 `mapstructure:"airdrop_lamports"`

	// MaxCallDepth bounds nested cross-program invocations.
	MaxCallDepth int `mapstructure:"max_call_depth"`
}

// PoolConfig holds defaults for `initialize`
type PoolConfig struct {
	Variant    string `mapstructure:"variant"`     // fixed_rate, mint_checked or liquidity_seeded
	Keying     string `mapstructure:"keying"`      // singleton or keyed
	Rate       uint64 `mapstructure:"rate"`
	DustPolicy string `mapstructure:"dust_policy"` // reject or burn
	MintA      string `mapstructure:"mint_a"`
	MintB      string `mapstructure:"mint_b"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// DatabaseConfig selects the journal backend
type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Type     string         `mapstructure:"type"` // memory, jsonl, postgres or mongodb
	Path     string         `mapstructure:"path"` // jsonl journal file
	Postgres PostgresConfig `mapstructure:"postgres"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in seconds
}

// ConnString returns the pgx connection URL.
func (c *PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	MaxPoolSize    uint64 `mapstructure:"max_pool_size"`
	MinPoolSize    uint64 `mapstructure:"min_pool_size"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // in seconds
	// Transactions journals each ledger transaction in one multi-document
	// transaction. Requires a replica set.
	Transactions bool `mapstructure:"transactions"`
}

// WalletConfig points at the default signer keypair
type WalletConfig struct {
	Keypair string `mapstructure:"keypair"` // Solana CLI JSON keypair file
}

// MetricsConfig selects metrics backends beyond the debug log
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig writes Prometheus metrics to a node_exporter textfile
// when a command exits.
type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			ProgramID:       "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS",
			AirdropLamports: 2_000_000_000,
			MaxCallDepth:    4,
		},
		Pool: PoolConfig{
			Variant:    "fixed_rate",
			Keying:     "keyed",
			Rate:       2,
			DustPolicy: "reject",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Enabled: true,
			Type:    "jsonl",
			Path:    ".vaultswap/journal.jsonl",
			Postgres: PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				User:         "postgres",
				Database:     "vaultswap",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 2,
			},
			MongoDB: MongoDBConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "vaultswap",
				MaxPoolSize:    10,
				ConnectTimeout: 10,
			},
		},
		Wallet: WalletConfig{
			Keypair: ".vaultswap/id.json",
		},
		Metrics: MetricsConfig{
			Prometheus: PrometheusConfig{
				Namespace: "vaultswap",
				Textfile:  ".vaultswap/metrics.prom",
			},
		},
	}
}

// Load loads configuration from file and environment using the global viper instance.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.GetViper(), configPath)
}

// LoadWith loads configuration into cfg through v, so callers can bind
// command-line flags on v before loading.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".vaultswap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	// Environment variables
	v.SetEnvPrefix("VAULTSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Pool.Variant {
	case "fixed_rate", "mint_checked", "liquidity_seeded":
	default:
		return fmt.Errorf("invalid pool.variant %q", c.Pool.Variant)
	}
	switch c.Pool.Keying {
	case "singleton", "keyed":
	default:
		return fmt.Errorf("invalid pool.keying %q", c.Pool.Keying)
	}
	switch c.Pool.DustPolicy {
	case "reject", "burn":
	default:
		return fmt.Errorf("invalid pool.dust_policy %q", c.Pool.DustPolicy)
	}
	switch c.Database.Type {
	case "memory", "jsonl", "postgres", "mongodb":
	default:
		return fmt.Errorf("invalid database.type %q", c.Database.Type)
	}
	if c.Metrics.Prometheus.Enabled && c.Metrics.Prometheus.Textfile == "" {
		return fmt.Errorf("metrics.prometheus.textfile is required when prometheus is enabled")
	}
	if c.Ledger.MaxCallDepth <= 0 {
		return fmt.Errorf("ledger.max_call_depth must be positive")
	}
	return nil
}
