package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Custody     CustodyConfig     `mapstructure:"custody"`
	Facilitator FacilitatorConfig `mapstructure:"facilitator"`
	CardNetwork CardNetworkConfig `mapstructure:"card_network"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ChainConfig describes the EVM chain carrying the stablecoin.
type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	ChainID       int64  `mapstructure:"chain_id"`
	Network       string `mapstructure:"network"` // e.g. base, base-sepolia
	TokenContract string `mapstructure:"token_contract"`
	TokenName     string `mapstructure:"token_name"`    // EIP-712 domain name
	TokenVersion  string `mapstructure:"token_version"` // EIP-712 domain version
	MinGasWei     string `mapstructure:"min_gas_wei"`
}

// CustodyConfig points at the signing/custody engine.
type CustodyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FacilitatorConfig points at the x402 settlement facilitator.
type FacilitatorConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxTimeoutSeconds int           `mapstructure:"max_timeout_seconds"`
}

// CardNetworkConfig points at the card-network payments provider used by the
// connected-account settlement bridge.
type CardNetworkConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SettlementConfig selects the settlement strategy and bounds its runtime.
type SettlementConfig struct {
	Mode    string        `mapstructure:"mode"` // facilitator | connect
	Timeout time.Duration `mapstructure:"timeout"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: APAY_.
// Nested keys use underscore: APAY_DATABASE_HOST, APAY_SETTLEMENT_MODE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "agentpay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.chain_id", 84532)
	v.SetDefault("chain.network", "base-sepolia")
	v.SetDefault("chain.token_contract", "")
	v.SetDefault("chain.token_name", "USD Coin")
	v.SetDefault("chain.token_version", "2")
	v.SetDefault("chain.min_gas_wei", "100000000000000") // 0.0001 ETH
	v.SetDefault("custody.base_url", "")
	v.SetDefault("custody.api_key", "")
	v.SetDefault("custody.timeout", "30s")
	v.SetDefault("facilitator.base_url", "")
	v.SetDefault("facilitator.timeout", "30s")
	v.SetDefault("facilitator.max_timeout_seconds", 300)
	v.SetDefault("card_network.base_url", "https://api.stripe.com")
	v.SetDefault("card_network.api_key", "")
	v.SetDefault("card_network.timeout", "30s")
	v.SetDefault("settlement.mode", "facilitator")
	v.SetDefault("settlement.timeout", "120s")
	v.SetDefault("catalog.cache_ttl", "60s")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: APAY_DATABASE_HOST -> database.host
	v.SetEnvPrefix("APAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Settlement.Mode != "facilitator" && cfg.Settlement.Mode != "connect" {
		return nil, fmt.Errorf("invalid settlement.mode %q (want facilitator or connect)", cfg.Settlement.Mode)
	}

	return &cfg, nil
}
