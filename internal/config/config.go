package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Relayer     RelayerConfig     `mapstructure:"relayer"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Sponsorship SponsorshipConfig `mapstructure:"sponsorship"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	// Keys are the gateway-issued caller credentials
	Keys []APIKeyConfig `mapstructure:"keys"`
	// MaxExpirationMs bounds how far in the future a signature expiry
	// may be set, limiting the replay window
	MaxExpirationMs int64 `mapstructure:"max_expiration_ms"`
	// QPS/Burst configure the coarse per-caller request throttle that
	// runs in front of the token bucket limits
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type APIKeyConfig struct {
	ID          string `mapstructure:"id"`
	Secret      string `mapstructure:"secret"`
	Description string `mapstructure:"description"`
	Disabled    bool   `mapstructure:"disabled"`
}

type RelayerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AdminKey  string `mapstructure:"admin_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ChainConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	DarkpoolAddress    string `mapstructure:"darkpool_address"`
	GasPriceTTLSeconds int    `mapstructure:"gas_price_ttl_seconds"`
}

type SponsorshipConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SponsorKey is the hex secp256k1 key that signs refund attestations
	SponsorKey string `mapstructure:"sponsor_key"`
	// GasUnits is the gas estimate for a settlement transaction
	GasUnits uint64 `mapstructure:"gas_units"`
	// MaxRefundWei caps the refund regardless of the gas price estimate
	MaxRefundWei uint64 `mapstructure:"max_refund_wei"`
	// EthPriceQuote is the operator-set price of ETH in quote-token base
	// units, used to convert native gas cost to in-kind refunds
	EthPriceQuote        string `mapstructure:"eth_price_quote"`
	DefaultRefundAddress string `mapstructure:"default_refund_address"`
	CacheTTLSeconds      int    `mapstructure:"cache_ttl_seconds"`
}

type RateLimitConfig struct {
	Quote       BucketConfig `mapstructure:"quote"`
	Bundle      BucketConfig `mapstructure:"bundle"`
	Sponsorship BucketConfig `mapstructure:"sponsorship"`
}

type BucketConfig struct {
	Capacity      int64 `mapstructure:"capacity"`
	RefillSeconds int   `mapstructure:"refill_seconds"`
}

type SettlementConfig struct {
	PollIntervalMs  int `mapstructure:"poll_interval_ms"`
	DeadlineSeconds int `mapstructure:"deadline_seconds"`
	WorkerCount     int `mapstructure:"worker_count"`
	QueueSize       int `mapstructure:"queue_size"`
}

type TelemetryConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Path            string  `mapstructure:"path"`
	QuoteSampleRate float64 `mapstructure:"quote_sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. RELAYGATE_RELAYER_ADMIN_KEY
	viper.SetEnvPrefix("relaygate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.max_expiration_ms", 10_000)
	viper.SetDefault("auth.qps", 50)
	viper.SetDefault("auth.burst", 100)
	viper.SetDefault("relayer.timeout_ms", 10_000)
	viper.SetDefault("chain.gas_price_ttl_seconds", 30)
	viper.SetDefault("sponsorship.gas_units", 4_000_000)
	viper.SetDefault("sponsorship.max_refund_wei", 2_000_000_000_000_000) // 0.002 ETH
	viper.SetDefault("sponsorship.cache_ttl_seconds", 600)
	viper.SetDefault("rate_limit.quote.capacity", 100)
	viper.SetDefault("rate_limit.quote.refill_seconds", 1)
	viper.SetDefault("rate_limit.bundle.capacity", 5)
	viper.SetDefault("rate_limit.bundle.refill_seconds", 60)
	viper.SetDefault("rate_limit.sponsorship.capacity", 100)
	viper.SetDefault("rate_limit.sponsorship.refill_seconds", 30)
	viper.SetDefault("settlement.poll_interval_ms", 1_000)
	viper.SetDefault("settlement.deadline_seconds", 60)
	viper.SetDefault("settlement.worker_count", 8)
	viper.SetDefault("settlement.queue_size", 1024)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.path", "/metrics")
	viper.SetDefault("telemetry.quote_sample_rate", 0.1)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *RelayerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *SettlementConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *SettlementConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineSeconds) * time.Second
}

func (c *SponsorshipConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *BucketConfig) RefillInterval() time.Duration {
	return time.Duration(c.RefillSeconds) * time.Second
}
