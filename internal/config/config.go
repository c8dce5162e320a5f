package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// PolygonChainID is the only network the service signs for.
const PolygonChainID int64 = 137

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Clob      ClobConfig      `mapstructure:"clob"`
	Relayer   RelayerConfig   `mapstructure:"relayer"`
	Builder   BuilderConfig   `mapstructure:"builder"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pebble    PebbleConfig    `mapstructure:"pebble"`
	Market    MarketConfig    `mapstructure:"market"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimitQPS   float64  `mapstructure:"rate_limit_qps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	ReadOnly       bool     `mapstructure:"read_only"`
	AuditLogDir    string   `mapstructure:"audit_log_dir"`
}

type AuthConfig struct {
	// Empty disables the gateway key check.
	GatewayKey string `mapstructure:"gateway_key"`
	// Empty closes the admin endpoints.
	AdminKey string `mapstructure:"admin_key"`
}

type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

type ChainConfig struct {
	ID         int64         `mapstructure:"id"`
	RPCURL     string        `mapstructure:"rpc_url"`
	RPCTimeout time.Duration `mapstructure:"rpc_timeout"`
	RPCRetries int           `mapstructure:"rpc_retries"`
}

type ClobConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RelayerConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollMaxInterval time.Duration `mapstructure:"poll_max_interval"`
	PollMaxAttempts int           `mapstructure:"poll_max_attempts"`
}

type BuilderConfig struct {
	ApiKey        string `mapstructure:"api_key"`
	ApiSecret     string `mapstructure:"api_secret"`
	ApiPassphrase string `mapstructure:"api_passphrase"`
}

func (b BuilderConfig) Enabled() bool {
	return b.ApiKey != "" && b.ApiSecret != "" && b.ApiPassphrase != ""
}

type ContractsConfig struct {
	ProxyFactory     string `mapstructure:"proxy_factory"`
	RelayHub         string `mapstructure:"relay_hub"`
	ProxyInitCode    string `mapstructure:"proxy_init_code_hash"`
	Exchange         string `mapstructure:"exchange"`
	NegRiskExchange  string `mapstructure:"neg_risk_exchange"`
	NegRiskAdapter   string `mapstructure:"neg_risk_adapter"`
	USDC             string `mapstructure:"usdc"`
	ConditionalToken string `mapstructure:"conditional_tokens"`
}

type SessionConfig struct {
	// memory | redis | postgres | sqlite | pebble
	Store string `mapstructure:"store"`
	// Zero keeps sessions until they are ended explicitly.
	MaxAge time.Duration `mapstructure:"max_age"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	KeyPrefix             string `mapstructure:"key_prefix"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type PebbleConfig struct {
	Path string `mapstructure:"path"`
}

type MarketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	WSURL   string `mapstructure:"ws_url"`
}

// RiskConfig holds pre-trade limits. Zero values disable a check.
type RiskConfig struct {
	MaxOrderValue    float64  `mapstructure:"max_order_value"`
	MaxSlippage      float64  `mapstructure:"max_slippage"`
	MaxDailyValue    float64  `mapstructure:"max_daily_value"`
	MaxDailyOrders   int      `mapstructure:"max_daily_orders"`
	RestrictedTokens []string `mapstructure:"restricted_tokens"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_qps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.audit_log_dir", "./logs")

	v.SetDefault("chain.id", PolygonChainID)
	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chain.rpc_timeout", 5*time.Second)
	v.SetDefault("chain.rpc_retries", 1)

	v.SetDefault("clob.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob.timeout", 10*time.Second)

	v.SetDefault("relayer.base_url", "https://relayer-v2.polymarket.com")
	v.SetDefault("relayer.timeout", 15*time.Second)
	v.SetDefault("relayer.poll_interval", 2*time.Second)
	v.SetDefault("relayer.poll_max_interval", 10*time.Second)
	v.SetDefault("relayer.poll_max_attempts", 30)

	v.SetDefault("contracts.proxy_factory", "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052")
	v.SetDefault("contracts.relay_hub", "0xD216153c06E857cD7f72665E0aF1d7D82172F494")
	v.SetDefault("contracts.proxy_init_code_hash", "0xd21df8dc65880a8606f09fe0ce3df9b8869287ab0b058be05aa9e8af6330a00b")
	v.SetDefault("contracts.exchange", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	v.SetDefault("contracts.neg_risk_exchange", "0xC5d563A36AE78145C45a50134d48A1215220f80a")
	v.SetDefault("contracts.neg_risk_adapter", "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296")
	v.SetDefault("contracts.usdc", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	v.SetDefault("contracts.conditional_tokens", "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.max_age", time.Duration(0))

	v.SetDefault("redis.key_prefix", "polysession:")
	v.SetDefault("redis.idempotency_ttl_seconds", 86400)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("pebble.path", "./data/sessions")

	v.SetDefault("market.enabled", true)
	v.SetDefault("market.ws_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads .env files, config.yaml and POLYSESSION_* environment variables.
func Load() (*Config, error) {
	// .env.local wins over .env; neither overrides variables already exported.
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err == nil {
			log.Printf("Loaded environment from %s", f)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// e.g. POLYSESSION_CLOB_BASE_URL
	v.SetEnvPrefix("polysession")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("wallet.private_key", "POLYSESSION_WALLET_PRIVATE_KEY", "POLYMARKET_MAGIC_PK")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the process-wide constants. A missing wallet key is not an
// error here: wallet-bound endpoints report it per request.
func (c *Config) Validate() error {
	if c.Chain.ID != PolygonChainID {
		return fmt.Errorf("unsupported chain id %d: only %d is supported", c.Chain.ID, PolygonChainID)
	}
	addrs := map[string]string{
		"contracts.proxy_factory":      c.Contracts.ProxyFactory,
		"contracts.relay_hub":          c.Contracts.RelayHub,
		"contracts.exchange":           c.Contracts.Exchange,
		"contracts.neg_risk_exchange":  c.Contracts.NegRiskExchange,
		"contracts.neg_risk_adapter":   c.Contracts.NegRiskAdapter,
		"contracts.usdc":               c.Contracts.USDC,
		"contracts.conditional_tokens": c.Contracts.ConditionalToken,
	}
	for key, val := range addrs {
		if !common.IsHexAddress(val) {
			return fmt.Errorf("%s: invalid address %q", key, val)
		}
	}
	hash := strings.TrimPrefix(c.Contracts.ProxyInitCode, "0x")
	if len(hash) != 64 {
		return fmt.Errorf("contracts.proxy_init_code_hash: expected 32 bytes, got %q", c.Contracts.ProxyInitCode)
	}
	switch c.Session.Store {
	case "memory", "redis", "postgres", "sqlite", "pebble":
	default:
		return fmt.Errorf("session.store: unknown backend %q", c.Session.Store)
	}
	if c.Session.MaxAge < 0 {
		return fmt.Errorf("session.max_age must not be negative")
	}
	if c.Risk.MaxSlippage < 0 || c.Risk.MaxOrderValue < 0 || c.Risk.MaxDailyValue < 0 || c.Risk.MaxDailyOrders < 0 {
		return fmt.Errorf("risk limits must not be negative")
	}
	if c.Relayer.PollMaxAttempts <= 0 {
		return fmt.Errorf("relayer.poll_max_attempts must be positive")
	}
	return nil
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
