package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App      `json:"app"      toml:"app"`
		HTTP     `json:"http"     toml:"http"`
		DB       `json:"db"       toml:"db"`
		Log      `json:"logger"   toml:"logger"`
		Wallet   `json:"wallet"   toml:"wallet"`
		Tracker  `json:"tracker"  toml:"tracker"`
		Ethereum Network `json:"ethereum" toml:"ethereum" env-prefix:"ETHEREUM_"`
		Binance  Network `json:"binance"  toml:"binance"  env-prefix:"BSC_"`
	}

	App struct {
		Name           string `json:"name"            toml:"name"            env:"APP_NAME"        env-default:"wallet-accounts"`
		Environment    string `json:"environment"     toml:"environment"     env:"ENV_NAME"        env-default:"dev"`
		Debug          bool   `json:"debug"           toml:"debug"           env:"DEBUG"           env-default:"false"`
		MigrationsPath string `json:"migrations_path" toml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	}

	HTTP struct {
		Port           string   `json:"port"            toml:"port"            env:"HTTP_PORT"            env-default:"8080"`
		AllowedOrigins []string `json:"allowed_origins" toml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"         env-required:"true"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX"          env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK"  env-default:"1"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}

	Wallet struct {
		// Base64 of a 32 byte AES-256 key.
		EncryptionKey  string `json:"encryption_key"  toml:"encryption_key"  env:"WALLET_ENCRYPTION_KEY"  env-required:"true"`
		DerivationPath string `json:"derivation_path" toml:"derivation_path" env:"WALLET_DERIVATION_PATH" env-default:"m/44'/60'/0'/0/0"`
		EntropyBits    int    `json:"entropy_bits"    toml:"entropy_bits"    env:"WALLET_ENTROPY_BITS"    env-default:"128"`
		DefaultNetwork string `json:"default_network" toml:"default_network" env:"WALLET_DEFAULT_NETWORK" env-default:"ethereum"`
	}

	// Network configures one EVM chain. An empty RPC URL falls back to a public endpoint.
	Network struct {
		Enabled     bool   `json:"enabled"      toml:"enabled"      env:"ENABLED"      env-default:"false"`
		RPCURL      string `json:"rpc_url"      toml:"rpc_url"      env:"RPC_URL"`
		Symbol      string `json:"symbol"       toml:"symbol"       env:"SYMBOL"`
		Decimals    int32  `json:"decimals"     toml:"decimals"     env:"DECIMALS"     env-default:"18"`
		ENSRegistry string `json:"ens_registry" toml:"ens_registry" env:"ENS_REGISTRY"`
	}

	Tracker struct {
		Enabled               bool          `json:"enabled"                toml:"enabled"                env:"TRACKER_ENABLED"       env-default:"true"`
		Interval              time.Duration `json:"interval"               toml:"interval"               env:"TRACKER_INTERVAL"      env-default:"30s"`
		RequiredConfirmations uint64        `json:"required_confirmations" toml:"required_confirmations" env:"REQUIRED_CONFIRMATIONS" env-default:"3"`
		PendingTTL            time.Duration `json:"pending_ttl"            toml:"pending_ttl"            env:"TRACKER_PENDING_TTL"    env-default:"24h"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
