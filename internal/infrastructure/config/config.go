package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the POS core.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Currency  CurrencyConfig  `mapstructure:"currency"`
	Lightning LightningConfig `mapstructure:"lightning"`
	Bitcoin   BitcoinConfig   `mapstructure:"bitcoin"`
	USDT      USDTConfig      `mapstructure:"usdt"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type CurrencyConfig struct {
	Base                string        `mapstructure:"base"`
	RefreshPeriod       time.Duration `mapstructure:"refresh_period"`
	FallbackBTCPriceUSD float64       `mapstructure:"fallback_btc_price_usd"`
	MempoolBaseURL      string        `mapstructure:"mempool_base_url"`
	CoinGeckoBaseURL    string        `mapstructure:"coingecko_base_url"`
	FiatRateBaseURL     string        `mapstructure:"fiat_rate_base_url"`
}

type LightningConfig struct {
	Backend            string        `mapstructure:"backend"`
	InvoiceExpiry      time.Duration `mapstructure:"invoice_expiry"`
	WatchInterval      time.Duration `mapstructure:"watch_interval"`
	WatchErrorInterval time.Duration `mapstructure:"watch_error_interval"`

	LNbits LNbitsConfig `mapstructure:"lnbits"`
	LND    LNDConfig    `mapstructure:"lnd"`
}

type LNbitsConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	InvoiceKey string `mapstructure:"invoice_key"`
}

type LNDConfig struct {
	Host         string `mapstructure:"host"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	MacaroonPath string `mapstructure:"macaroon_path"`
}

type BitcoinConfig struct {
	Provider              string        `mapstructure:"provider"`
	InvoiceExpiry         time.Duration `mapstructure:"invoice_expiry"`
	RequiredConfirmations int           `mapstructure:"required_confirmations"`
	WatchInterval         time.Duration `mapstructure:"watch_interval"`

	BTCPay       BTCPayConfig       `mapstructure:"btcpay"`
	Blockonomics BlockonomicsConfig `mapstructure:"blockonomics"`
	Manual       ManualConfig       `mapstructure:"manual"`
}

type BTCPayConfig struct {
	ServerURL string `mapstructure:"server_url"`
	APIKey    string `mapstructure:"api_key"`
	StoreID   string `mapstructure:"store_id"`
}

type BlockonomicsConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type ManualConfig struct {
	Address string `mapstructure:"address"`
}

type USDTConfig struct {
	DefaultNetwork     string        `mapstructure:"default_network"`
	InvoiceExpiry      time.Duration `mapstructure:"invoice_expiry"`
	AmountTolerance    float64       `mapstructure:"amount_tolerance"`
	WatchInterval      time.Duration `mapstructure:"watch_interval"`
	WatchErrorInterval time.Duration `mapstructure:"watch_error_interval"`

	// Addresses maps network codes (trc, pol, eth) to receiving
	// addresses. Empty entries disable the network.
	Addresses map[string]string `mapstructure:"addresses"`

	TronGrid  TronGridConfig  `mapstructure:"trongrid"`
	Etherscan EtherscanConfig `mapstructure:"etherscan"`
}

type TronGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type EtherscanConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Load reads the configuration file and environment overrides. An
// absent file is fine; defaults plus environment carry a minimal setup.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/bitpos")
	}

	v.SetEnvPrefix("BITPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("database.path", "bitpos.db")

	v.SetDefault("currency.base", "LAK")
	v.SetDefault("currency.refresh_period", "5m")
	v.SetDefault("currency.fallback_btc_price_usd", 100000)

	v.SetDefault("lightning.backend", "lnbits")
	v.SetDefault("lightning.invoice_expiry", "1h")
	v.SetDefault("lightning.watch_interval", "2s")
	v.SetDefault("lightning.watch_error_interval", "5s")

	v.SetDefault("bitcoin.provider", "btcpay")
	v.SetDefault("bitcoin.invoice_expiry", "30m")
	v.SetDefault("bitcoin.required_confirmations", 1)
	v.SetDefault("bitcoin.watch_interval", "5s")

	v.SetDefault("usdt.default_network", "trc")
	v.SetDefault("usdt.invoice_expiry", "30m")
	v.SetDefault("usdt.amount_tolerance", 0.01)
	v.SetDefault("usdt.watch_interval", "10s")
	v.SetDefault("usdt.watch_error_interval", "10s")
}
