// Package config defines the top-level configuration for the Kandel monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KANDELWATCH_* environment variables.
type Config struct {
	Kandel   KandelConfig           `toml:"kandel"`
	Chains   map[string]ChainConfig `toml:"chains"`
	Venue    VenueConfig            `toml:"venue"`
	Monitor  MonitorConfig          `toml:"monitor"`
	Notify   NotifyConfig           `toml:"notify"`
	Supabase SupabaseConfig         `toml:"supabase"`
	Redis    RedisConfig            `toml:"redis"`
	S3       S3Config               `toml:"s3"`
	Server   ServerConfig           `toml:"server"`
	Mode     string                 `toml:"mode"`
	LogLevel string                 `toml:"log_level"`
}

// KandelConfig names the ladder to watch.
type KandelConfig struct {
	Address string `toml:"address"`
	Chain   string `toml:"chain"`
}

// ChainConfig is one entry of the chain registry.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// Mangrove, when set, must match the ladder's MGV().
	Mangrove     string         `toml:"mangrove"`
	RPCBatchSize int            `toml:"rpc_batch_size"`
	Markets      []MarketConfig `toml:"markets"`
}

// MarketConfig is an allowed (base, quote, tick spacing) triple. An empty
// list accepts any market the ladder reports.
type MarketConfig struct {
	Base        string `toml:"base"`
	Quote       string `toml:"quote"`
	TickSpacing uint64 `toml:"tick_spacing"`
}

// VenueConfig selects the external venue used for price comparison.
type VenueConfig struct {
	Enabled        bool     `toml:"enabled"`
	Kind           string   `toml:"kind"`
	Label          string   `toml:"label"`
	Router         string   `toml:"router"`
	Pool           string   `toml:"pool"`
	Tokens         []string `toml:"tokens"`
	MarginalAmount string   `toml:"marginal_amount"`
}

// MonitorConfig holds the loop timing and display settings.
type MonitorConfig struct {
	Interval             duration `toml:"interval"`
	FetchTimeout         duration `toml:"fetch_timeout"`
	QuoteTimeout         duration `toml:"quote_timeout"`
	AlertTimeout         duration `toml:"alert_timeout"`
	SinkTimeout          duration `toml:"sink_timeout"`
	PriceDisplayDecimals int      `toml:"price_display_decimals"`
}

// NotifyConfig holds alert sink endpoints. Empty endpoints are skipped.
type NotifyConfig struct {
	SlackWebhookURL   string   `toml:"slack_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramBaseURL   string   `toml:"telegram_base_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	ErrorAlertLimit   int      `toml:"error_alert_limit"`
	ErrorAlertWindow  duration `toml:"error_alert_window"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters for the
// cycle journal.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the outcome bus, the
// single-instance lock and alert throttling.
type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	MaxRetries     int    `toml:"max_retries"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	StreamMaxLen   int64  `toml:"stream_max_len"`
	SingleInstance bool   `toml:"single_instance"`
}

// S3Config holds S3-compatible object storage parameters for the report
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the operational HTTP API settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration wraps time.Duration so it can be decoded from TOML strings like
// "15m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config watching nothing on Base with the Balancer V3
// WETH/PRL pool as the comparison venue.
func Defaults() Config {
	return Config{
		Kandel: KandelConfig{
			Chain: "base",
		},
		Chains: map[string]ChainConfig{
			"base": {
				ChainID:      8453,
				RPCBatchSize: 100,
			},
		},
		Venue: VenueConfig{
			Enabled: true,
			Kind:    "balancer_v3",
			Label:   "Balancer",
			Router:  "0x3f170631ed9821Ca51A59D996aB095162438DC10",
			Pool:    "0x19e3e19945e7fd2a7856824c595981c7fe450bb5",
			Tokens: []string{
				"0x4200000000000000000000000000000000000006",
				"0xfD28f108e95f4D41daAE9dbfFf707D677985998E",
			},
			MarginalAmount: "0.000001",
		},
		Monitor: MonitorConfig{
			Interval:             duration{15 * time.Minute},
			FetchTimeout:         duration{60 * time.Second},
			QuoteTimeout:         duration{15 * time.Second},
			AlertTimeout:         duration{15 * time.Second},
			SinkTimeout:          duration{15 * time.Second},
			PriceDisplayDecimals: 10,
		},
		Notify: NotifyConfig{
			Events:           []string{"report", "execution", "error"},
			ErrorAlertLimit:  4,
			ErrorAlertWindow: duration{time.Hour},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			MaxRetries:     3,
			StreamMaxLen:   1000,
			SingleInstance: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kandelwatch-reports",
			Prefix:         "reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Mode:     ModeMonitor,
		LogLevel: "info",
	}
}

// Run modes.
const (
	ModeMonitor = "monitor"
	ModeOnce    = "once"
)

var validModes = map[string]bool{
	ModeMonitor: true,
	ModeOnce:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenueKinds = map[string]bool{
	"balancer_v3": true,
}

// ActiveChain returns the registry entry for the configured chain.
func (c *Config) ActiveChain() (ChainConfig, bool) {
	ch, ok := c.Chains[strings.ToLower(c.Kandel.Chain)]
	return ch, ok
}

// KandelAddress returns the parsed ladder address. Call after Validate.
func (c *Config) KandelAddress() common.Address {
	return common.HexToAddress(c.Kandel.Address)
}

// Validate checks the configuration for logical errors and returns a combined
// error describing every problem found, or nil if the config is valid.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if msg := checkAddress(c.Kandel.Address); msg != "" {
		errs = append(errs, "kandel: address "+msg)
	}

	chain, ok := c.ActiveChain()
	if !ok {
		errs = append(errs, fmt.Sprintf("kandel: unknown chain %q (known: %s)", c.Kandel.Chain, strings.Join(c.chainNames(), ", ")))
	} else {
		if strings.TrimSpace(chain.RPCURL) == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: rpc_url must not be empty", c.Kandel.Chain))
		}
		if chain.Mangrove != "" {
			if msg := checkAddress(chain.Mangrove); msg != "" {
				errs = append(errs, fmt.Sprintf("chains.%s: mangrove %s", c.Kandel.Chain, msg))
			}
		}
		if chain.RPCBatchSize < 0 {
			errs = append(errs, fmt.Sprintf("chains.%s: rpc_batch_size must be >= 0", c.Kandel.Chain))
		}
		for i, m := range chain.Markets {
			if msg := checkAddress(m.Base); msg != "" {
				errs = append(errs, fmt.Sprintf("chains.%s.markets[%d]: base %s", c.Kandel.Chain, i, msg))
			}
			if msg := checkAddress(m.Quote); msg != "" {
				errs = append(errs, fmt.Sprintf("chains.%s.markets[%d]: quote %s", c.Kandel.Chain, i, msg))
			}
		}
	}

	if c.Venue.Enabled {
		if !validVenueKinds[c.Venue.Kind] {
			errs = append(errs, fmt.Sprintf("venue: unknown kind %q (valid: balancer_v3)", c.Venue.Kind))
		}
		if msg := checkAddress(c.Venue.Router); msg != "" {
			errs = append(errs, "venue: router "+msg)
		}
		if msg := checkAddress(c.Venue.Pool); msg != "" {
			errs = append(errs, "venue: pool "+msg)
		}
		for i, tok := range c.Venue.Tokens {
			if msg := checkAddress(tok); msg != "" {
				errs = append(errs, fmt.Sprintf("venue: tokens[%d] %s", i, msg))
			}
		}
		if c.Venue.MarginalAmount != "" {
			if d, err := decimal.NewFromString(c.Venue.MarginalAmount); err != nil || d.Sign() <= 0 {
				errs = append(errs, fmt.Sprintf("venue: marginal_amount must be a positive decimal, got %q", c.Venue.MarginalAmount))
			}
		}
	}

	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be a positive duration")
	}
	for name, d := range map[string]duration{
		"fetch_timeout": c.Monitor.FetchTimeout,
		"quote_timeout": c.Monitor.QuoteTimeout,
		"alert_timeout": c.Monitor.AlertTimeout,
		"sink_timeout":  c.Monitor.SinkTimeout,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("monitor: %s must be a positive duration", name))
		}
	}
	if c.Monitor.PriceDisplayDecimals < 0 {
		errs = append(errs, "monitor: price_display_decimals must be >= 0")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) chainNames() []string {
	names := make([]string, 0, len(c.Chains))
	for n := range c.Chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// checkAddress returns a problem description, or "" for a valid non-zero
// hex address.
func checkAddress(s string) string {
	switch {
	case strings.TrimSpace(s) == "":
		return "must not be empty"
	case !common.IsHexAddress(s):
		return fmt.Sprintf("%q is not a valid hex address", s)
	case common.HexToAddress(s) == (common.Address{}):
		return "must not be the zero address"
	}
	return ""
}
