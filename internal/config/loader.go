package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KANDELWATCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the monitor can
// be configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KANDELWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed RPC_URL, CHAIN and SLACK_WEBHOOK_URL variables are
// honoured as lower-priority aliases.
func applyEnvOverrides(cfg *Config) {
	// ── Kandel ──
	setStr(&cfg.Kandel.Address, "KANDEL_ADDRESS") // compatibility alias
	setStr(&cfg.Kandel.Address, "KANDELWATCH_KANDEL_ADDRESS")
	setStr(&cfg.Kandel.Chain, "CHAIN") // compatibility alias
	setStr(&cfg.Kandel.Chain, "KANDELWATCH_KANDEL_CHAIN")

	// ── Active chain ──
	chainName := strings.ToLower(cfg.Kandel.Chain)
	// Only chains already in the registry can be overridden.
	if chain, ok := cfg.Chains[chainName]; ok {
		setStr(&chain.RPCURL, "RPC_URL") // compatibility alias
		setStr(&chain.RPCURL, "KANDELWATCH_RPC_URL")
		setStr(&chain.Mangrove, "KANDELWATCH_MANGROVE")
		setInt(&chain.RPCBatchSize, "KANDELWATCH_RPC_BATCH_SIZE")
		cfg.Chains[chainName] = chain
	}

	// ── Venue ──
	setBool(&cfg.Venue.Enabled, "KANDELWATCH_VENUE_ENABLED")
	setStr(&cfg.Venue.Kind, "KANDELWATCH_VENUE_KIND")
	setStr(&cfg.Venue.Label, "KANDELWATCH_VENUE_LABEL")
	setStr(&cfg.Venue.Router, "KANDELWATCH_VENUE_ROUTER")
	setStr(&cfg.Venue.Pool, "KANDELWATCH_VENUE_POOL")
	setStringSlice(&cfg.Venue.Tokens, "KANDELWATCH_VENUE_TOKENS")
	setStr(&cfg.Venue.MarginalAmount, "KANDELWATCH_VENUE_MARGINAL_AMOUNT")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "KANDELWATCH_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "KANDELWATCH_MONITOR_FETCH_TIMEOUT")
	setDuration(&cfg.Monitor.QuoteTimeout, "KANDELWATCH_MONITOR_QUOTE_TIMEOUT")
	setDuration(&cfg.Monitor.AlertTimeout, "KANDELWATCH_MONITOR_ALERT_TIMEOUT")
	setDuration(&cfg.Monitor.SinkTimeout, "KANDELWATCH_MONITOR_SINK_TIMEOUT")
	setInt(&cfg.Monitor.PriceDisplayDecimals, "KANDELWATCH_MONITOR_PRICE_DISPLAY_DECIMALS")

	// ── Notify ──
	setStr(&cfg.Notify.SlackWebhookURL, "SLACK_WEBHOOK_URL") // compatibility alias
	setStr(&cfg.Notify.SlackWebhookURL, "KANDELWATCH_NOTIFY_SLACK_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "KANDELWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KANDELWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramBaseURL, "KANDELWATCH_NOTIFY_TELEGRAM_BASE_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "KANDELWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KANDELWATCH_NOTIFY_EVENTS")
	setInt(&cfg.Notify.ErrorAlertLimit, "KANDELWATCH_NOTIFY_ERROR_ALERT_LIMIT")
	setDuration(&cfg.Notify.ErrorAlertWindow, "KANDELWATCH_NOTIFY_ERROR_ALERT_WINDOW")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "KANDELWATCH_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "KANDELWATCH_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "KANDELWATCH_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "KANDELWATCH_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "KANDELWATCH_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "KANDELWATCH_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "KANDELWATCH_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "KANDELWATCH_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "KANDELWATCH_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "KANDELWATCH_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "KANDELWATCH_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "KANDELWATCH_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KANDELWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "KANDELWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KANDELWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KANDELWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KANDELWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KANDELWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KANDELWATCH_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "KANDELWATCH_REDIS_STREAM_MAX_LEN")
	setBool(&cfg.Redis.SingleInstance, "KANDELWATCH_REDIS_SINGLE_INSTANCE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KANDELWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KANDELWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KANDELWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "KANDELWATCH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "KANDELWATCH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "KANDELWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KANDELWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KANDELWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KANDELWATCH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "KANDELWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "KANDELWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "KANDELWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "KANDELWATCH_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "KANDELWATCH_MODE")
	setStr(&cfg.LogLevel, "KANDELWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("15m") and, for compatibility with the
// minute-based interval flag, bare integers as minutes.
func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// ParseDuration parses a Go duration string, or a bare integer as minutes.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	return time.ParseDuration(v)
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// SetInterval overrides the monitor interval, for command-line flags.
func (c *Config) SetInterval(d time.Duration) {
	c.Monitor.Interval = duration{d}
}
