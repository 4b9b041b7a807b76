package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLadder = "0x1234567890123456789012345678901234567890"

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "KANDELWATCH_") {
			t.Setenv(k, "")
		}
	}
	for _, k := range []string{"RPC_URL", "CHAIN", "SLACK_WEBHOOK_URL", "KANDEL_ADDRESS"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Kandel.Address = validLadder
	ch := cfg.Chains["base"]
	ch.RPCURL = "https://mainnet.base.org"
	cfg.Chains["base"] = ch
	return cfg
}

func TestDefaults_NeedOnlyAddressAndRPC(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.Monitor.Interval.Duration)
	assert.Equal(t, "balancer_v3", cfg.Venue.Kind)
}

func TestLoad_FileAndDurations(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
mode = "once"

[kandel]
address = "`+validLadder+`"
chain = "base"

[chains.base]
rpc_url = "https://rpc.example/v1/secret"
chain_id = 8453

[[chains.base.markets]]
base = "0x4200000000000000000000000000000000000006"
quote = "0xfD28f108e95f4D41daAE9dbfFf707D677985998E"
tick_spacing = 1

[monitor]
interval = "5m"
fetch_timeout = "20s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 20*time.Second, cfg.Monitor.FetchTimeout.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Monitor.QuoteTimeout.Duration)

	ch, ok := cfg.ActiveChain()
	require.True(t, ok)
	assert.Equal(t, "https://rpc.example/v1/secret", ch.RPCURL)
	require.Len(t, ch.Markets, 1)
	assert.Equal(t, uint64(1), ch.Markets[0].TickSpacing)
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("KANDEL_ADDRESS", validLadder)
	t.Setenv("RPC_URL", "https://alias.example")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.example/T/B/X")
	t.Setenv("KANDELWATCH_MONITOR_INTERVAL", "30")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	ch, _ := cfg.ActiveChain()
	assert.Equal(t, "https://alias.example", ch.RPCURL)
	assert.Equal(t, "https://hooks.slack.example/T/B/X", cfg.Notify.SlackWebhookURL)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.Interval.Duration)
}

func TestLoad_PrefixedEnvWinsOverAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "https://alias.example")
	t.Setenv("KANDELWATCH_RPC_URL", "https://primary.example")

	cfg, err := Load("")
	require.NoError(t, err)
	ch, _ := cfg.ActiveChain()
	assert.Equal(t, "https://primary.example", ch.RPCURL)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "mode = "))
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Kandel.Address = "0xnot-an-address"
	cfg.Monitor.Interval = duration{0}
	cfg.Mode = "trade"
	cfg.Venue.MarginalAmount = "-1"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "kandel: address")
	assert.Contains(t, msg, "monitor: interval must be a positive duration")
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "chains.base: rpc_url must not be empty")
	assert.Contains(t, msg, "venue: marginal_amount")
}

func TestValidate_Addresses(t *testing.T) {
	for name, addr := range map[string]string{
		"empty": "",
		"short": "0x1234",
		"zero":  "0x0000000000000000000000000000000000000000",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Kandel.Address = addr
			assert.ErrorContains(t, cfg.Validate(), "kandel: address")
		})
	}
}

func TestValidate_UnknownChain(t *testing.T) {
	cfg := validConfig()
	cfg.Kandel.Chain = "arbitrum"
	assert.ErrorContains(t, cfg.Validate(), `unknown chain "arbitrum" (known: base)`)
}

func TestValidate_OptionalSections(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate(), "disabled sections are not checked")

	cfg.Redis.Enabled = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")

	cfg = validConfig()
	cfg.Notify.TelegramToken = "tok"
	assert.ErrorContains(t, cfg.Validate(), "telegram_token and telegram_chat_id")
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Chains["base"]
	ch.RPCURL = "https://base-mainnet.g.alchemy.com/v2/SECRETKEY"
	cfg.Chains["base"] = ch
	cfg.Notify.SlackWebhookURL = "https://hooks.slack.com/services/X"
	cfg.Supabase.Password = "pw"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "https://base-mainnet.g.alchemy.com/***", out.Chains["base"].RPCURL)
	assert.Equal(t, "***", out.Notify.SlackWebhookURL)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)

	// The original is untouched.
	assert.Equal(t, "https://base-mainnet.g.alchemy.com/v2/SECRETKEY", cfg.Chains["base"].RPCURL)
	assert.Equal(t, "pw", cfg.Supabase.Password)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("15")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	d, err = ParseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("soon")
	assert.Error(t, err)
}
