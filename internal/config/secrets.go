package config

import (
	"net/url"
	"strings"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Chains: RPC URLs commonly embed provider API keys in the path.
	out.Chains = make(map[string]ChainConfig, len(cfg.Chains))
	for name, ch := range cfg.Chains {
		ch.RPCURL = redactURL(ch.RPCURL)
		ch.Markets = append([]MarketConfig(nil), ch.Markets...)
		out.Chains[name] = ch
	}

	// Notify
	redact(&out.Notify.SlackWebhookURL)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Supabase
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Venue.Tokens = append([]string(nil), cfg.Venue.Tokens...)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps the scheme and host of an endpoint and hides the rest.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.Path == "" || u.Path == "/" {
		if u.RawQuery == "" && u.User == nil {
			return raw
		}
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}

// Summary returns a one-line description of the enabled optional sinks.
func (c *Config) Summary() string {
	var parts []string
	if c.Venue.Enabled {
		parts = append(parts, "venue="+c.Venue.Kind)
	}
	if c.Redis.Enabled {
		parts = append(parts, "redis")
	}
	if c.Supabase.Enabled {
		parts = append(parts, "journal")
	}
	if c.S3.Enabled {
		parts = append(parts, "archive")
	}
	if c.Server.Enabled {
		parts = append(parts, "server")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
