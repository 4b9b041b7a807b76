package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/kandelwatch/internal/blob/s3"
	"github.com/alanyoungcy/kandelwatch/internal/cache/redis"
	"github.com/alanyoungcy/kandelwatch/internal/config"
	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/notify"
	"github.com/alanyoungcy/kandelwatch/internal/platform/balancer"
	"github.com/alanyoungcy/kandelwatch/internal/platform/evm"
	"github.com/alanyoungcy/kandelwatch/internal/platform/mangrove"
	"github.com/alanyoungcy/kandelwatch/internal/server/handler"
	"github.com/alanyoungcy/kandelwatch/internal/service"
	"github.com/alanyoungcy/kandelwatch/internal/store/postgres"
	"github.com/alanyoungcy/kandelwatch/internal/venue"
)

// leaseTTL is how long the single-instance lock survives without a refresh.
const leaseTTL = 60 * time.Second

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ladder common.Address
	Market domain.Market

	Reader   domain.LadderReader
	Venue    *venue.Sampler
	Notifier *notify.Notifier

	// Sinks receive every finished cycle; all optional.
	Sinks []domain.OutcomeSink

	// Redis-backed, nil when Redis is disabled.
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Lease       domain.Lease

	// Checks back /api/health.
	Checks map[string]handler.Check
}

// SinkNames lists the wired outcome sinks.
func (d *Dependencies) SinkNames() []string {
	names := make([]string, len(d.Sinks))
	for i, s := range d.Sinks {
		names[i] = s.Name()
	}
	return names
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Every failure is a
// *domain.StartupConfigError.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(reason string, err error) (*Dependencies, func(), error) {
		cleanup()
		var sce *domain.StartupConfigError
		if errors.As(err, &sce) {
			return nil, nil, err
		}
		return nil, nil, &domain.StartupConfigError{Reason: reason, Err: err}
	}

	chain, ok := cfg.ActiveChain()
	if !ok {
		return fail("unknown chain "+cfg.Kandel.Chain, domain.ErrNotFound)
	}

	deps := &Dependencies{
		Ladder: cfg.KandelAddress(),
		Checks: map[string]handler.Check{},
	}

	// --- Redis (optional; first so the notifier can throttle) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis unreachable", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping

		if cfg.Redis.SingleInstance {
			locks := redis.NewLockManager(redisClient)
			lease, err := locks.Acquire(ctx, redis.LockKey(strings.ToLower(cfg.Kandel.Chain), strings.ToLower(deps.Ladder.Hex())), leaseTTL)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					return fail("another instance is monitoring this ladder", err)
				}
				return fail("acquire instance lock", err)
			}
			closers = append(closers, lease.Release)
			deps.Lease = lease
		}
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(buildSenders(cfg.Notify), cfg.Notify.Events, logger)
	if deps.RateLimiter != nil && cfg.Notify.ErrorAlertLimit > 0 {
		deps.Notifier.WithThrottle(notify.Throttle{
			Limiter: deps.RateLimiter,
			Limit:   cfg.Notify.ErrorAlertLimit,
			Window:  cfg.Notify.ErrorAlertWindow.Duration,
		})
	}

	// --- Chain ---
	client, err := evm.Dial(ctx, chain.RPCURL, chain.RPCBatchSize, logger)
	if err != nil {
		return fail("rpc unreachable", err)
	}
	closers = append(closers, client.Close)

	if chain.ChainID != 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return fail("rpc unreachable", err)
		}
		if id.Int64() != chain.ChainID {
			return fail(fmt.Sprintf("rpc reports chain id %s, %s expects %d", id, cfg.Kandel.Chain, chain.ChainID), nil)
		}
	}
	deps.Checks["rpc"] = func(ctx context.Context) error {
		_, err := client.ChainID(ctx)
		return err
	}

	var expectedMangrove common.Address
	if chain.Mangrove != "" {
		expectedMangrove = common.HexToAddress(chain.Mangrove)
	}
	res, err := mangrove.ResolveMarket(ctx, client, deps.Ladder, expectedMangrove, allowedMarkets(chain.Markets))
	if err != nil {
		alertStartupFailure(ctx, deps.Notifier, cfg, err, logger)
		return fail("resolve market", err)
	}
	deps.Market = res.Market
	deps.Reader = mangrove.NewReader(client, deps.Ladder, res.Mangrove, res.Market, logger)

	// --- Venue ---
	vcfg, err := venueConfig(cfg.Venue, cfg.Monitor.QuoteTimeout.Duration)
	if err != nil {
		return fail("venue", err)
	}
	var quoter domain.VenueQuoter
	if cfg.Venue.Enabled {
		quoter = balancer.NewRouter(client, common.HexToAddress(cfg.Venue.Router))
	}
	deps.Venue = venue.NewSampler(quoter, res.Market, vcfg, logger)

	// --- Outcome sinks ---
	if deps.SignalBus != nil {
		deps.Sinks = append(deps.Sinks, service.NewOutcomePublisher(deps.SignalBus, logger))
	}

	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres unreachable", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Sinks = append(deps.Sinks, postgres.NewJournal(pgClient.Pool()))
		deps.Checks["postgres"] = pgClient.Pool().Ping
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Sinks = append(deps.Sinks, s3blob.NewReportArchive(s3blob.NewWriter(s3Client), cfg.S3.Prefix))
		deps.Checks["s3"] = s3Client.Health
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("ladder", deps.Ladder.Hex()),
		slog.String("market", deps.Market.Pair()),
		slog.String("mangrove", res.Mangrove.Hex()),
		slog.Any("sinks", deps.SinkNames()),
		slog.Any("alert_routes", deps.Notifier.Senders()),
	)

	return deps, cleanup, nil
}

func buildSenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.SlackWebhookURL != "" {
		senders = append(senders, notify.NewSlackSender(cfg.SlackWebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramBaseURL, cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return senders
}

func allowedMarkets(markets []config.MarketConfig) []mangrove.AllowedMarket {
	out := make([]mangrove.AllowedMarket, len(markets))
	for i, m := range markets {
		out[i] = mangrove.AllowedMarket{
			Base:        common.HexToAddress(m.Base),
			Quote:       common.HexToAddress(m.Quote),
			TickSpacing: m.TickSpacing,
		}
	}
	return out
}

func venueConfig(cfg config.VenueConfig, timeout time.Duration) (venue.Config, error) {
	out := venue.Config{
		Label:       cfg.Label,
		Pool:        common.HexToAddress(cfg.Pool),
		CallTimeout: timeout,
	}
	for _, t := range cfg.Tokens {
		out.Tokens = append(out.Tokens, common.HexToAddress(t))
	}
	if cfg.MarginalAmount != "" {
		amt, err := decimal.NewFromString(cfg.MarginalAmount)
		if err != nil {
			return venue.Config{}, fmt.Errorf("marginal_amount %q: %w", cfg.MarginalAmount, err)
		}
		out.MarginalAmount = amt
	}
	return out, nil
}

// alertStartupFailure reports a fatal resolution error before the process
// exits. Delivery failures are only logged.
func alertStartupFailure(ctx context.Context, n *notify.Notifier, cfg *config.Config, cause error, logger *slog.Logger) {
	title := fmt.Sprintf("Kandel Monitor Startup Failed - %s (%s)", cfg.Kandel.Address, cfg.Kandel.Chain)
	body := fmt.Sprintf("Could not resolve the Kandel market: %v", cause)

	actx, cancel := context.WithTimeout(ctx, cfg.Monitor.AlertTimeout.Duration)
	defer cancel()
	if err := n.Notify(actx, notify.EventError, title, body); err != nil {
		logger.WarnContext(ctx, "startup alert failed", slog.String("error", err.Error()))
	}
}
