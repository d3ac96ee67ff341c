package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/bellanapoli/bellad/internal/blob/s3"
	"github.com/bellanapoli/bellad/internal/cache/redis"
	"github.com/bellanapoli/bellad/internal/chain"
	"github.com/bellanapoli/bellad/internal/config"
	"github.com/bellanapoli/bellad/internal/crypto"
	"github.com/bellanapoli/bellad/internal/domain"
	"github.com/bellanapoli/bellad/internal/notify"
	"github.com/bellanapoli/bellad/internal/pool"
	"github.com/bellanapoli/bellad/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore  domain.MarketStore
	BetStore     domain.BetStore
	CommentStore domain.CommentStore
	AuditStore   domain.AuditStore

	// Caches
	SnapshotCache  domain.SnapshotCache
	AggregateCache domain.AggregateCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	EventBus       domain.EventBus

	// Chain access. Writer is nil when no settlement key is configured.
	PoolReader    domain.PoolReader
	FactoryReader domain.FactoryReader
	PoolWriter    domain.PoolWriter

	// Pool state machine
	Reconciler *pool.Reconciler
	Poller     *pool.Poller

	// Cold storage. Nil unless archival is enabled.
	Exporter *s3blob.ArchiveImpl

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pgPool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pgPool)
	deps.BetStore = postgres.NewBetStore(pgPool)
	deps.CommentStore = postgres.NewCommentStore(pgPool)
	deps.AuditStore = postgres.NewAuditStore(pgPool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Poll.SnapshotTTL.Duration)
	deps.AggregateCache = redis.NewAggregateCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- Chain ---
	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dial rpc %s: %w", cfg.Chain.RPCURL, err)
	}
	closers = append(closers, ethClient.Close)

	reader, err := chain.NewReaderWithClient(ethClient, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain reader: %w", err)
	}
	deps.PoolReader = reader

	factory, err := chain.NewFactory(ethClient, cfg.Chain.FactoryAddress, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain factory: %w", err)
	}
	deps.FactoryReader = factory

	// Settlement writer, only when an operator key is configured.
	if cfg.Admin.PrivateKey != "" || cfg.Admin.EncryptedKeyPath != "" {
		key, err := crypto.LoadECDSA(crypto.KeyConfig{
			RawPrivateKey:    cfg.Admin.PrivateKey,
			EncryptedKeyPath: cfg.Admin.EncryptedKeyPath,
			KeyPassword:      cfg.Admin.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: settlement key: %w", err)
		}
		writer, err := chain.NewWriter(ethClient, key, cfg.Chain.ChainID, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain writer: %w", err)
		}
		deps.PoolWriter = writer
	}

	// --- Pool state machine ---
	deps.Reconciler = pool.NewReconciler(cfg.Settlement.RefundsEnabled)
	deps.Poller = pool.NewPoller(
		deps.PoolReader,
		deps.MarketStore,
		deps.BetStore,
		deps.SnapshotCache,
		deps.AggregateCache,
		deps.Reconciler,
		pool.PollerConfig{
			ChainInterval:     cfg.Poll.ChainInterval.Duration,
			AggregateInterval: cfg.Poll.AggregateInterval.Duration,
		},
		logger,
	)
	deps.Poller.AttachBus(deps.EventBus)

	// --- S3 cold storage ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Exporter = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.MarketStore,
			deps.BetStore,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
